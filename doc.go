// Package svhlib is a driver for the SCHUNK SVH nine-channel robotic hand.
//
// The hand is reached over a serial link and only speaks when spoken to:
// the driver frames requests into a checksummed binary protocol, polls the
// hardware for position and current feedback on a fixed cadence, and runs
// the per-joint homing procedure that anchors the logical coordinate frame
// of each joint to its mechanical hard stop.
//
// # Usage
//
//	mgr := hand.NewManager(hand.Config{})
//	if err := mgr.Connect(ctx, "/dev/ttyUSB0"); err != nil { ... }
//	defer mgr.Disconnect()
//	if err := mgr.ResetChannel(ctx, svh.All); err != nil { ... }
//	mgr.SetTargetPosition(svh.IndexDistal, 0.5, 0)
//
// # Packages
//
// The module is organized into the following packages:
//
//   - pkg/protocol: byte-order codec, packet framing and the receiver state machine
//   - pkg/transport: serial device ownership, packet send path and receive loop
//   - pkg/svh: channel definitions, typed payloads and the controller abstraction
//   - pkg/hand: finger manager with homing, unit conversion and the joint API
//   - cmd/svhand: CLI with home, move and monitor commands
//   - cmd/svhand-info: serial port discovery and telemetry dump
package svhlib

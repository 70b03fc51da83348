// Package hand implements the finger manager: connection lifecycle, the
// per-joint homing procedure, tick/radian conversion and the user-facing
// joint API of the SVH five-finger hand.
package hand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/svh"
	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/transport"
)

// Error kinds surfaced by the manager. Wrap details are attached with
// fmt.Errorf; test with errors.Is.
var (
	ErrNotConnected   = errors.New("hand: not connected")
	ErrNotHomed       = errors.New("hand: channel not homed")
	ErrOutOfBounds    = errors.New("hand: target out of bounds")
	ErrHomingTimeout  = errors.New("hand: homing timed out")
	ErrConnectTimeout = errors.New("hand: connect timed out")
)

// Homing thresholds: a joint is considered to sit on its hard stop once the
// motor current has crossed currentThresholdFactor of either current limit
// for hitCountTarget net iterations. Driving to the idle position afterwards
// is done when the position error falls below homePositionReached ticks.
const (
	currentThresholdFactor = 0.75
	hitCountTarget         = 10
	homePositionReached    = 1000
	resetRetries           = 3
)

// Config carries the manager's tunables. The zero value selects the
// defaults noted per field.
type Config struct {
	// HomingTimeout aborts a homing run when the position has not moved
	// for this long. Default 10s.
	HomingTimeout time.Duration
	// ConnectTimeout bounds the wait for the hardware to answer the init
	// burst. Default 5s.
	ConnectTimeout time.Duration
	// ConnectRetries re-runs the init sequence when packets came back but
	// the counts never settled. Default 3.
	ConnectRetries int
	// ResetSpeedFactor scales the velocity limit while homing. Default 0.2.
	ResetSpeedFactor float64
	// PollPeriod is the feedback poll cadence. Default 100ms.
	PollPeriod time.Duration
	// DisabledChannels are joints the user has switched off because of
	// hardware trouble. They answer every per-channel call transparently
	// and no per-channel command is sent for them; the settings pushed by
	// Connect and all-channel frames still include them.
	DisabledChannels []svh.Channel
	// Device, when set, is used instead of opening the serial port named
	// at Connect. Simulators and tests enter here.
	Device transport.Device
	// Logger receives the driver's log records; slog.Default when nil.
	Logger *slog.Logger
}

// DiagnosticState is what homing learned about one joint's drive train.
type DiagnosticState struct {
	EncoderOK   bool
	MotorOK     bool
	CurrentMin  float64
	CurrentMax  float64
	PositionMin float64
	PositionMax float64
	Deadlock    float64
}

// Manager owns the controller and the feedback poll worker, and keeps the
// per-joint calibration state established by homing.
//
// Calibration vectors are written only by ResetChannel on the caller's
// goroutine; concurrent SetTargetPosition calls on a channel that is being
// homed are not supported.
type Manager struct {
	cfg  Config
	log  *slog.Logger
	ctrl *svh.Controller

	connected atomic.Bool
	poller    *poller

	homeSettings [svh.Dimension]HomeSettings
	ticksToRad   [svh.Dimension]float64
	switchedOff  [svh.Dimension]bool

	stateMu      sync.RWMutex
	homed        [svh.Dimension]bool
	positionMin  [svh.Dimension]int32
	positionMax  [svh.Dimension]int32
	positionHome [svh.Dimension]int32
	diagnostics  [svh.Dimension]DiagnosticState

	settingsMu       sync.Mutex
	positionOverride [svh.Dimension]*svh.PositionSettings
	currentOverride  [svh.Dimension]*svh.CurrentSettings
}

// NewManager returns a manager with the hard-coded hardware defaults. No
// wire state exists until Connect.
func NewManager(cfg Config) *Manager {
	if cfg.HomingTimeout <= 0 {
		cfg.HomingTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = resetRetries
	}
	if cfg.ResetSpeedFactor <= 0 || cfg.ResetSpeedFactor > 1 {
		cfg.ResetSpeedFactor = 0.2
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 100 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &Manager{
		cfg:          cfg,
		log:          log,
		ctrl:         svh.NewController(log),
		homeSettings: defaultHomeSettings(),
	}
	for i := range m.homeSettings {
		hs := m.homeSettings[i]
		rangeTicks := float64(hs.MaximumOffset - hs.MinimumOffset)
		m.ticksToRad[i] = hs.RangeRad / rangeTicks * float64(-hs.Direction)
	}
	for _, ch := range cfg.DisabledChannels {
		if ch.Valid() {
			m.switchedOff[ch] = true
			log.Info("channel switched off per user request, it will not do anything",
				"channel", ch)
		}
	}
	return m
}

// Controller exposes the underlying controller for telemetry readers.
func (m *Manager) Controller() *svh.Controller { return m.ctrl }

// Connect opens the serial device, pushes the default controller settings
// to every channel and waits for the hardware to answer the init burst.
// Reconnecting while connected disconnects first.
func (m *Manager) Connect(ctx context.Context, port string) error {
	if m.connected.Load() {
		m.Disconnect()
	}

	if m.cfg.Device != nil {
		m.ctrl.ConnectDevice(m.cfg.Device)
	} else if err := m.ctrl.Connect(port); err != nil {
		return err
	}

	var sent, received uint32
	retries := m.cfg.ConnectRetries
	for !m.connected.Load() {
		m.ctrl.ResetPacketCounts()

		positionSettings := m.activePositionSettings(true)
		currentSettings := m.activeCurrentSettings()
		for _, ch := range svh.AllChannels() {
			m.ctrl.SetPositionSettings(ch, positionSettings[ch])
			m.ctrl.SetCurrentSettings(ch, currentSettings[ch])
		}
		m.ctrl.DisableChannel(svh.All)
		for _, ch := range svh.AllChannels() {
			m.ctrl.RequestFeedback(ch)
		}

		// The liveness heuristic compares packet counts in 50ms slices.
		// It can misjudge when unsolicited frames interleave, but it is
		// what the hardware has been validated against.
		deadline := time.Now().Add(m.cfg.ConnectTimeout)
		for time.Now().Before(deadline) {
			if err := ctx.Err(); err != nil {
				m.ctrl.Disconnect()
				return err
			}
			sent, received = m.ctrl.SentCount(), m.ctrl.ReceivedCount()
			if sent == received {
				m.connected.Store(true)
				m.log.Info("connection to hand established",
					"sent", sent, "received", received)
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		if m.connected.Load() {
			break
		}

		if received == 0 || retries <= 1 {
			break
		}
		retries--
		m.log.Error("connection attempt failed, retrying",
			"sent", sent, "received", received, "retries_left", retries)
	}

	if !m.connected.Load() {
		m.ctrl.Disconnect()
		return fmt.Errorf("%w: sent %d packets, received %d", ErrConnectTimeout, sent, received)
	}

	m.poller = newPoller(m, m.cfg.PollPeriod, m.log)
	m.poller.start()
	return nil
}

// Disconnect stops the poll worker, disables nothing on the wire (the
// hardware drops to idle on its own) and closes the serial device. Every
// channel that is not switched off reads as disabled afterwards.
func (m *Manager) Disconnect() {
	m.connected.Store(false)
	if m.poller != nil {
		m.poller.stop()
		m.poller.join()
		m.poller = nil
	}
	m.ctrl.Disconnect()
	m.log.Debug("finger manager disconnected")
}

// IsConnected reports whether Connect has succeeded and Disconnect has not
// been called since.
func (m *Manager) IsConnected() bool { return m.connected.Load() }

// IsHomed reports whether a channel has completed calibration. All answers
// true only when every channel is homed. Switched-off channels read as
// homed.
func (m *Manager) IsHomed(ch svh.Channel) bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if ch == svh.All {
		for i := range m.homed {
			if !m.homed[i] && !m.switchedOff[i] {
				return false
			}
		}
		return true
	}
	if !ch.Valid() {
		return false
	}
	return m.homed[ch] || m.switchedOff[ch]
}

// IsEnabled returns the cached enable state of a channel. Switched-off
// channels always read enabled.
func (m *Manager) IsEnabled(ch svh.Channel) bool {
	if ch == svh.All {
		for _, c := range svh.AllChannels() {
			if !m.IsEnabled(c) {
				return false
			}
		}
		return true
	}
	if !ch.Valid() {
		return false
	}
	if m.switchedOff[ch] {
		return true
	}
	return m.ctrl.IsEnabled(ch)
}

// ResetChannel runs the homing procedure: drive the joint into its hard
// stop until the motor current saturates, anchor the soft limits relative
// to the stop position, then park the joint at its idle position. With All
// it homes every joint in the mechanical reset order, trying each up to
// three times.
func (m *Manager) ResetChannel(ctx context.Context, ch svh.Channel) error {
	if !m.connected.Load() {
		return fmt.Errorf("%w: cannot reset channel %v", ErrNotConnected, ch)
	}

	if ch == svh.All {
		var firstErr error
		for _, c := range resetOrder {
			var err error
			for attempt := 0; attempt < resetRetries; attempt++ {
				if err = m.ResetChannel(ctx, c); err == nil {
					break
				}
				m.log.Warn("homing attempt failed", "channel", c, "attempt", attempt+1, "err", err)
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	if !ch.Valid() {
		return fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	if m.switchedOff[ch] {
		m.setHomed(ch, true)
		return nil
	}

	m.log.Debug("start homing channel", "channel", ch)
	m.setHomed(ch, false)
	m.stateMu.Lock()
	m.diagnostics[ch] = DiagnosticState{}
	m.stateMu.Unlock()

	// Homing runs against slowed-down position settings.
	m.ctrl.SetPositionSettings(ch, m.activePositionSettings(true)[ch])

	home := m.homeSettings[ch]
	posSet, err := m.ctrl.GetPositionSettings(ch)
	if err != nil {
		return err
	}
	curSet, err := m.ctrl.GetCurrentSettings(ch)
	if err != nil {
		return err
	}

	m.ctrl.DisableChannel(svh.All)

	var target int32
	if home.Direction > 0 {
		target = int32(posSet.WMax)
	} else {
		target = int32(posSet.WMin)
	}
	thresholdLow := currentThresholdFactor * float64(curSet.WMin)
	thresholdHigh := currentThresholdFactor * float64(curSet.WMax)
	m.log.Info("driving channel to hard stop", "channel", ch,
		"current_min_mA", thresholdLow, "current_max_mA", thresholdHigh)

	m.ctrl.SetTarget(ch, target)
	m.ctrl.EnableChannel(ch)

	var previous, feedback svh.ControllerFeedback
	stallStart := time.Now()
	for hitCount := 0; hitCount < hitCountTarget; {
		if err := ctx.Err(); err != nil {
			m.ctrl.DisableChannel(svh.All)
			return err
		}

		m.ctrl.SetTarget(ch, target)
		feedback, _ = m.ctrl.GetFeedback(ch)

		m.recordDiagnostics(ch, home.Direction, feedback)

		current := float64(feedback.Current)
		if current <= thresholdLow || current >= thresholdHigh {
			hitCount++
		} else if hitCount > 0 {
			hitCount--
		}

		if time.Since(stallStart) > m.cfg.HomingTimeout {
			m.ctrl.DisableChannel(svh.All)
			m.log.Error("aborted finding home position", "channel", ch)
			return fmt.Errorf("%w: channel %v stalled seeking hard stop", ErrHomingTimeout, ch)
		}
		if feedback.Position != previous.Position {
			stallStart = time.Now()
			m.stateMu.Lock()
			m.diagnostics[ch].EncoderOK = true
			m.stateMu.Unlock()
		}
		previous = feedback
	}

	m.ctrl.DisableChannel(svh.All)

	// Anchor the soft limits and idle position to the stop position.
	stop := feedback.Position
	m.stateMu.Lock()
	m.positionMin[ch] = stop + int32(home.MinimumOffset)
	m.positionMax[ch] = stop + int32(home.MaximumOffset)
	m.positionHome[ch] = stop + int32(home.IdleOffset)
	homePos := m.positionHome[ch]
	m.diagnostics[ch].MotorOK = true
	m.stateMu.Unlock()
	m.log.Debug("soft stops anchored", "channel", ch,
		"min", stop+int32(home.MinimumOffset), "max", stop+int32(home.MaximumOffset), "home", homePos)

	// Release the joint from the stop and park it at the idle position.
	m.ctrl.EnableChannel(ch)
	homeReached := false
	stallStart = time.Now()
	for {
		if err := ctx.Err(); err != nil {
			m.ctrl.DisableChannel(svh.All)
			return err
		}
		m.ctrl.SetTarget(ch, homePos)
		feedback, _ = m.ctrl.GetFeedback(ch)
		diff := homePos - feedback.Position
		if diff < 0 {
			diff = -diff
		}
		if diff < homePositionReached {
			homeReached = true
			break
		}
		if time.Since(stallStart) > m.cfg.HomingTimeout {
			m.log.Error("home position unreachable, possible hardware error", "channel", ch)
			break
		}
	}

	m.ctrl.DisableChannel(svh.All)
	m.ctrl.SetPositionSettings(ch, m.activePositionSettings(false)[ch])

	if !homeReached {
		return fmt.Errorf("%w: channel %v never reached its idle position", ErrHomingTimeout, ch)
	}
	m.setHomed(ch, true)
	m.log.Info("successfully homed channel", "channel", ch)
	return nil
}

// SetTargetPosition commands a joint to an angle in radians. The current
// argument is accepted for interface parity with effort-based callers and
// is not interpreted by the position controller. A disabled channel is
// enabled on the way.
func (m *Manager) SetTargetPosition(ch svh.Channel, radians, current float64) error {
	_ = current
	if !m.connected.Load() {
		return fmt.Errorf("%w: cannot set target position", ErrNotConnected)
	}
	if !ch.Valid() {
		return fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	if m.switchedOff[ch] {
		return nil
	}
	if !m.IsHomed(ch) {
		return fmt.Errorf("%w: channel %v", ErrNotHomed, ch)
	}

	ticks := m.radToTicks(ch, radians)
	if !m.insideBounds(ch, ticks) {
		m.stateMu.RLock()
		lo, hi := m.positionMin[ch], m.positionMax[ch]
		m.stateMu.RUnlock()
		m.log.Warn("target out of bounds", "channel", ch,
			"target_ticks", ticks, "min", lo, "max", hi)
		return fmt.Errorf("%w: channel %v target %d ticks outside [%d, %d]",
			ErrOutOfBounds, ch, ticks, lo, hi)
	}

	if !m.ctrl.IsEnabled(ch) {
		if err := m.ctrl.EnableChannel(ch); err != nil {
			return err
		}
	}
	return m.ctrl.SetTarget(ch, ticks)
}

// SetAllTargetPositions commands every joint at once. The command is
// rejected as a whole when any channel's target is out of bounds.
func (m *Manager) SetAllTargetPositions(radians []float64) error {
	if !m.connected.Load() {
		return fmt.Errorf("%w: cannot set target positions", ErrNotConnected)
	}
	if len(radians) != int(svh.Dimension) {
		return fmt.Errorf("%w: position vector has %d entries, want %d",
			ErrOutOfBounds, len(radians), int(svh.Dimension))
	}

	// Validate the whole vector before touching any hardware state, so a
	// rejected command leaves no channel newly enabled.
	var targets [svh.Dimension]int32
	for _, ch := range svh.AllChannels() {
		targets[ch] = m.radToTicks(ch, radians[ch])
		if !m.switchedOff[ch] && !m.insideBounds(ch, targets[ch]) {
			return fmt.Errorf("%w: channel %v target %d ticks",
				ErrOutOfBounds, ch, targets[ch])
		}
	}
	for _, ch := range svh.AllChannels() {
		if !m.switchedOff[ch] && m.IsHomed(ch) && !m.ctrl.IsEnabled(ch) {
			m.ctrl.EnableChannel(ch)
		}
	}
	return m.ctrl.SetTargetAll(targets)
}

// GetPosition returns the joint angle in radians derived from the cached
// feedback. Switched-off channels stay at zero; the tick readout of such a
// joint may be gibberish.
func (m *Manager) GetPosition(ch svh.Channel) (float64, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	if !m.IsHomed(ch) {
		return 0, fmt.Errorf("%w: channel %v", ErrNotHomed, ch)
	}
	if m.switchedOff[ch] {
		return 0, nil
	}

	fb, err := m.ctrl.GetFeedback(ch)
	if err != nil {
		return 0, err
	}
	rad := m.ticksToRadians(ch, fb.Position)
	// The controller ignores negative inputs; clamp so a badly placed soft
	// stop cannot wedge the readout below the commandable range.
	if rad < 0 {
		rad = 0
	}
	return rad, nil
}

// GetCurrent returns the cached motor current in mA.
func (m *Manager) GetCurrent(ch svh.Channel) (float64, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	if !m.IsHomed(ch) {
		return 0, fmt.Errorf("%w: channel %v", ErrNotHomed, ch)
	}
	fb, err := m.ctrl.GetFeedback(ch)
	if err != nil {
		return 0, err
	}
	return float64(fb.Current), nil
}

// EnableChannel switches a joint's controller loops on. Only connected and
// homed channels can be enabled; All is accepted only when every channel is
// homed and then enables them in reset order.
func (m *Manager) EnableChannel(ch svh.Channel) error {
	if !m.connected.Load() {
		return fmt.Errorf("%w: cannot enable channel %v", ErrNotConnected, ch)
	}
	if !m.IsHomed(ch) {
		return fmt.Errorf("%w: channel %v must be homed before enabling", ErrNotHomed, ch)
	}
	if ch == svh.All {
		for _, c := range resetOrder {
			if !m.switchedOff[c] {
				if err := m.EnableChannel(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if !ch.Valid() {
		return fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	if m.switchedOff[ch] {
		return nil
	}
	return m.ctrl.EnableChannel(ch)
}

// DisableChannel switches a joint's controller loops off unconditionally.
func (m *Manager) DisableChannel(ch svh.Channel) {
	if ch == svh.All {
		for _, c := range svh.AllChannels() {
			m.DisableChannel(c)
		}
		return
	}
	if !ch.Valid() || m.switchedOff[ch] {
		return
	}
	m.ctrl.DisableChannel(ch)
}

// SetPositionControllerParams overrides the default position settings of a
// channel. When connected the new parameters are pushed immediately;
// otherwise they take effect at the next connect.
func (m *Manager) SetPositionControllerParams(ch svh.Channel, s svh.PositionSettings) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	m.settingsMu.Lock()
	copied := s
	m.positionOverride[ch] = &copied
	m.settingsMu.Unlock()
	if m.connected.Load() {
		return m.ctrl.SetPositionSettings(ch, s)
	}
	return nil
}

// SetCurrentControllerParams overrides the default current settings of a
// channel. Wrong values can damage the hardware.
func (m *Manager) SetCurrentControllerParams(ch svh.Channel, s svh.CurrentSettings) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	m.settingsMu.Lock()
	copied := s
	m.currentOverride[ch] = &copied
	m.settingsMu.Unlock()
	if m.connected.Load() {
		return m.ctrl.SetCurrentSettings(ch, s)
	}
	return nil
}

// GetDiagnostics returns what homing learned about a joint's drive train.
func (m *Manager) GetDiagnostics(ch svh.Channel) (DiagnosticState, error) {
	if !ch.Valid() {
		return DiagnosticState{}, fmt.Errorf("%w: channel %d", ErrOutOfBounds, ch)
	}
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.diagnostics[ch], nil
}

// radToTicks converts a joint angle to an absolute tick target. Zero
// radians lands on the homed reference end of the range.
func (m *Manager) radToTicks(ch svh.Channel, radians float64) int32 {
	ticks := int32(radians / m.ticksToRad[ch])
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.homeSettings[ch].Direction > 0 {
		return ticks + m.positionMax[ch]
	}
	return ticks + m.positionMin[ch]
}

// ticksToRadians removes the channel's anchor offset and scales to radians.
func (m *Manager) ticksToRadians(ch svh.Channel, ticks int32) float64 {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	var cleared int32
	if m.homeSettings[ch].Direction > 0 {
		cleared = ticks - m.positionMax[ch]
	} else {
		cleared = ticks - m.positionMin[ch]
	}
	return float64(cleared) * m.ticksToRad[ch]
}

func (m *Manager) insideBounds(ch svh.Channel, ticks int32) bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return ticks >= m.positionMin[ch] && ticks <= m.positionMax[ch]
}

func (m *Manager) setHomed(ch svh.Channel, homed bool) {
	m.stateMu.Lock()
	m.homed[ch] = homed
	m.stateMu.Unlock()
}

// recordDiagnostics tracks current extremes and deadlock indications while
// a joint drives into its stop.
func (m *Manager) recordDiagnostics(ch svh.Channel, direction int, fb svh.ControllerFeedback) {
	const deadlockThreshold = 80

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	d := &m.diagnostics[ch]

	current := float64(fb.Current)
	if direction > 0 {
		if delta := current - d.CurrentMax; delta <= -deadlockThreshold {
			if -delta > d.Deadlock {
				d.Deadlock = -delta
			}
		}
	} else {
		if delta := current - d.CurrentMin; delta >= deadlockThreshold {
			if delta > d.Deadlock {
				d.Deadlock = delta
			}
		}
	}
	if current > d.CurrentMax {
		d.CurrentMax = current
	} else if current < d.CurrentMin {
		d.CurrentMin = current
	}
	position := float64(fb.Position)
	if position > d.PositionMax {
		d.PositionMax = position
	} else if position < d.PositionMin {
		d.PositionMin = position
	}
}

// activePositionSettings merges user overrides over the defaults.
func (m *Manager) activePositionSettings(homing bool) [svh.Dimension]svh.PositionSettings {
	settings := defaultPositionSettings(homing, m.cfg.ResetSpeedFactor)
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	for i, o := range m.positionOverride {
		if o != nil {
			settings[i] = *o
			if homing {
				settings[i].DWMax *= float32(m.cfg.ResetSpeedFactor)
			}
		}
	}
	return settings
}

// activeCurrentSettings merges user overrides over the defaults.
func (m *Manager) activeCurrentSettings() [svh.Dimension]svh.CurrentSettings {
	settings := defaultCurrentSettings()
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	for i, o := range m.currentOverride {
		if o != nil {
			settings[i] = *o
		}
	}
	return settings
}

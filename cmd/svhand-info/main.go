// svhand-info lists candidate serial ports and, given a port, connects to
// the hand and dumps one round of telemetry and channel state.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/hand"
	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/svh"
)

func main() {
	fmt.Println("SVH Port Scanner")
	fmt.Println("━━━━━━━━━━━━━━━━")

	if len(os.Args) > 1 {
		if err := dump(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot enumerate serial ports: %v\n", err)
		os.Exit(1)
	}

	var candidates []string
	for _, port := range ports {
		if strings.Contains(port, "ttyUSB") || strings.Contains(port, "usbserial") ||
			strings.Contains(port, "usbmodem") {
			candidates = append(candidates, port)
		}
	}

	if len(candidates) == 0 {
		fmt.Println("No USB serial ports found.")
		fmt.Println("Make sure the hand is connected and powered on.")
		os.Exit(1)
	}

	fmt.Printf("Found %d candidate port(s):\n", len(candidates))
	for _, port := range candidates {
		fmt.Printf("  %s\n", port)
	}
	fmt.Println()
	fmt.Printf("Run 'svhand-info <port>' to probe one of them.\n")
}

func dump(port string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr := hand.NewManager(hand.Config{Logger: log})

	fmt.Printf("Connecting to %s...\n", port)
	if err := mgr.Connect(context.Background(), port); err != nil {
		return err
	}
	defer mgr.Disconnect()

	// Let the feedback poll fill the caches once.
	time.Sleep(300 * time.Millisecond)

	fmt.Println()
	fmt.Printf("%-24s %8s %8s %8s\n", "channel", "ticks", "mA", "state")
	ctrl := mgr.Controller()
	for _, ch := range svh.AllChannels() {
		fb, err := ctrl.GetFeedback(ch)
		if err != nil {
			return err
		}
		state := "disabled"
		if mgr.IsEnabled(ch) {
			state = "enabled"
		}
		fmt.Printf("%-24s %8d %8d %8s\n", ch, fb.Position, fb.Current, state)
	}
	return nil
}

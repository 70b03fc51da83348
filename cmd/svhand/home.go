package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/hand"
	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/svh"
)

type HomeCommand struct {
	Channel string `long:"channel" default:"all" description:"Channel name to home, or 'all'"`
	Yes     bool   `long:"yes" short:"y" description:"Skip the safety confirmation"`
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func channelByName(name string) (svh.Channel, error) {
	if name == "all" {
		return svh.All, nil
	}
	for _, ch := range svh.AllChannels() {
		if ch.String() == name {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

func (c *HomeCommand) Execute(args []string) error {
	ch, err := channelByName(c.Channel)
	if err != nil {
		return err
	}

	if !c.Yes {
		var proceed bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Home the hand?").
					Description("Each joint will drive into its mechanical stop.\nMake sure the fingers are free to move.").
					Affirmative("Start homing").
					Negative("Abort").
					Value(&proceed),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		if !proceed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	log := newLogger()
	mgr := hand.NewManager(hand.Config{Logger: log})

	fmt.Printf("Connecting to %s...\n", opts.Port)
	ctx := context.Background()
	if err := mgr.Connect(ctx, opts.Port); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer mgr.Disconnect()

	fmt.Printf("Homing %s...\n", ch)
	if err := mgr.ResetChannel(ctx, ch); err != nil {
		return fmt.Errorf("homing: %w", err)
	}

	fmt.Println("Homing complete:")
	fmt.Printf("  %-24s %-10s %10s %10s %10s\n",
		"channel", "state", "I min[mA]", "I max[mA]", "deadlock")
	for _, c := range svh.AllChannels() {
		state := "not homed"
		if mgr.IsHomed(c) {
			state = "homed"
		}
		diag, err := mgr.GetDiagnostics(c)
		if err != nil {
			return err
		}
		fmt.Printf("  %-24s %-10s %10.0f %10.0f %10.0f\n",
			c, state, diag.CurrentMin, diag.CurrentMax, diag.Deadlock)
	}
	return nil
}

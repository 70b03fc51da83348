package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/hand"
)

type MoveCommand struct {
	Channel string  `long:"channel" required:"true" description:"Channel name to move"`
	Radians float64 `long:"radians" short:"r" required:"true" description:"Target angle in radians"`
	Home    bool    `long:"home" description:"Home the channel first"`
}

func (c *MoveCommand) Execute(args []string) error {
	ch, err := channelByName(c.Channel)
	if err != nil {
		return err
	}

	mgr := hand.NewManager(hand.Config{Logger: newLogger()})
	ctx := context.Background()
	if err := mgr.Connect(ctx, opts.Port); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer mgr.Disconnect()

	if c.Home {
		fmt.Printf("Homing %s...\n", ch)
		if err := mgr.ResetChannel(ctx, ch); err != nil {
			return fmt.Errorf("homing: %w", err)
		}
	}

	if err := mgr.SetTargetPosition(ch, c.Radians, 0); err != nil {
		return fmt.Errorf("set target: %w", err)
	}

	// Give the joint a moment, then report where it ended up.
	time.Sleep(time.Second)
	pos, err := mgr.GetPosition(ch)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	cur, err := mgr.GetCurrent(ch)
	if err != nil {
		return fmt.Errorf("read current: %w", err)
	}
	fmt.Printf("%s: %.3f rad (target %.3f), %.0f mA\n", ch, pos, c.Radians, cur)
	return nil
}

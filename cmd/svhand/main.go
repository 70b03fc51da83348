package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Port    string         `long:"port" short:"p" default:"/dev/ttyUSB0" description:"Serial device of the hand"`
	Verbose bool           `long:"verbose" short:"v" description:"Enable debug logging"`
	Home    HomeCommand    `command:"home" description:"Run the homing procedure to calibrate the joints"`
	Move    MoveCommand    `command:"move" description:"Drive a joint to an angle in radians"`
	Monitor MonitorCommand `command:"monitor" description:"Live position and current telemetry"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "svhand - driver CLI for the SCHUNK SVH five finger hand"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

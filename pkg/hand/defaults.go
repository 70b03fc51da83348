package hand

import "github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/svh"

// HomeSettings describe how one joint finds its mechanical hard stop and
// where the usable range lies relative to it. Offsets are encoder ticks
// relative to the stop position.
type HomeSettings struct {
	Direction     int     // +1 drives towards the upper soft limit, -1 towards the lower
	MinimumOffset float32 // ticks
	MaximumOffset float32 // ticks
	IdleOffset    float32 // ticks
	RangeRad      float64 // radians of travel between the two offsets
}

// defaultHomeSettings are derived from the hardware description: maximum
// tick counts and the allowable range of movement per joint.
func defaultHomeSettings() [svh.Dimension]HomeSettings {
	return [svh.Dimension]HomeSettings{
		svh.ThumbFlexion:    {+1, -175.0e3, -5.0e3, -15.0e3, 0.97},
		svh.ThumbOpposition: {+1, -105.0e3, -5.0e3, -15.0e3, 0.99},
		svh.IndexDistal:     {+1, -47.0e3, -2.0e3, -8.0e3, 1.33},
		svh.IndexProximal:   {-1, 2.0e3, 42.0e3, 8.0e3, 0.80},
		svh.MiddleDistal:    {+1, -47.0e3, -2.0e3, -8.0e3, 1.33},
		svh.MiddleProximal:  {-1, 2.0e3, 42.0e3, 8.0e3, 0.80},
		svh.Ring:            {+1, -47.0e3, -2.0e3, -8.0e3, 0.98},
		svh.Pinky:           {+1, -47.0e3, -2.0e3, -8.0e3, 0.98},
		svh.FingerSpread:    {+1, -27.0e3, -2.0e3, -8.0e3, 0.58},
	}
}

// resetOrder is the sequence the joints are homed in when resetting the
// whole hand: proximal joints and the thumb first so the fingers fold out
// of each other's way.
var resetOrder = [svh.Dimension]svh.Channel{
	svh.IndexProximal,
	svh.MiddleProximal,
	svh.ThumbOpposition,
	svh.ThumbFlexion,
	svh.FingerSpread,
	svh.MiddleDistal,
	svh.IndexDistal,
	svh.Ring,
	svh.Pinky,
}

// defaultPositionSettings are tuned so every finger closes its full range in
// about one second (the thumb joints take two to three). During homing the velocity limit
// is scaled down by speedFactor.
func defaultPositionSettings(homing bool, speedFactor float64) [svh.Dimension]svh.PositionSettings {
	settings := [svh.Dimension]svh.PositionSettings{
		svh.ThumbFlexion:    {WMin: -1.0e6, WMax: 1.0e6, DWMax: 65.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.0, KD: 400.0},
		svh.ThumbOpposition: {WMin: -1.0e6, WMax: 1.0e6, DWMax: 50.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.1, KD: 100.0},
		svh.IndexDistal:     {WMin: -1.0e6, WMax: 1.0e6, DWMax: 45.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.0, KD: 40.0},
		svh.IndexProximal:   {WMin: -1.0e6, WMax: 1.0e6, DWMax: 40.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.8, KI: 0.0, KD: 1000.0},
		svh.MiddleDistal:    {WMin: -1.0e6, WMax: 1.0e6, DWMax: 45.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.0, KD: 10.0},
		svh.MiddleProximal:  {WMin: -1.0e6, WMax: 1.0e6, DWMax: 40.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.8, KI: 0.0, KD: 1000.0},
		svh.Ring:            {WMin: -1.0e6, WMax: 1.0e6, DWMax: 45.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.0, KD: 100.0},
		svh.Pinky:           {WMin: -1.0e6, WMax: 1.0e6, DWMax: 45.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.0, KD: 100.0},
		svh.FingerSpread:    {WMin: -1.0e6, WMax: 1.0e6, DWMax: 25.0e3, KY: 1.00, DT: 1e-3, IMin: -500.0, IMax: 500.0, KP: 0.5, KI: 0.0, KD: 100.0},
	}
	if homing {
		for i := range settings {
			settings[i].DWMax *= float32(speedFactor)
		}
	}
	return settings
}

// defaultCurrentSettings per joint group. Only change these if you know
// what you are doing; wrong values can damage the hardware.
func defaultCurrentSettings() [svh.Dimension]svh.CurrentSettings {
	thumb := svh.CurrentSettings{WMin: -500.0, WMax: 500.0, KY: 0.405, DT: 4e-6, IMin: -25.0, IMax: 25.0, KP: 0.6, KI: 10.0, UMin: -255.0, UMax: 255.0}
	thumbOpposition := svh.CurrentSettings{WMin: -500.0, WMax: 500.0, KY: 0.405, DT: 4e-6, IMin: -25.0, IMax: 25.0, KP: 1.0, KI: 10.0, UMin: -255.0, UMax: 255.0}
	distal := svh.CurrentSettings{WMin: -300.0, WMax: 300.0, KY: 0.405, DT: 4e-6, IMin: -25.0, IMax: 25.0, KP: 1.0, KI: 10.0, UMin: -255.0, UMax: 255.0}
	proximal := svh.CurrentSettings{WMin: -350.0, WMax: 350.0, KY: 0.405, DT: 4e-6, IMin: -25.0, IMax: 25.0, KP: 1.0, KI: 10.0, UMin: -255.0, UMax: 255.0}
	outer := svh.CurrentSettings{WMin: -300.0, WMax: 300.0, KY: 0.405, DT: 4e-6, IMin: -10.0, IMax: 10.0, KP: 1.0, KI: 25.0, UMin: -255.0, UMax: 255.0}
	spread := svh.CurrentSettings{WMin: -500.0, WMax: 500.0, KY: 0.405, DT: 4e-6, IMin: -4.0, IMax: 4.0, KP: 0.7, KI: 60.0, UMin: -255.0, UMax: 255.0}

	return [svh.Dimension]svh.CurrentSettings{
		svh.ThumbFlexion:    thumb,
		svh.ThumbOpposition: thumbOpposition,
		svh.IndexDistal:     distal,
		svh.IndexProximal:   proximal,
		svh.MiddleDistal:    distal,
		svh.MiddleProximal:  proximal,
		svh.Ring:            outer,
		svh.Pinky:           outer,
		svh.FingerSpread:    spread,
	}
}

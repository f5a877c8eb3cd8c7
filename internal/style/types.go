package style

import (
	"errors"
	"time"
)

// #region style
// Style is a named strictness profile for the facilitator.
type Style string

const (
	Gentle     Style = "gentle"
	Moderate   Style = "moderate"
	Aggressive Style = "aggressive"
)

// Default is the style every session starts with unless configured otherwise.
const Default = Moderate

// ErrUnknownStyle is returned for any value outside the profile table.
var ErrUnknownStyle = errors.New("unknown style")

// #endregion style

// #region params
// Params are the gate parameters derived from a style.
type Params struct {
	TangentThreshold float64 // inclusive lower bound, in (0,1]
	CooldownSeconds  uint
}

// Cooldown returns CooldownSeconds as a duration.
func (p Params) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

// #endregion params

// #region profile
// Profile pairs the gate parameters of a style with the voice guidance used
// when rendering moderator instructions.
type Profile struct {
	Style  Style
	Params Params
	Voice  string
}

// #endregion profile

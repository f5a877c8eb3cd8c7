package style

import "fmt"

// #region table
// profiles is the fixed, total style table. Thresholds and cooldowns must not
// drift from the values clients are built against.
var profiles = map[Style]Profile{
	Gentle: {
		Style:  Gentle,
		Params: Params{TangentThreshold: 0.80, CooldownSeconds: 60},
		Voice: `Be direct but kind. For example:
- "Quick check: we've wandered away from {{.current_topic}}. Can we bring it back?"
- "A few minutes left on {{.current_topic}}, let's start wrapping up."
Say clearly what needs to happen next.`,
	},
	Moderate: {
		Style:  Moderate,
		Params: Params{TangentThreshold: 0.70, CooldownSeconds: 30},
		Voice: `Be firm and clear. For example:
- "Stepping in: this is off the agenda. Back to {{.current_topic}}."
- "Time is up on {{.current_topic}}. Moving on."
No softening language.`,
	},
	Aggressive: {
		Style:  Aggressive,
		Params: Params{TangentThreshold: 0.60, CooldownSeconds: 10},
		Voice: `Be blunt and commanding. For example:
- "Stop. Off topic. Back to {{.current_topic}}."
- "Out of time. Next item. Go."
Short, sharp, no pleasantries.`,
	},
}

// order is the canonical listing order.
var order = []Style{Gentle, Moderate, Aggressive}

// #endregion table

// #region lookup
// Parse validates a raw style name. Matching is exact.
func Parse(raw string) (Style, error) {
	s := Style(raw)
	if _, ok := profiles[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, raw)
	}
	return s, nil
}

// Valid reports whether s has a profile.
func (s Style) Valid() bool {
	_, ok := profiles[s]
	return ok
}

// Lookup returns the profile for s.
func Lookup(s Style) (Profile, error) {
	p, ok := profiles[s]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownStyle, string(s))
	}
	return p, nil
}

// MustProfile returns the profile for s and panics if s is not in the table.
// Callers must only pass styles that already went through Parse.
func MustProfile(s Style) Profile {
	p, err := Lookup(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParamsFor is shorthand for the params half of a profile.
func ParamsFor(s Style) (Params, error) {
	p, err := Lookup(s)
	if err != nil {
		return Params{}, err
	}
	return p.Params, nil
}

// All lists the recognized styles from least to most strict.
func All() []Style {
	out := make([]Style, len(order))
	copy(out, order)
	return out
}

// #endregion lookup

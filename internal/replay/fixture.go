package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region fixture-types

// Fixture is a scripted facilitation session. Steps run in order; times are
// offsets in seconds from the start of the session.
type Fixture struct {
	Description     string                  `json:"description" yaml:"description"`
	InitialStyle    string                  `json:"initial_style" yaml:"initial_style"`
	Context         map[string]string       `json:"context" yaml:"context"`
	WindowSeconds   int                     `json:"window_seconds" yaml:"window_seconds"`
	Steps           []FixtureStep           `json:"steps" yaml:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results" yaml:"expected_results"`
}

// FixtureStep is one scripted event. Exactly one of Style, Text, or a tick
// (Score, ScoreError, or neither for the built-in scorer) applies.
type FixtureStep struct {
	AtSeconds  float64  `json:"at_seconds" yaml:"at_seconds"`
	Style      string   `json:"style,omitempty" yaml:"style,omitempty"`
	Speaker    string   `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	Text       string   `json:"text,omitempty" yaml:"text,omitempty"`
	Score      *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	ScoreError string   `json:"score_error,omitempty" yaml:"score_error,omitempty"`
}

// FixtureExpectedResult is the expected outcome of the step at AtSeconds.
// Kind disambiguates when several steps share an offset.
type FixtureExpectedResult struct {
	AtSeconds float64  `json:"at_seconds" yaml:"at_seconds"`
	Kind      StepKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Action    string   `json:"action" yaml:"action"`
	Style     string   `json:"style,omitempty" yaml:"style,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads a JSON or YAML (.yaml, .yml) fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks step ordering and that every step is one kind of event.
func (f *Fixture) Validate() error {
	if f.InitialStyle != "" {
		if _, err := style.Parse(f.InitialStyle); err != nil {
			return fmt.Errorf("initial_style: %w", err)
		}
	}
	last := -1.0
	for i, s := range f.Steps {
		if s.AtSeconds < last {
			return fmt.Errorf("step %d: at_seconds %.3f goes backwards", i, s.AtSeconds)
		}
		last = s.AtSeconds
		kinds := 0
		if s.Style != "" {
			kinds++
		}
		if s.Text != "" {
			kinds++
		}
		if s.Score != nil || s.ScoreError != "" {
			kinds++
		}
		if kinds > 1 {
			return fmt.Errorf("step %d: mixes style, text and score", i)
		}
	}
	return nil
}

// ToOptions converts the fixture header to session options.
func (f *Fixture) ToOptions() state.Options {
	opts := state.Options{
		ID:           "replay",
		InitialStyle: style.Style(f.InitialStyle),
		Context:      state.PromptContext(f.Context),
	}
	if f.WindowSeconds > 0 {
		opts.Window = time.Duration(f.WindowSeconds) * time.Second
	}
	return opts
}

// Kind classifies a step.
func (s FixtureStep) Kind() StepKind {
	switch {
	case s.Style != "":
		return StepStyle
	case s.Text != "":
		return StepUtterance
	default:
		return StepTick
	}
}

// #endregion fixture-loader

package scorer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/monitor"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

func fixed(score float64, err error) monitor.ScorerFunc {
	return func(context.Context, state.TickInput) (float64, error) { return score, err }
}

func TestFallback(t *testing.T) {
	unavailable := fmt.Errorf("dial: %w", monitor.ErrScorerUnavailable)
	boom := errors.New("boom")

	cases := []struct {
		name      string
		primary   monitor.Scorer
		secondary monitor.Scorer
		want      float64
		wantErr   error
	}{
		{"primary ok", fixed(0.4, nil), fixed(0.9, nil), 0.4, nil},
		{"primary unavailable", fixed(0, unavailable), fixed(0.9, nil), 0.9, nil},
		{"primary other error", fixed(0, boom), fixed(0.9, nil), 0, boom},
		{"both fail", fixed(0, unavailable), fixed(0, boom), 0, boom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Fallback{Primary: tc.primary, Secondary: tc.secondary, Log: zerolog.Nop()}
			got, err := f.Score(context.Background(), state.TickInput{})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("score = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFallback_BothFailKeepsUnavailable(t *testing.T) {
	f := Fallback{
		Primary:   fixed(0, monitor.ErrScorerUnavailable),
		Secondary: fixed(0, errors.New("no topic")),
	}
	_, err := f.Score(context.Background(), state.TickInput{})
	if !errors.Is(err, monitor.ErrScorerUnavailable) {
		t.Fatalf("expected ErrScorerUnavailable in chain, got %v", err)
	}
}

package scorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/monitor"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

// Fallback scores with Primary and, when it reports
// monitor.ErrScorerUnavailable, with Secondary instead. Other primary errors
// are returned as-is.
type Fallback struct {
	Primary   monitor.Scorer
	Secondary monitor.Scorer
	Log       zerolog.Logger
}

// Score implements monitor.Scorer.
func (f Fallback) Score(ctx context.Context, in state.TickInput) (float64, error) {
	score, err := f.Primary.Score(ctx, in)
	if err == nil || !errors.Is(err, monitor.ErrScorerUnavailable) || ctx.Err() != nil {
		return score, err
	}
	f.Log.Debug().Err(err).Msg("primary scorer unavailable, using fallback")
	score, ferr := f.Secondary.Score(ctx, in)
	if ferr != nil {
		return 0, fmt.Errorf("fallback after %w: %w", err, ferr)
	}
	return score, nil
}

var _ monitor.Scorer = Fallback{}

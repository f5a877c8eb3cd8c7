// Package scorer provides the built-in tangent scorer used when no remote
// scorer is configured.
package scorer

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/monitor"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
)

// MinTokens is the smallest number of content words in an utterance for it
// to count toward drift. Shorter lines are treated as asides.
const MinTokens = 3

// Lexical scores drift as the share of substantive speech that shares no
// keyword with the current topic and its description.
type Lexical struct {
	minTokens int
}

// NewLexical returns a scorer with the default aside threshold.
func NewLexical() *Lexical {
	return &Lexical{minTokens: MinTokens}
}

// Score implements monitor.Scorer. It returns monitor.ErrScorerUnavailable
// when there is no topic to compare against or nothing was said in the window.
func (l *Lexical) Score(ctx context.Context, in state.TickInput) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	topic := strings.TrimSpace(in.Context[state.KeyCurrentTopic] + " " + in.Context[state.KeyTopicDescription])
	topicTokens := tokenize(topic)
	if len(topicTokens) == 0 {
		return 0, fmt.Errorf("%w: no current topic", monitor.ErrScorerUnavailable)
	}
	if len(in.Window) == 0 {
		return 0, fmt.Errorf("%w: empty window", monitor.ErrScorerUnavailable)
	}

	set := make(map[string]bool, len(topicTokens))
	for _, t := range topicTokens {
		set[t] = true
	}

	var total, offTopic int
	for _, u := range in.Window {
		tokens := tokenize(u.Text)
		if len(tokens) < l.minTokens {
			continue
		}
		total += len(tokens)
		if sharedKeywords(set, tokens) == 0 {
			offTopic += len(tokens)
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(offTopic) / float64(total), nil
}

var _ monitor.Scorer = (*Lexical)(nil)

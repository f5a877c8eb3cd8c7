package codec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/monitor"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// ErrRejected is returned when the backend answers UpdateInstructions with accepted=false.
var ErrRejected = errors.New("backend rejected instructions")

// #region client-struct
// Client wraps the gRPC connection to the moderator backend. It serves as the
// instruction backend, the remote drift scorer and an intervention sink.
type Client struct {
	conn   *grpc.ClientConn
	client ModeratorClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to the moderator backend at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: NewModeratorClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
// Used for testing without a real gRPC connection.
func NewClientWithService(svc ModeratorClient) *Client {
	return &Client{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region update-instructions
// UpdateInstructions pushes rendered instructions for generation gen.
func (c *Client) UpdateInstructions(ctx context.Context, gen uint64, st style.Style, instructions string) error {
	req, err := structpb.NewStruct(map[string]any{
		"generation":   gen,
		"style":        string(st),
		"instructions": instructions,
	})
	if err != nil {
		return fmt.Errorf("encode update instructions: %w", err)
	}
	resp, err := c.client.UpdateInstructions(ctx, req)
	if err != nil {
		return fmt.Errorf("update instructions rpc: %w", err)
	}
	if !resp.GetFields()["accepted"].GetBoolValue() {
		return fmt.Errorf("generation %d: %w", gen, ErrRejected)
	}
	return nil
}

// #endregion update-instructions

// #region score-drift
// Score asks the backend to rate drift for the window. An unreachable backend
// is reported as monitor.ErrScorerUnavailable.
func (c *Client) Score(ctx context.Context, in state.TickInput) (float64, error) {
	utterances := make([]any, 0, len(in.Window))
	for _, u := range in.Window {
		utterances = append(utterances, map[string]any{
			"speaker": u.Speaker,
			"text":    u.Text,
			"at":      u.At.UTC().Format(time.RFC3339Nano),
		})
	}
	req, err := structpb.NewStruct(map[string]any{
		"topic":       in.Topic(),
		"description": in.Context[state.KeyTopicDescription],
		"style":       string(in.Style),
		"utterances":  utterances,
	})
	if err != nil {
		return 0, fmt.Errorf("encode score request: %w", err)
	}

	resp, err := c.client.ScoreDrift(ctx, req)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return 0, fmt.Errorf("score drift rpc: %w: %w", monitor.ErrScorerUnavailable, err)
		}
		return 0, fmt.Errorf("score drift rpc: %w", err)
	}

	v, ok := resp.GetFields()["score"]
	if !ok {
		return 0, errors.New("score drift rpc: response has no score")
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, fmt.Errorf("score drift rpc: score is %T, want number", v.GetKind())
	}
	return v.GetNumberValue(), nil
}

// #endregion score-drift

// #region intervene
// Emit forwards an intervention so the backend can voice it.
func (c *Client) Emit(ctx context.Context, iv monitor.Intervention) error {
	req, err := structpb.NewStruct(map[string]any{
		"id":         iv.ID,
		"session_id": iv.SessionID,
		"style":      string(iv.Style),
		"score":      iv.Score,
		"threshold":  iv.Threshold,
		"topic":      iv.Topic,
		"reason":     iv.Reason,
		"at":         iv.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode intervention: %w", err)
	}
	if _, err := c.client.Intervene(ctx, req); err != nil {
		return fmt.Errorf("intervene rpc: %w", err)
	}
	return nil
}

// #endregion intervene

var (
	_ monitor.Scorer = (*Client)(nil)
	_ monitor.Sink   = (*Client)(nil)
)

// Package client calls a remote scopeguard gRPC server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	pb "github.com/ppiankov/scopeguard/api/scopeguard/v1"
	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
)

// DefaultTimeout bounds a call whose context has no deadline.
const DefaultTimeout = 30 * time.Second

// Client connects to a scopeguard gRPC server.
type Client struct {
	addr   string
	conn   *grpc.ClientConn
	client pb.GuardianServiceClient
}

// New creates a gRPC client for addr. The connection is lazy; an
// unreachable server surfaces on the first Evaluate.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to guardian server: %w", err)
	}
	return &Client{
		addr:   addr,
		conn:   conn,
		client: pb.NewGuardianServiceClient(conn),
	}, nil
}

// Evaluate sends one turn to the remote guardian.
//
// Fail-closed: when the server is unreachable or cannot reach its provider,
// the returned Decision is the restrictive default carrying the caller's
// prior signature, together with a *guardian.ProviderUnavailableError.
// Validation and not-found errors map back to the guardian error taxonomy.
func (c *Client) Evaluate(ctx context.Context, req guardian.Request) (model.Decision, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	out, err := c.client.Evaluate(ctx, pb.EvalRequest{
		UserID:            req.UserID,
		ProjectID:         req.ProjectID,
		Message:           req.Message,
		PreviousSignature: req.PriorSignature.Encode(),
	}.ToStruct())
	if err != nil {
		return c.failure(req, err)
	}

	resp, err := pb.ResponseFromStruct(out)
	if err != nil {
		return c.failClosed(req, fmt.Errorf("malformed response: %w", err))
	}
	sig, err := model.ParseSignature(resp.Signature)
	if err != nil {
		return c.failClosed(req, fmt.Errorf("malformed response signature: %w", err))
	}
	return model.Decision{
		IsAllowed:         resp.IsAllowed,
		Reasoning:         resp.Reasoning,
		SuggestedResponse: resp.SuggestedResponse,
		NewSignature:      sig,
		TurnID:            resp.TurnID,
		Basis:             model.Basis(resp.Basis),
	}, nil
}

func (c *Client) failure(req guardian.Request, err error) (model.Decision, error) {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument:
		return model.Decision{}, &guardian.ValidationError{Field: "request", Reason: st.Message()}
	case codes.NotFound:
		return model.Decision{}, fmt.Errorf("%s: %w", req.ProjectID, model.ErrProjectNotFound)
	case codes.Canceled:
		return model.Decision{}, context.Canceled
	default:
		return c.failClosed(req, err)
	}
}

func (c *Client) failClosed(req guardian.Request, err error) (model.Decision, error) {
	d := model.Decision{
		IsAllowed:         false,
		Reasoning:         guardian.FailClosedReasoning,
		SuggestedResponse: guardian.DefaultSuggestedResponse,
		NewSignature:      req.PriorSignature,
		Basis:             model.BasisUnavailable,
	}
	return d, &guardian.ProviderUnavailableError{Provider: "grpc:" + c.addr, Err: err}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

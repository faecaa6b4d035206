package scopeguard

import (
	"context"
	"fmt"
	"sync"
)

// ReplyFunc produces the assistant's reply to an inbound message.
type ReplyFunc func(ctx context.Context, message string) (string, error)

// Wrap returns a ReplyFunc that checks each message before calling fn.
// Messages outside the project's scope return an *OutOfScopeError without
// calling fn. The wrapped function is one conversation: the signature of
// each decision is carried into the next check.
func (c *Client) Wrap(fn ReplyFunc, opts ...WrapOption) ReplyFunc {
	wcfg := wrapConfig{userID: c.cfg.userID}
	for _, o := range opts {
		o(&wcfg)
	}

	var mu sync.Mutex
	sig := wcfg.signature

	return func(ctx context.Context, message string) (string, error) {
		if wcfg.projectID == "" {
			return "", fmt.Errorf("scopeguard: wrap has no project")
		}

		mu.Lock()
		result, err := c.Check(ctx, CheckRequest{
			UserID:            wcfg.userID,
			ProjectID:         wcfg.projectID,
			Message:           message,
			PreviousSignature: sig,
		})
		if err == nil {
			sig = result.Signature
		}
		mu.Unlock()

		if err != nil {
			return "", err
		}
		if !result.Allowed {
			return "", &OutOfScopeError{
				ProjectID:         wcfg.projectID,
				Reasoning:         result.Reasoning,
				SuggestedResponse: result.SuggestedResponse,
				Basis:             result.Basis,
			}
		}
		return fn(ctx, message)
	}
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/server"
)

type fakeEvaluator struct {
	decision model.Decision
	err      error
}

func (f *fakeEvaluator) Evaluate(context.Context, guardian.Request) (model.Decision, error) {
	return f.decision, f.err
}

func startServer(t *testing.T, eval server.Evaluator) string {
	t.Helper()
	srv, err := server.New(eval, server.Config{}, nil)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.ServeOn(lis) }()
	t.Cleanup(srv.GracefulStop)
	return lis.Addr().String()
}

func newClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientEvaluate(t *testing.T) {
	addr := startServer(t, &fakeEvaluator{decision: model.Decision{
		IsAllowed:         true,
		Reasoning:         "Video editing is in scope.",
		SuggestedResponse: "On it.",
		NewSignature:      model.NewSignature([]byte("next")),
		TurnID:            "t-1",
		Basis:             model.BasisProvider,
	}})
	c := newClient(t, addr)

	d, err := c.Evaluate(context.Background(), guardian.Request{
		UserID: "u", ProjectID: "promo", Message: "trim the intro",
		PriorSignature: model.NewSignature([]byte("prev")),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.IsAllowed || d.SuggestedResponse != "On it." {
		t.Errorf("decision = %+v", d)
	}
	if string(d.NewSignature.Bytes()) != "next" {
		t.Errorf("signature = %v", d.NewSignature)
	}
	if d.Basis != model.BasisProvider || d.TurnID != "t-1" {
		t.Errorf("basis/turn = %s/%s", d.Basis, d.TurnID)
	}
}

func TestClientMapsErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		c := newClient(t, startServer(t, &fakeEvaluator{err: &guardian.ValidationError{Field: "message", Reason: "too long"}}))
		_, err := c.Evaluate(context.Background(), guardian.Request{ProjectID: "p", Message: "m"})
		var verr *guardian.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})
	t.Run("not found", func(t *testing.T) {
		c := newClient(t, startServer(t, &fakeEvaluator{err: fmt.Errorf("x: %w", model.ErrProjectNotFound)}))
		_, err := c.Evaluate(context.Background(), guardian.Request{ProjectID: "p", Message: "m"})
		if !errors.Is(err, model.ErrProjectNotFound) {
			t.Fatalf("err = %v, want ErrProjectNotFound", err)
		}
	})
	t.Run("provider unavailable fails closed", func(t *testing.T) {
		c := newClient(t, startServer(t, &fakeEvaluator{err: &guardian.ProviderUnavailableError{Provider: "stub", Err: errors.New("429")}}))
		prior := model.NewSignature([]byte("keep"))
		d, err := c.Evaluate(context.Background(), guardian.Request{ProjectID: "p", Message: "m", PriorSignature: prior})
		if !errors.Is(err, guardian.ErrProviderUnavailable) {
			t.Fatalf("err = %v, want ErrProviderUnavailable", err)
		}
		assertFailClosed(t, d, prior)
	})
}

func TestClientFailClosedWhenUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	c := newClient(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prior := model.NewSignature([]byte("keep"))
	d, err := c.Evaluate(ctx, guardian.Request{ProjectID: "p", Message: "m", PriorSignature: prior})
	if !errors.Is(err, guardian.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	assertFailClosed(t, d, prior)
}

func assertFailClosed(t *testing.T, d model.Decision, prior model.Signature) {
	t.Helper()
	if d.IsAllowed {
		t.Error("fail-closed decision must not allow")
	}
	if d.Reasoning != guardian.FailClosedReasoning {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
	if !d.NewSignature.Equal(prior) {
		t.Error("prior signature must be carried forward")
	}
	if d.Basis != model.BasisUnavailable {
		t.Errorf("basis = %s", d.Basis)
	}
}

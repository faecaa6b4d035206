package scopeguard

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/app"
	"github.com/ppiankov/scopeguard/internal/config"
	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
)

// DefaultUserID is recorded when neither the request nor the client names a user.
const DefaultUserID = "sdk"

// ErrProjectNotFound is returned when a check or lookup names an unknown project.
var ErrProjectNotFound = model.ErrProjectNotFound

// Client holds an assembled guardian for in-process checks.
// Safe for concurrent use.
type Client struct {
	cfg clientConfig
	app *app.App
}

// New loads the config and assembles the guardian.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := clientConfig{userID: DefaultUserID}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	if err := config.LoadEnv(cfg.envFiles...); err != nil {
		return nil, fmt.Errorf("scopeguard: %w", err)
	}
	loaded, err := config.Load(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("scopeguard: failed to load config: %w", err)
	}

	a, err := app.Open(ctx, loaded, app.Options{Logger: cfg.logger, Provider: cfg.provider})
	if err != nil {
		return nil, fmt.Errorf("scopeguard: %w", err)
	}
	return &Client{cfg: cfg, app: a}, nil
}

// Check evaluates one message. A Result is returned on every path that
// reaches the provider; when the provider is unavailable the Result is the
// fail-closed decision and err wraps guardian.ErrProviderUnavailable.
func (c *Client) Check(ctx context.Context, req CheckRequest) (Result, error) {
	sig, err := model.ParseSignature(req.PreviousSignature)
	if err != nil {
		return Result{}, fmt.Errorf("scopeguard: previous signature: %w", err)
	}
	userID := req.UserID
	if userID == "" {
		userID = c.cfg.userID
	}

	d, err := c.app.Engine().Evaluate(ctx, guardian.Request{
		UserID:         userID,
		ProjectID:      req.ProjectID,
		Message:        req.Message,
		PriorSignature: sig,
	})
	if errors.Is(err, guardian.ErrProviderUnavailable) {
		return Result{
			Reasoning:         guardian.FailClosedReasoning,
			SuggestedResponse: guardian.DefaultSuggestedResponse,
			Signature:         req.PreviousSignature,
			Basis:             BasisUnavailable,
		}, err
	}
	if err != nil {
		return Result{}, err
	}
	return toResult(d), nil
}

// PutProject creates or replaces a project.
func (c *Client) PutProject(ctx context.Context, p Project) (Project, error) {
	saved, err := c.app.Projects().Put(ctx, model.Project{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Deliverables: p.Deliverables,
	})
	if err != nil {
		return Project{}, err
	}
	return toProject(saved), nil
}

// GetProject returns the project with the given ID.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	p, err := c.app.Projects().Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	return toProject(p), nil
}

// Close drains in-flight checks and closes storage.
func (c *Client) Close() error {
	return c.app.Close()
}

// Package server serves the guardian over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/scopeguard/api/scopeguard/v1"
	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
)

// Config holds gRPC server configuration.
type Config struct {
	Port int
}

// Evaluator is the guardian as seen by the gRPC layer.
type Evaluator interface {
	Evaluate(ctx context.Context, req guardian.Request) (model.Decision, error)
}

// Server implements GuardianService.
type Server struct {
	eval   Evaluator
	cfg    Config
	logger *zap.Logger

	grpcServer *grpc.Server
}

// New creates a gRPC server around eval.
func New(eval Evaluator, cfg Config, logger *zap.Logger) (*Server, error) {
	if eval == nil {
		return nil, errors.New("server: evaluator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		eval:       eval,
		cfg:        cfg,
		logger:     logger,
		grpcServer: grpc.NewServer(),
	}
	pb.RegisterGuardianServiceServer(s.grpcServer, s)
	return s, nil
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop waits for in-flight RPCs and stops the server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Evaluate implements the Evaluate RPC.
func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := pb.RequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	prior, err := model.ParseSignature(req.PreviousSignature)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "previous_signature must be base64")
	}

	d, err := s.eval.Evaluate(ctx, guardian.Request{
		UserID:         req.UserID,
		ProjectID:      req.ProjectID,
		Message:        req.Message,
		PriorSignature: prior,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}

	return pb.EvalResponse{
		IsAllowed:         d.IsAllowed,
		Reasoning:         d.Reasoning,
		SuggestedResponse: d.SuggestedResponse,
		Signature:         d.NewSignature.Encode(),
		TurnID:            d.TurnID,
		Basis:             string(d.Basis),
	}.ToStruct(), nil
}

func (s *Server) toStatus(err error) error {
	var verr *guardian.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, model.ErrProjectNotFound):
		return status.Error(codes.NotFound, "project not found")
	case errors.Is(err, guardian.ErrProviderUnavailable):
		return status.Error(codes.Unavailable, "scope check temporarily unavailable")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		s.logger.Error("grpc evaluate failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

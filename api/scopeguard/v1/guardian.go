// Package scopeguardv1 declares the scopeguard.v1.GuardianService gRPC
// service. Messages travel as google.protobuf.Struct so the service needs no
// generated code; EvalRequest and EvalResponse convert to and from it.
package scopeguardv1

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName        = "scopeguard.v1.GuardianService"
	EvaluateFullMethod = "/" + ServiceName + "/Evaluate"
)

// EvalRequest is one guarded chat turn.
type EvalRequest struct {
	UserID            string
	ProjectID         string
	Message           string
	PreviousSignature string // base64, empty on the first turn
}

// EvalResponse is the guardian's decision.
type EvalResponse struct {
	IsAllowed         bool
	Reasoning         string
	SuggestedResponse string
	Signature         string // base64
	TurnID            string
	Basis             string
}

// ToStruct encodes r for the wire.
func (r EvalRequest) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id":            structpb.NewStringValue(r.UserID),
		"project_id":         structpb.NewStringValue(r.ProjectID),
		"message":            structpb.NewStringValue(r.Message),
		"previous_signature": structpb.NewStringValue(r.PreviousSignature),
	}}
}

// RequestFromStruct decodes a wire request. Missing fields are empty.
func RequestFromStruct(s *structpb.Struct) (EvalRequest, error) {
	f, err := fields(s, "user_id", "project_id", "message", "previous_signature")
	if err != nil {
		return EvalRequest{}, err
	}
	return EvalRequest{
		UserID:            f["user_id"].GetStringValue(),
		ProjectID:         f["project_id"].GetStringValue(),
		Message:           f["message"].GetStringValue(),
		PreviousSignature: f["previous_signature"].GetStringValue(),
	}, nil
}

// ToStruct encodes r for the wire.
func (r EvalResponse) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"is_allowed":         structpb.NewBoolValue(r.IsAllowed),
		"reasoning":          structpb.NewStringValue(r.Reasoning),
		"suggested_response": structpb.NewStringValue(r.SuggestedResponse),
		"signature":          structpb.NewStringValue(r.Signature),
		"turn_id":            structpb.NewStringValue(r.TurnID),
		"basis":              structpb.NewStringValue(r.Basis),
	}}
}

// ResponseFromStruct decodes a wire response. A missing or non-boolean
// is_allowed decodes as false.
func ResponseFromStruct(s *structpb.Struct) (EvalResponse, error) {
	f, err := fields(s, "signature", "reasoning", "suggested_response", "turn_id", "basis")
	if err != nil {
		return EvalResponse{}, err
	}
	return EvalResponse{
		IsAllowed:         f["is_allowed"].GetBoolValue(),
		Reasoning:         f["reasoning"].GetStringValue(),
		SuggestedResponse: f["suggested_response"].GetStringValue(),
		Signature:         f["signature"].GetStringValue(),
		TurnID:            f["turn_id"].GetStringValue(),
		Basis:             f["basis"].GetStringValue(),
	}, nil
}

// fields returns the struct's fields, rejecting non-string values for the
// named string keys.
func fields(s *structpb.Struct, stringKeys ...string) (map[string]*structpb.Value, error) {
	f := s.GetFields()
	for _, k := range stringKeys {
		v, ok := f[k]
		if !ok {
			continue
		}
		if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
			return nil, fmt.Errorf("field %q must be a string", k)
		}
	}
	return f, nil
}

// GuardianServiceServer is the server API for GuardianService.
type GuardianServiceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGuardianServiceServer registers srv on s.
func RegisterGuardianServiceServer(s grpc.ServiceRegistrar, srv GuardianServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc is the grpc.ServiceDesc for GuardianService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardianServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scopeguard/v1/guardian.proto",
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuardianServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: EvaluateFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuardianServiceServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GuardianServiceClient is the client API for GuardianService.
type GuardianServiceClient interface {
	Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type guardianServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGuardianServiceClient wraps cc.
func NewGuardianServiceClient(cc grpc.ClientConnInterface) GuardianServiceClient {
	return &guardianServiceClient{cc: cc}
}

func (c *guardianServiceClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

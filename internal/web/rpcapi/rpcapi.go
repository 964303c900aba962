// Package rpcapi exposes kernel operations as a JSON-RPC 2.0 endpoint so
// scripts and tests can drive functions and channels without a browser.
//
// Methods:
//
//	Kernel.Invoke     {function, args, limit}  -> {result}
//	Kernel.Signature  {function}               -> {signature}
//	Kernel.Set        {channel, key, value}    -> {status}
//	Kernel.State      {}                       -> {state}
package rpcapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/function"
	"github.com/declwidgets/declwidgets/internal/web/middleware"
)

// ServiceName is the JSON-RPC service prefix
const ServiceName = "Kernel"

// Backend is the kernel surface the endpoint drives
type Backend interface {
	Invoke(ctx context.Context, name string, args map[string]any, limit int) (any, error)
	Signature(name string) (function.Descriptor, error)
	Set(ctx context.Context, channel, key string, value any) error
	State(ctx context.Context) (map[string]any, error)
}

// Service implements the Kernel.* methods
type Service struct {
	backend Backend
	logger  *zap.Logger
}

// NewService creates the Kernel service
func NewService(backend Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, logger: logger}
}

// Handler returns an http.Handler serving the Kernel service over json2
func Handler(backend Backend, logger *zap.Logger) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(NewService(backend, logger), ServiceName); err != nil {
		return nil, err
	}
	return s, nil
}

type InvokeArgs struct {
	Function string         `json:"function"`
	Args     map[string]any `json:"args"`
	Limit    int            `json:"limit,omitempty"`
}

type InvokeReply struct {
	Result any `json:"result"`
}

// Invoke calls a registered function with converted arguments
func (s *Service) Invoke(r *http.Request, args *InvokeArgs, reply *InvokeReply) error {
	result, err := s.backend.Invoke(r.Context(), args.Function, args.Args, args.Limit)
	if err != nil {
		s.logger.Warn("rpc invoke failed",
			middleware.RequestIDField(r.Context()),
			zap.String("function", args.Function),
			zap.Error(err))
		return rpcError(err)
	}
	reply.Result = result
	return nil
}

type SignatureArgs struct {
	Function string `json:"function"`
}

type SignatureReply struct {
	Signature function.Descriptor `json:"signature"`
}

// Signature describes the parameters of a registered function
func (s *Service) Signature(r *http.Request, args *SignatureArgs, reply *SignatureReply) error {
	spec, err := s.backend.Signature(args.Function)
	if err != nil {
		return rpcError(err)
	}
	reply.Signature = spec
	return nil
}

type SetArgs struct {
	Channel string `json:"channel"`
	Key     string `json:"key"`
	Value   any    `json:"value"`
}

type SetReply struct {
	Status string `json:"status"`
}

// Set publishes a channel value as if the kernel had set it
func (s *Service) Set(r *http.Request, args *SetArgs, reply *SetReply) error {
	if args.Key == "" {
		return &json2.Error{Code: json2.E_BAD_PARAMS, Message: "key is required"}
	}
	if err := s.backend.Set(r.Context(), args.Channel, args.Key, args.Value); err != nil {
		return rpcError(err)
	}
	reply.Status = "ok"
	return nil
}

type StateArgs struct{}

type StateReply struct {
	State map[string]any `json:"state"`
}

// State returns the last recorded value of every channel key
func (s *Service) State(r *http.Request, args *StateArgs, reply *StateReply) error {
	state, err := s.backend.State(r.Context())
	if err != nil {
		return rpcError(err)
	}
	reply.State = state
	return nil
}

func rpcError(err error) error {
	var conv *function.ConversionError
	switch {
	case errors.Is(err, function.ErrNotFound),
		errors.Is(err, function.ErrMissingArgument),
		errors.As(err, &conv):
		return &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
	default:
		return &json2.Error{Code: json2.E_SERVER, Message: err.Error()}
	}
}

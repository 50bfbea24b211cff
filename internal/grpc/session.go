package grpc

import (
	"context"
	"errors"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/identity"
	"typingschool/identity/internal/model"
)

const (
	ServiceName          = "typingschool.identity.v1.SessionService"
	ResolveSessionMethod = "/" + ServiceName + "/ResolveSession"
	GetUserMethod        = "/" + ServiceName + "/GetUser"
)

// SessionServiceServer lets sibling services resolve session tokens they
// received from browsers. Messages are protobuf well-known types; ids travel as
// decimal strings since Struct numbers are doubles.
type SessionServiceServer interface {
	ResolveSession(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetUser(context.Context, *wrapperspb.Int64Value) (*structpb.Struct, error)
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveSession", Handler: resolveSessionHandler},
		{MethodName: "GetUser", Handler: getUserHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "typingschool/identity/v1/session.proto",
}

func RegisterSessionServiceServer(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

type SessionServer struct {
	service   *identity.Service
	directory *identity.Directory
}

func NewSessionServer(service *identity.Service, directory *identity.Directory) *SessionServer {
	return &SessionServer{service: service, directory: directory}
}

func (s *SessionServer) ResolveSession(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "token required")
	}
	session := s.service.Resolve(auth.NewMemoryTransport(req.GetValue()))
	if session == nil {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return structpb.NewStruct(map[string]interface{}{
		"userId": strconv.FormatInt(session.UserID, 10),
		"role":   string(session.Role),
		"name":   session.Name,
		"email":  session.Email,
	})
}

func (s *SessionServer) GetUser(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	user, err := s.directory.Find(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return userStruct(user)
}

func userStruct(user model.User) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"id":        strconv.FormatInt(user.ID, 10),
		"email":     user.Email,
		"name":      user.Name,
		"role":      string(user.Role),
		"createdAt": user.CreatedAt.UTC().Format(time.RFC3339),
	}
	if user.Grade != nil {
		fields["grade"] = *user.Grade
	}
	if user.LastLoginAt != nil {
		fields["lastLoginAt"] = user.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return structpb.NewStruct(fields)
}

func toStatus(err error) error {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Code)
	case errors.Is(err, identity.ErrNotFound):
		return status.Error(codes.NotFound, "user_not_found")
	default:
		return status.Error(codes.Internal, "lookup failed")
	}
}

func resolveSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).ResolveSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ResolveSessionMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).ResolveSession(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func getUserHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionServiceServer).GetUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetUserMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SessionServiceServer).GetUser(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

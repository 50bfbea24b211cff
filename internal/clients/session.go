package clients

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"typingschool/identity/internal/auth"
	identitygrpc "typingschool/identity/internal/grpc"
)

var ErrNoSession = errors.New("no valid session")

// User is the account view returned by GetUser.
type User struct {
	ID    int64
	Email string
	Name  string
	Role  auth.Role
	Grade *int
}

// SessionClient is used by sibling services to resolve session cookies.
type SessionClient struct {
	conn grpc.ClientConnInterface
}

func NewSessionClient(conn grpc.ClientConnInterface) *SessionClient {
	return &SessionClient{conn: conn}
}

// Dial connects to the identity service and attaches serviceToken to every call.
func Dial(ctx context.Context, addr, serviceToken string, timeout time.Duration) (*grpc.ClientConn, error) {
	if serviceToken == "" {
		return nil, errors.New("service auth token required")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(ServiceAuthUnaryClientInterceptor(serviceToken)),
	)
}

func ServiceAuthUnaryClientInterceptor(serviceToken string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, identitygrpc.ServiceTokenHeader, serviceToken)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ResolveSession returns ErrNoSession when the token is missing or rejected.
func (c *SessionClient) ResolveSession(ctx context.Context, token string) (*auth.Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, identitygrpc.ResolveSessionMethod, wrapperspb.String(token), out); err != nil {
		if status.Code(err) == codes.Unauthenticated {
			return nil, ErrNoSession
		}
		return nil, err
	}
	fields := out.AsMap()
	role, ok := auth.ParseRole(stringField(fields, "role"))
	if !ok {
		return nil, fmt.Errorf("unexpected role %q", stringField(fields, "role"))
	}
	userID, err := idField(fields, "userId")
	if err != nil {
		return nil, err
	}
	return &auth.Session{
		UserID: userID,
		Role:   role,
		Name:   stringField(fields, "name"),
		Email:  stringField(fields, "email"),
	}, nil
}

func (c *SessionClient) GetUser(ctx context.Context, id int64) (User, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, identitygrpc.GetUserMethod, wrapperspb.Int64(id), out); err != nil {
		return User{}, err
	}
	fields := out.AsMap()
	id, err := idField(fields, "id")
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:    id,
		Email: stringField(fields, "email"),
		Name:  stringField(fields, "name"),
		Role:  auth.Role(stringField(fields, "role")),
	}
	if grade, ok := fields["grade"].(float64); ok {
		g := int(grade)
		user.Grade = &g
	}
	return user, nil
}

func stringField(fields map[string]interface{}, key string) string {
	value, _ := fields[key].(string)
	return value
}

func idField(fields map[string]interface{}, key string) (int64, error) {
	id, err := strconv.ParseInt(stringField(fields, key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s in response: %w", key, err)
	}
	return id, nil
}

package transport

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"userprofile/internal/domain"
	"userprofile/internal/repository"
)

// QueryClient calls a running service. NotFound replies surface as
// domain.ErrUserNotFound.
type QueryClient struct {
	cc *grpc.ClientConn
}

func Dial(addr string) (*QueryClient, error) {
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &QueryClient{cc: cc}, nil
}

func (c *QueryClient) Close() error { return c.cc.Close() }

func (c *QueryClient) invoke(ctx context.Context, method string, in, out any) error {
	err := c.cc.Invoke(ctx, "/"+QueryServiceName+"/"+method, in, out)
	if status.Code(err) == codes.NotFound {
		return zerr.With(zerr.Wrap(domain.ErrUserNotFound, status.Convert(err).Message()), "method", method)
	}
	return err
}

func (c *QueryClient) GetUser(ctx context.Context, id string) (domain.User, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetUser", wrapperspb.String(id), out); err != nil {
		return domain.User{}, err
	}
	return UserFromStruct(out), nil
}

func (c *QueryClient) FindUserByName(ctx context.Context, name string) (domain.User, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "FindUserByName", wrapperspb.String(name), out); err != nil {
		return domain.User{}, err
	}
	return UserFromStruct(out), nil
}

func (c *QueryClient) ListUsers(ctx context.Context) ([]domain.User, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "ListUsers", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		users = append(users, UserFromStruct(v.GetStructValue()))
	}
	return users, nil
}

func (c *QueryClient) GetActivity(ctx context.Context, userID string) ([]repository.Activity, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetActivity", wrapperspb.String(userID), out); err != nil {
		return nil, err
	}
	var acts []repository.Activity
	for _, v := range out.GetFields()["activity"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		acts = append(acts, repository.Activity{
			Kind:       repository.ActivityKind(f["kind"].GetStringValue()),
			Ref:        f["ref"].GetStringValue(),
			UserID:     userID,
			Status:     f["status"].GetStringValue(),
			Detail:     f["detail"].GetStringValue(),
			OccurredAt: parseTime(f["occurred_at"].GetStringValue()),
		})
	}
	return acts, nil
}

// Healthy reports whether the query service is SERVING.
func (c *QueryClient) Healthy(ctx context.Context) (bool, error) {
	resp, err := grpc_health_v1.NewHealthClient(c.cc).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: QueryServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING, nil
}

package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"userprofile/internal/domain"
	"userprofile/internal/repository"
)

const QueryServiceName = "userprofile.v1.UserQuery"

// Queries is the read side of the store served over gRPC.
type Queries interface {
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByUserName(ctx context.Context, userName string) (domain.User, error)
	GetAll(ctx context.Context) ([]domain.User, error)
	Activity(ctx context.Context, userID string) ([]repository.Activity, error)
}

// QueryServer answers UserQuery calls from a Queries.
type QueryServer struct {
	store Queries
}

func NewQueryServer(store Queries) *QueryServer { return &QueryServer{store: store} }

func (s *QueryServer) GetUser(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	u, err := s.store.FindByID(ctx, strings.TrimSpace(in.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return userStruct(u)
}

func (s *QueryServer) FindUserByName(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	u, err := s.store.FindByUserName(ctx, strings.TrimSpace(in.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return userStruct(u)
}

func (s *QueryServer) ListUsers(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	users, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(users))
	for _, u := range users {
		items = append(items, userMap(u))
	}
	lv, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return lv, nil
}

// GetActivity returns {"user_id", "activity": [...]} for an existing user.
func (s *QueryServer) GetActivity(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(in.GetValue())
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	acts, err := s.store.Activity(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(acts))
	for _, a := range acts {
		items = append(items, map[string]any{
			"kind":        string(a.Kind),
			"ref":         a.Ref,
			"status":      a.Status,
			"detail":      a.Detail,
			"occurred_at": a.OccurredAt.Format(time.RFC3339Nano),
		})
	}
	st, err := structpb.NewStruct(map[string]any{"user_id": id, "activity": items})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func userMap(u domain.User) map[string]any {
	return map[string]any{
		"user_id":    u.ID,
		"user_name":  u.UserName,
		"email":      u.Email,
		"avatar":     u.Avatar,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": u.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func userStruct(u domain.User) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(userMap(u))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

// UserFromStruct is the inverse of the user encoding above.
func UserFromStruct(st *structpb.Struct) domain.User {
	f := st.GetFields()
	u := domain.NewUser(f["user_id"].GetStringValue(), f["user_name"].GetStringValue(), f["email"].GetStringValue(),
		parseTime(f["created_at"].GetStringValue()), parseTime(f["updated_at"].GetStringValue()))
	u.Avatar = f["avatar"].GetStringValue()
	return u
}

// parseTime yields the zero time for malformed input.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidUser), errors.Is(err, domain.ErrInvalidEvent):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrStoreClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

/*──────── service descriptor ───────*/

type queryService interface {
	GetUser(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	FindUserByName(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListUsers(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetActivity(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func RegisterQueryServer(s grpc.ServiceRegistrar, srv *QueryServer) {
	s.RegisterService(&queryServiceDesc, srv)
}

func unary[Req any, Resp any](method string, call func(queryService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(queryService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + QueryServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(queryService), ctx, req.(*Req))
			})
		},
	}
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: QueryServiceName,
	HandlerType: (*queryService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetUser", queryService.GetUser),
		unary("FindUserByName", queryService.FindUserByName),
		unary("ListUsers", queryService.ListUsers),
		unary("GetActivity", queryService.GetActivity),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/proto/v1/user_query.proto",
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ogurasousui/staff-bot/internal/adapters/repository/jsonfile"
	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/ogurasousui/staff-bot/internal/core/hello"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC) }

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveCommand(command, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, command+":"+result)
}

type failingUseCase struct {
	employee.UseCase
	err error
}

func (f failingUseCase) ListEmployees(context.Context) ([]*employee.Employee, error) {
	return nil, f.err
}

func startServer(t *testing.T, commands CommandServiceServer) CommandServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCommandServiceServer(srv, commands)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return NewCommandServiceClient(conn)
}

func newTestHandler(t *testing.T) (*CommandHandler, *recordingObserver) {
	t.Helper()

	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "employees.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	svc := employee.NewService(store, fixedClock{}, nil, employee.Policy{
		AllowedRoleIDs: []string{"hr"},
		DismissRoleIDs: []string{"staff"},
	})
	observer := &recordingObserver{}
	return NewCommandHandler(svc, hello.NewService(), observer, zerolog.Nop()), observer
}

func request(t *testing.T, command string, target map[string]any, options map[string]any) *structpb.Struct {
	t.Helper()

	fields := map[string]any{
		"command":  command,
		"guild_id": "900",
		"invoker": map[string]any{
			"id":           "1",
			"display_name": "Boss",
			"role_ids":     []any{"hr"},
		},
	}
	if target != nil {
		fields["target"] = target
	}
	if options != nil {
		fields["options"] = options
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return in
}

// Struct 上の数値は double のため、色は float64 で受け取る
type testNotice struct {
	Title  string                 `json:"title"`
	Color  float64                `json:"color"`
	Fields []employee.NoticeField `json:"fields"`
}

type testResponse struct {
	Ephemeral     bool           `json:"ephemeral"`
	Content       string         `json:"content"`
	Notices       []testNotice   `json:"notices"`
	RevokeRoleIDs []string       `json:"revoke_role_ids"`
	Employee      *employeeView  `json:"employee"`
	Employees     []employeeView `json:"employees"`
	Warnings      *int           `json:"warnings"`
}

func decodeResponse(t *testing.T, out *structpb.Struct) testResponse {
	t.Helper()

	b, err := out.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp testResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

var alice = map[string]any{"id": "42", "display_name": "Alice", "joined_at": "2023-07-14T18:00:00Z"}

func TestDispatch_HireWarnAndAutoDismiss(t *testing.T) {
	t.Parallel()

	h, observer := newTestHandler(t)
	client := startServer(t, h)
	ctx := context.Background()

	out, err := client.Dispatch(ctx, request(t, "hire", alice, map[string]any{"position": "Clerk", "join_date": "01.02.2024"}))
	if err != nil {
		t.Fatalf("hire returned error: %v", err)
	}
	hired := decodeResponse(t, out)
	if hired.Ephemeral || hired.Employee == nil || hired.Employee.Position != "Clerk" {
		t.Fatalf("unexpected hire response %+v", hired)
	}

	var last testResponse
	for i := 0; i < 3; i++ {
		out, err := client.Dispatch(ctx, request(t, "warn", alice, map[string]any{"reason": "late"}))
		if err != nil {
			t.Fatalf("warn #%d returned error: %v", i+1, err)
		}
		last = decodeResponse(t, out)
	}

	if len(last.Notices) != 2 {
		t.Fatalf("expected warning and dismissal notices, got %+v", last.Notices)
	}
	if last.Notices[1].Color != float64(employee.ColorRed) {
		t.Fatalf("unexpected dismissal color %v", last.Notices[1].Color)
	}
	if len(last.RevokeRoleIDs) != 1 || last.RevokeRoleIDs[0] != "staff" {
		t.Fatalf("expected role revocation, got %v", last.RevokeRoleIDs)
	}

	out, err = client.Dispatch(ctx, request(t, "roster", nil, nil))
	if err != nil {
		t.Fatalf("roster returned error: %v", err)
	}
	roster := decodeResponse(t, out)
	if len(roster.Employees) != 0 || roster.Content != msgEmptyRoster {
		t.Fatalf("expected empty roster, got %+v", roster)
	}

	if len(observer.results) != 5 || observer.results[0] != "hire:ok" {
		t.Fatalf("unexpected observed results %v", observer.results)
	}
}

func TestDispatch_EphemeralReplies(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	client := startServer(t, h)

	outsiderInvoker := map[string]any{"id": "3", "display_name": "Guest", "role_ids": []any{"member"}}

	tests := []struct {
		name    string
		build   func() *structpb.Struct
		content string
	}{
		{
			name: "outside guild",
			build: func() *structpb.Struct {
				in := request(t, "ping", nil, nil)
				delete(in.Fields, "guild_id")
				return in
			},
			content: msgGuildOnly,
		},
		{
			name: "no permission",
			build: func() *structpb.Struct {
				in := request(t, "warn", alice, map[string]any{"reason": "late"})
				invoker, _ := structpb.NewStruct(outsiderInvoker)
				in.Fields["invoker"] = structpb.NewStructValue(invoker)
				return in
			},
			content: msgPermissionDenied,
		},
		{
			name:    "no warnings",
			build:   func() *structpb.Struct { return request(t, "unwarn", alice, nil) },
			content: msgNoWarnings,
		},
		{
			name:    "bad date",
			build:   func() *structpb.Struct { return request(t, "hire", alice, map[string]any{"position": "Clerk", "join_date": "2024-01-01"}) },
			content: msgInvalidDate,
		},
		{
			name:    "bad amount",
			build:   func() *structpb.Struct { return request(t, "unwarn", alice, map[string]any{"amount": "many"}) },
			content: msgInvalidAmount,
		},
		{
			name:    "unknown employee",
			build:   func() *structpb.Struct { return request(t, "info", map[string]any{"id": "404"}, nil) },
			content: msgNotFound,
		},
		{
			name:    "missing target",
			build:   func() *structpb.Struct { return request(t, "dismiss", nil, map[string]any{"reason": "budget"}) },
			content: msgInvalidTarget,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := client.Dispatch(context.Background(), tt.build())
			if err != nil {
				t.Fatalf("Dispatch returned error: %v", err)
			}
			resp := decodeResponse(t, out)
			if !resp.Ephemeral || resp.Content != tt.content {
				t.Fatalf("expected ephemeral %q, got %+v", tt.content, resp)
			}
		})
	}
}

func TestDispatch_PingAndSalary(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	client := startServer(t, h)

	out, err := client.Dispatch(context.Background(), request(t, "ping", nil, nil))
	if err != nil {
		t.Fatalf("ping returned error: %v", err)
	}
	if resp := decodeResponse(t, out); resp.Content != hello.PingMessage || resp.Ephemeral {
		t.Fatalf("unexpected ping response %+v", resp)
	}

	out, err = client.Dispatch(context.Background(), request(t, "salary", alice, map[string]any{"amount": 500}))
	if err != nil {
		t.Fatalf("salary returned error: %v", err)
	}
	resp := decodeResponse(t, out)
	if len(resp.Notices) != 1 || resp.Notices[0].Fields[2].Value != "500 робуксов" {
		t.Fatalf("unexpected salary response %+v", resp)
	}
}

func TestDispatch_StatusErrors(t *testing.T) {
	t.Parallel()

	h, observer := newTestHandler(t)
	client := startServer(t, h)

	_, err := client.Dispatch(context.Background(), request(t, "promote", alice, nil))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for unknown command, got %v", err)
	}
	observer.mu.Lock()
	observed := append([]string(nil), observer.results...)
	observer.mu.Unlock()
	if len(observed) != 1 || observed[0] != "unknown:error" {
		t.Fatalf("unknown commands must be observed under a fixed label, got %v", observed)
	}

	bad := request(t, "warn", map[string]any{"id": "42", "joined_at": "yesterday"}, map[string]any{"reason": "late"})
	_, err = client.Dispatch(context.Background(), bad)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for malformed target, got %v", err)
	}

	failing := NewCommandHandler(failingUseCase{err: errors.New("connection reset")}, hello.NewService(), nil, zerolog.Nop())
	failingClient := startServer(t, failing)
	_, err = failingClient.Dispatch(context.Background(), request(t, "roster", nil, nil))
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal for repository failure, got %v", err)
	}
}

func TestToReply_Cooldown(t *testing.T) {
	t.Parallel()

	msg, ok := toReply(&employee.CooldownError{Command: "warn", Remaining: 4200 * time.Millisecond})
	if !ok || msg != "⏳ Подождите 5 сек. перед повторным использованием команды" {
		t.Fatalf("unexpected cooldown reply %q", msg)
	}

	if _, ok := toReply(errors.New("boom")); ok {
		t.Fatal("expected unknown errors not to become replies")
	}
}

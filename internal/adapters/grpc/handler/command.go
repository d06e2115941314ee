package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/ogurasousui/staff-bot/internal/core/hello"
	"github.com/ogurasousui/staff-bot/internal/platform/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"
)

// unknownCommandLabel は未知のコマンド名の代わりに記録するラベルです。
const unknownCommandLabel = "unknown"

var (
	errUnknownCommand   = errors.New("handler: unknown command")
	errMalformedRequest = errors.New("handler: malformed request")
)

// CommandObserver はコマンドの処理結果を受け取ります。
type CommandObserver interface {
	ObserveCommand(command, result string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveCommand(string, string, time.Duration) {}

// CommandHandler は gRPC 層から HR ユースケースを呼び出すアダプタです。
type CommandHandler struct {
	employees employee.UseCase
	greeter   hello.Greeter
	observer  CommandObserver
	logger    zerolog.Logger
}

var _ CommandServiceServer = (*CommandHandler)(nil)

// NewCommandHandler は CommandHandler を生成します。observer は nil でも構いません。
func NewCommandHandler(employees employee.UseCase, greeter hello.Greeter, observer CommandObserver, logger zerolog.Logger) *CommandHandler {
	if observer == nil {
		observer = noopObserver{}
	}
	return &CommandHandler{employees: employees, greeter: greeter, observer: observer, logger: logger}
}

// Dispatch はコマンドを実行し、ゲートウェイが描画する返信を返します。
func (h *CommandHandler) Dispatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	req, err := decodeRequest(in)
	if err != nil {
		h.observer.ObserveCommand(unknownCommandLabel, metrics.ResultError, time.Since(start))
		return nil, toStatusError(fmt.Errorf("%w: %v", errMalformedRequest, err))
	}

	resp, result, err := h.dispatch(ctx, req)
	label := req.Command
	if errors.Is(err, errUnknownCommand) {
		label = unknownCommandLabel
	}
	h.observer.ObserveCommand(label, result, time.Since(start))
	if err != nil {
		h.logger.Error().Err(err).Str("command", req.Command).Str("invoker_id", req.Invoker.ID).Msg("command failed")
		return nil, toStatusError(err)
	}

	out, err := encodeResponse(resp)
	if err != nil {
		return nil, toStatusError(err)
	}
	return out, nil
}

func (h *CommandHandler) dispatch(ctx context.Context, req *commandRequest) (*commandResponse, string, error) {
	if req.GuildID == "" {
		return &commandResponse{Ephemeral: true, Content: msgGuildOnly}, metrics.ResultRejected, nil
	}

	resp, err := h.execute(ctx, req)
	if err != nil {
		if message, ok := toReply(err); ok {
			return &commandResponse{Ephemeral: true, Content: message}, metrics.ResultRejected, nil
		}
		return nil, metrics.ResultError, err
	}
	return resp, metrics.ResultOK, nil
}

func (h *CommandHandler) execute(ctx context.Context, req *commandRequest) (*commandResponse, error) {
	actor := req.Invoker.actor()
	target, err := req.target()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedRequest, err)
	}

	switch employee.Command(req.Command) {
	case employee.CommandPing:
		return ping(ctx, h.greeter)

	case employee.CommandHire:
		return fromOutcome(h.employees.Hire(ctx, employee.HireInput{
			Actor:    actor,
			Target:   target,
			Position: req.option("position"),
			JoinDate: req.option("join_date"),
		}))

	case employee.CommandWarn:
		return fromOutcome(h.employees.Warn(ctx, employee.WarnInput{
			Actor:  actor,
			Target: target,
			Reason: req.option("reason"),
		}))

	case employee.CommandUnwarn:
		amount, err := req.optionalInt("amount")
		if err != nil {
			return nil, err
		}
		return fromOutcome(h.employees.RemoveWarnings(ctx, employee.RemoveWarningsInput{
			Actor:  actor,
			Target: target,
			Amount: amount,
			Reason: req.option("reason"),
		}))

	case employee.CommandSalary:
		return fromOutcome(h.employees.Salary(ctx, employee.SalaryInput{
			Actor:  actor,
			Target: target,
			Amount: req.option("amount"),
			Date:   req.option("date"),
		}))

	case employee.CommandDismiss:
		return fromOutcome(h.employees.Dismiss(ctx, employee.DismissInput{
			Actor:  actor,
			Target: target,
			Reason: req.option("reason"),
		}))

	case employee.CommandVacation:
		return fromOutcome(h.employees.Vacation(ctx, employee.VacationInput{
			Actor:    actor,
			Target:   target,
			Reason:   req.option("reason"),
			Duration: req.option("duration"),
		}))

	case employee.CommandUpdate:
		return fromOutcome(h.employees.UpdateEmployee(ctx, employee.UpdateEmployeeInput{
			Actor:    actor,
			Target:   target,
			Position: req.optionalString("position"),
			JoinDate: req.optionalString("join_date"),
		}))

	case employee.CommandInfo:
		out, err := h.employees.GetEmployee(ctx, employee.GetEmployeeInput{ID: target.ID})
		if err != nil {
			return nil, err
		}
		resp, _ := fromOutcome(out, nil)
		resp.Ephemeral = true
		return resp, nil

	case employee.CommandRoster:
		employees, err := h.employees.ListEmployees(ctx)
		if err != nil {
			return nil, err
		}
		resp := &commandResponse{Ephemeral: true, Employees: make([]employeeView, 0, len(employees))}
		for _, e := range employees {
			resp.Employees = append(resp.Employees, *toView(e))
		}
		if len(resp.Employees) == 0 {
			resp.Content = msgEmptyRoster
		}
		return resp, nil

	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, req.Command)
	}
}

func fromOutcome(out *employee.Outcome, err error) (*commandResponse, error) {
	if err != nil {
		return nil, err
	}
	warnings := out.Warnings
	return &commandResponse{
		Notices:       out.Notices,
		RevokeRoleIDs: out.RevokeRoleIDs,
		Employee:      toView(out.Employee),
		Warnings:      &warnings,
	}, nil
}

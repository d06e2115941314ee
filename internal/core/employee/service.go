package employee

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

// localTransactionManager はトランザクションを持たないリポジトリ向けに、
// 読み取り→書き込みの一連の処理をプロセス内で直列化します。
type localTransactionManager struct {
	mu sync.Mutex
}

func (*localTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (m *localTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, Notice) error { return nil }

const tracerName = "github.com/ogurasousui/staff-bot/internal/core/employee"

// Service は HR コマンドのユースケースをまとめます。
type Service struct {
	repo     Repository
	clock    Clock
	tx       TransactionManager
	policy   Policy
	notifier Notifier
	limiter  Limiter
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// UseCase は HR コマンドの公開インターフェースです。
type UseCase interface {
	Hire(ctx context.Context, in HireInput) (*Outcome, error)
	Warn(ctx context.Context, in WarnInput) (*Outcome, error)
	RemoveWarnings(ctx context.Context, in RemoveWarningsInput) (*Outcome, error)
	Dismiss(ctx context.Context, in DismissInput) (*Outcome, error)
	Salary(ctx context.Context, in SalaryInput) (*Outcome, error)
	Vacation(ctx context.Context, in VacationInput) (*Outcome, error)
	UpdateEmployee(ctx context.Context, in UpdateEmployeeInput) (*Outcome, error)
	GetEmployee(ctx context.Context, in GetEmployeeInput) (*Outcome, error)
	ListEmployees(ctx context.Context) ([]*Employee, error)
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithNotifier は DM 通知の配送先を設定します。
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLimiter はクールダウンの実装を設定します。未設定の場合クールダウンは無効です。
func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithLogger はロガーを設定します。
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager, policy Policy, opts ...Option) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = &localTransactionManager{}
	}
	s := &Service{
		repo:     repo,
		clock:    clock,
		tx:       tx,
		policy:   policy.normalized(),
		notifier: noopNotifier{},
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HireInput は採用時の入力です。
type HireInput struct {
	Actor    Actor
	Target   Target
	Position string
	// JoinDate は DD.MM.YYYY 形式です。空の場合は当日になります。
	JoinDate string
}

// WarnInput は警告付与時の入力です。
type WarnInput struct {
	Actor  Actor
	Target Target
	Reason string
}

// RemoveWarningsInput は警告取り消し時の入力です。
type RemoveWarningsInput struct {
	Actor  Actor
	Target Target
	// Amount が nil の場合は 1 件取り消します。
	Amount *int
	Reason string
}

// DismissInput は解雇時の入力です。
type DismissInput struct {
	Actor  Actor
	Target Target
	Reason string
}

// SalaryInput は給与支払い通知の入力です。
type SalaryInput struct {
	Actor  Actor
	Target Target
	Amount string
	Date   string
}

// VacationInput は休暇通知の入力です。
type VacationInput struct {
	Actor    Actor
	Target   Target
	Reason   string
	Duration string
}

// UpdateEmployeeInput は名簿更新時の入力です。
type UpdateEmployeeInput struct {
	Actor    Actor
	Target   Target
	Position *string
	JoinDate *string
}

// GetEmployeeInput は名簿参照時の入力です。
type GetEmployeeInput struct {
	ID string
}

// Outcome はコマンドの実行結果です。Notices は公開チャンネルへの返信順に並びます。
type Outcome struct {
	Notices       []Notice
	RevokeRoleIDs []string
	Employee      *Employee
	Warnings      int
}

// Hire は新しい社員を名簿に登録します。
func (s *Service) Hire(ctx context.Context, in HireInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandHire)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	position := Sanitize(in.Position, s.policy.MaxFieldLength)
	if position == "" {
		return nil, ErrInvalidPosition
	}
	joinDate, err := s.normalizeJoinDate(in.JoinDate)
	if err != nil {
		return nil, err
	}
	name := Sanitize(in.Target.DisplayName, s.policy.MaxFieldLength)
	if name == "" {
		name = id
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandHire); err != nil {
		return nil, err
	}

	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetEmployee(txCtx, id)
		if err != nil && !isNotFound(err) {
			return err
		}
		if existing != nil && existing.Active {
			return ErrAlreadyEmployed
		}
		// 解雇済みレコードへの再採用は上書きされ、警告履歴は復元しない
		if err := s.repo.AddEmployee(txCtx, id, name, position, joinDate); err != nil {
			return err
		}
		out = &Outcome{Employee: &Employee{ID: id, Name: name, Position: position, JoinDate: joinDate, Active: true}}
		return nil
	}); err != nil {
		return nil, err
	}

	notice := Notice{Title: "📋 Приём на работу", Color: ColorBlue, Footer: "Принял: " + in.Actor.DisplayName}
	notice.add("Работник", mention(id), true).
		add("Должность", position, true).
		add("Дата приёма", joinDate, true)
	out.Notices = []Notice{notice}

	s.deliver(ctx, CommandHire, id, out.Notices)
	return out, nil
}

// Warn は警告を 1 件付与し、上限に達した場合は自動的に解雇します。
func (s *Service) Warn(ctx context.Context, in WarnInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandWarn)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	reason := Sanitize(in.Reason, s.policy.MaxFieldLength)
	if reason == "" {
		return nil, ErrInvalidReason
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandWarn); err != nil {
		return nil, err
	}

	today := s.today()
	maxWarnings := s.policy.MaxWarnings

	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetWarnings(txCtx, id)
		if err != nil {
			return err
		}
		count := current + 1
		if err := s.repo.SetWarnings(txCtx, id, count); err != nil {
			return err
		}

		warning := Notice{Title: "⚠️ Выговор работника", Color: ColorRed}
		warning.add("Работник", mention(id), true).
			add("Причина", reason, false).
			add("Дата", today, true).
			add("Выговоры", fmt.Sprintf("%d/%d", count, maxWarnings), true)

		if count < maxWarnings {
			out = &Outcome{Notices: []Notice{warning}, Warnings: count}
			return nil
		}

		start, err := s.employmentStart(txCtx, id, in.Target)
		if err != nil {
			return err
		}
		if err := s.repo.RemoveEmployee(txCtx, id); err != nil {
			return err
		}
		if err := s.repo.RemoveWarnings(txCtx, id); err != nil {
			return err
		}

		dismissal := Notice{
			Title:       "🚪 Автоматическое увольнение работника",
			Description: "*Причина: достигнуто максимальное количество выговоров*",
			Color:       ColorRed,
			Footer:      "Автоматическое увольнение",
		}
		dismissal.add("Работник", mention(id), true).
			add("Период работы", fmt.Sprintf("%s - %s", start, today), false).
			add("Количество выговоров", fmt.Sprintf("%d/%d", maxWarnings, maxWarnings), true)

		out = &Outcome{
			Notices:       []Notice{warning, dismissal},
			RevokeRoleIDs: append([]string(nil), s.policy.DismissRoleIDs...),
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if len(out.Notices) > 1 {
		s.logger.Info().Str("employee_id", id).Int("max_warnings", maxWarnings).Msg("employee dismissed automatically")
	}

	s.deliver(ctx, CommandWarn, id, out.Notices)
	return out, nil
}

// RemoveWarnings は警告を指定件数取り消します。件数は 0 を下回りません。
func (s *Service) RemoveWarnings(ctx context.Context, in RemoveWarningsInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandUnwarn)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	amount := 1
	if in.Amount != nil {
		amount = *in.Amount
	}
	if amount < 1 {
		return nil, ErrInvalidAmount
	}

	reason := Sanitize(in.Reason, s.policy.MaxFieldLength)
	if reason == "" {
		reason = "Не указана"
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandUnwarn); err != nil {
		return nil, err
	}

	var removed int
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetWarnings(txCtx, id)
		if err != nil {
			return err
		}
		if current <= 0 {
			return ErrNoWarnings
		}

		remaining := max(0, current-amount)
		removed = current - remaining
		if err := s.repo.SetWarnings(txCtx, id, remaining); err != nil {
			return err
		}
		out = &Outcome{Warnings: remaining}
		return nil
	}); err != nil {
		return nil, err
	}

	notice := Notice{Title: "✅ Снятие выговора", Color: ColorGreen}
	notice.add("Работник", mention(id), true).
		add("Снято выговоров", fmt.Sprint(removed), true).
		add("Текущее количество", fmt.Sprintf("%d/%d", out.Warnings, s.policy.MaxWarnings), true).
		add("Причина снятия", reason, false).
		add("Дата", s.today(), true)
	out.Notices = []Notice{notice}

	s.deliver(ctx, CommandUnwarn, id, out.Notices)
	return out, nil
}

// Dismiss は社員を解雇します。レコードは無効化されるだけで削除されません。
func (s *Service) Dismiss(ctx context.Context, in DismissInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandDismiss)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	reason := Sanitize(in.Reason, s.policy.MaxFieldLength)
	if reason == "" {
		return nil, ErrInvalidReason
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandDismiss); err != nil {
		return nil, err
	}

	var start string
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		var err error
		if start, err = s.employmentStart(txCtx, id, in.Target); err != nil {
			return err
		}
		if err := s.repo.RemoveWarnings(txCtx, id); err != nil {
			return err
		}
		return s.repo.RemoveEmployee(txCtx, id)
	}); err != nil {
		return nil, err
	}

	notice := Notice{Title: "🚪 Увольнение работника", Color: ColorOrange, Footer: "Уволил: " + in.Actor.DisplayName}
	notice.add("Работник", mention(id), true).
		add("Период работы", fmt.Sprintf("%s - %s", start, s.today()), false).
		add("Причина", reason, false)

	out = &Outcome{
		Notices:       []Notice{notice},
		RevokeRoleIDs: append([]string(nil), s.policy.DismissRoleIDs...),
	}

	s.deliver(ctx, CommandDismiss, id, out.Notices)
	return out, nil
}

// Salary は給与支払いを通知します。名簿は変更しません。
func (s *Service) Salary(ctx context.Context, in SalaryInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandSalary)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	amount := Sanitize(in.Amount, s.policy.MaxFieldLength)
	if amount == "" {
		return nil, ErrInvalidAmount
	}
	date := Sanitize(in.Date, s.policy.MaxFieldLength)
	if date == "" {
		date = s.today()
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandSalary); err != nil {
		return nil, err
	}

	notice := Notice{Title: "💰 Выплата", Color: ColorGreen, Footer: "Выдал: " + in.Actor.DisplayName}
	notice.add("Работник", mention(id), true).
		add("Дата выдачи", date, true).
		add("Сумма", amount+" робуксов", true)

	out = &Outcome{Notices: []Notice{notice}}
	s.deliver(ctx, CommandSalary, id, out.Notices)
	return out, nil
}

// Vacation は休暇を通知します。
func (s *Service) Vacation(ctx context.Context, in VacationInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandVacation)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	reason := Sanitize(in.Reason, s.policy.MaxFieldLength)
	if reason == "" {
		return nil, ErrInvalidReason
	}
	duration := Sanitize(in.Duration, s.policy.MaxFieldLength)
	if duration == "" {
		return nil, ErrInvalidDuration
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandVacation); err != nil {
		return nil, err
	}

	notice := Notice{Title: "🏖️ Отпуск работника", Color: ColorCyan, Footer: "Оформил: " + in.Actor.DisplayName}
	notice.add("Работник", mention(id), true).
		add("Причина", reason, false).
		add("Срок", duration, true).
		add("Дата оформления", s.today(), true)

	out = &Outcome{Notices: []Notice{notice}}
	s.deliver(ctx, CommandVacation, id, out.Notices)
	return out, nil
}

// UpdateEmployee は役職または入社日を変更します。
func (s *Service) UpdateEmployee(ctx context.Context, in UpdateEmployeeInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandUpdate)
	defer func() { endSpan(span, err) }()

	id, err := s.authorize(in.Actor, in.Target)
	if err != nil {
		return nil, err
	}

	var fields UpdateFields
	if in.Position != nil {
		position := Sanitize(*in.Position, s.policy.MaxFieldLength)
		if position == "" {
			return nil, ErrInvalidPosition
		}
		fields.Position = &position
	}
	if in.JoinDate != nil {
		joinDate, err := s.parseJoinDate(*in.JoinDate)
		if err != nil {
			return nil, err
		}
		fields.JoinDate = &joinDate
	}
	if fields.IsEmpty() {
		return nil, ErrEmptyUpdate
	}

	if err := s.checkCooldown(ctx, in.Actor, CommandUpdate); err != nil {
		return nil, err
	}

	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetEmployee(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateEmployee(txCtx, id, fields); err != nil {
			return err
		}
		if fields.Position != nil {
			existing.Position = *fields.Position
		}
		if fields.JoinDate != nil {
			existing.JoinDate = *fields.JoinDate
		}
		out = &Outcome{Employee: existing}
		return nil
	}); err != nil {
		return nil, err
	}

	notice := Notice{Title: "✏️ Изменение данных работника", Color: ColorBlue, Footer: "Изменил: " + in.Actor.DisplayName}
	notice.add("Работник", mention(id), true).
		add("Должность", out.Employee.Position, true).
		add("Дата приёма", out.Employee.JoinDate, true)
	out.Notices = []Notice{notice}

	s.deliver(ctx, CommandUpdate, id, out.Notices)
	return out, nil
}

// GetEmployee は名簿のレコードと現在の警告数を返します。
func (s *Service) GetEmployee(ctx context.Context, in GetEmployeeInput) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, CommandInfo)
	defer func() { endSpan(span, err) }()

	id, err := NormalizeID(in.ID)
	if err != nil {
		return nil, err
	}

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.GetEmployee(txCtx, id)
		if err != nil {
			return err
		}
		warnings, err := s.repo.GetWarnings(txCtx, id)
		if err != nil {
			return err
		}
		out = &Outcome{Employee: found, Warnings: warnings}
		return nil
	}); err != nil {
		return nil, err
	}

	status := "Работает"
	if !out.Employee.Active {
		status = "Уволен"
	}
	notice := Notice{Title: "🪪 Карточка работника", Color: ColorBlue}
	notice.add("Работник", mention(id), true).
		add("Имя", out.Employee.Name, true).
		add("Должность", out.Employee.Position, true).
		add("Дата приёма", out.Employee.JoinDate, true).
		add("Статус", status, true).
		add("Выговоры", fmt.Sprintf("%d/%d", out.Warnings, s.policy.MaxWarnings), true)
	out.Notices = []Notice{notice}

	return out, nil
}

// ListEmployees は在籍中の社員一覧を返します。
func (s *Service) ListEmployees(ctx context.Context) (employees []*Employee, err error) {
	ctx, span := s.startSpan(ctx, CommandRoster)
	defer func() { endSpan(span, err) }()

	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.GetAllEmployees(txCtx)
		if err != nil {
			return err
		}
		employees = found
		return nil
	}); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Service) authorize(actor Actor, target Target) (string, error) {
	id, err := NormalizeID(target.ID)
	if err != nil {
		return "", fmt.Errorf("target: %w", err)
	}
	if !s.policy.Authorized(actor) {
		return "", ErrPermissionDenied
	}
	return id, nil
}

func (s *Service) checkCooldown(ctx context.Context, actor Actor, cmd Command) error {
	if s.limiter == nil {
		return nil
	}
	remaining, err := s.limiter.Allow(ctx, actor.ID, string(cmd), s.policy.Cooldown(cmd))
	if err != nil {
		// クールダウンの障害でコマンド自体は止めない
		s.logger.Warn().Err(err).Str("command", string(cmd)).Msg("cooldown check failed")
		return nil
	}
	if remaining > 0 {
		return &CooldownError{Command: string(cmd), Remaining: remaining}
	}
	return nil
}

// deliver は通知を対象者へ DM で送ります。失敗はログに残すだけでコマンドの結果には影響しません。
func (s *Service) deliver(ctx context.Context, cmd Command, recipientID string, notices []Notice) {
	for _, notice := range notices {
		if err := s.notifier.Notify(ctx, recipientID, notice); err != nil {
			s.logger.Warn().
				Err(err).
				Str("command", string(cmd)).
				Str("recipient_id", recipientID).
				Msg("direct notification not delivered")
		}
	}
}

func (s *Service) employmentStart(ctx context.Context, id string, target Target) (string, error) {
	found, err := s.repo.GetEmployee(ctx, id)
	if err != nil && !isNotFound(err) {
		return "", err
	}
	if found != nil && found.JoinDate != "" {
		return found.JoinDate, nil
	}
	if target.JoinedAt != nil {
		return target.JoinedAt.Format(JoinDateLayout), nil
	}
	return "—", nil
}

func (s *Service) normalizeJoinDate(raw string) (string, error) {
	if Sanitize(raw, s.policy.MaxFieldLength) == "" {
		return s.today(), nil
	}
	return s.parseJoinDate(raw)
}

// parseJoinDate は DD.MM.YYYY 形式の入社日を検証します。空の値は ErrInvalidDate です。
func (s *Service) parseJoinDate(raw string) (string, error) {
	value := Sanitize(raw, s.policy.MaxFieldLength)
	if value == "" {
		return "", fmt.Errorf("%w: join date is empty", ErrInvalidDate)
	}
	if _, err := time.Parse(JoinDateLayout, value); err != nil {
		return "", fmt.Errorf("%w: expected DD.MM.YYYY", ErrInvalidDate)
	}
	return value, nil
}

func (s *Service) today() string {
	return s.clock.Now().Format(JoinDateLayout)
}

func (s *Service) startSpan(ctx context.Context, cmd Command) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "employee."+strings.ToLower(string(cmd)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrEmployeeNotFound)
}

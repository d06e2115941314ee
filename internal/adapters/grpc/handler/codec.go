package handler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// member はゲートウェイが送るサーバーメンバーの情報です。
type member struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	RoleIDs       []string `json:"role_ids"`
	Administrator bool     `json:"administrator"`
	// JoinedAt は RFC 3339 形式のサーバー参加日時です。
	JoinedAt string `json:"joined_at"`
}

type commandRequest struct {
	Command string         `json:"command"`
	GuildID string         `json:"guild_id"`
	Invoker member         `json:"invoker"`
	Target  *member        `json:"target"`
	Options map[string]any `json:"options"`
}

type employeeView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
	JoinDate string `json:"join_date"`
	Active   bool   `json:"active"`
}

type commandResponse struct {
	Ephemeral     bool              `json:"ephemeral"`
	Content       string            `json:"content,omitempty"`
	Notices       []employee.Notice `json:"notices,omitempty"`
	RevokeRoleIDs []string          `json:"revoke_role_ids,omitempty"`
	Employee      *employeeView     `json:"employee,omitempty"`
	Employees     []employeeView    `json:"employees,omitempty"`
	Warnings      *int              `json:"warnings,omitempty"`
}

func decodeRequest(in *structpb.Struct) (*commandRequest, error) {
	if in == nil {
		return nil, fmt.Errorf("request is required")
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var req commandRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	return &req, nil
}

func encodeResponse(resp *commandResponse) (*structpb.Struct, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (m member) actor() employee.Actor {
	return employee.Actor{
		ID:            m.ID,
		DisplayName:   m.DisplayName,
		RoleIDs:       m.RoleIDs,
		Administrator: m.Administrator,
	}
}

func (r *commandRequest) target() (employee.Target, error) {
	if r.Target == nil {
		return employee.Target{}, nil
	}
	t := employee.Target{ID: r.Target.ID, DisplayName: r.Target.DisplayName}
	if r.Target.JoinedAt != "" {
		joined, err := time.Parse(time.RFC3339, r.Target.JoinedAt)
		if err != nil {
			return employee.Target{}, fmt.Errorf("target.joined_at: %w", err)
		}
		t.JoinedAt = &joined
	}
	return t, nil
}

// option は文字列オプションを返します。数値で渡された場合も文字列化します。
func (r *commandRequest) option(name string) string {
	v, ok := r.Options[name]
	if !ok || v == nil {
		return ""
	}
	switch tv := v.(type) {
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	default:
		return fmt.Sprint(tv)
	}
}

// optionalString は指定されていないオプションを nil として返します。
func (r *commandRequest) optionalString(name string) *string {
	if _, ok := r.Options[name]; !ok {
		return nil
	}
	v := r.option(name)
	return &v
}

// optionalInt は整数オプションを返します。指定されていなければ nil です。
func (r *commandRequest) optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(r.option(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", employee.ErrInvalidAmount, name)
	}
	return &n, nil
}

func toView(e *employee.Employee) *employeeView {
	if e == nil {
		return nil
	}
	return &employeeView{ID: e.ID, Name: e.Name, Position: e.Position, JoinDate: e.JoinDate, Active: e.Active}
}

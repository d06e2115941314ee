package employee

import "time"

// JoinDateLayout は入社日の表記 (DD.MM.YYYY) です。
const JoinDateLayout = "02.01.2006"

// Employee は社員名簿のレコードです。
type Employee struct {
	ID       string
	Name     string
	Position string
	JoinDate string
	// Active が false のレコードは解雇済みですが、履歴として保持されます。
	Active bool
}

// Clone はレコードのコピーを返します。
func (e *Employee) Clone() *Employee {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// UpdateFields は更新可能な項目だけを列挙した部分更新です。nil の項目は変更しません。
type UpdateFields struct {
	Position *string
	JoinDate *string
}

// IsEmpty は変更対象の項目が一つもなければ true を返します。
func (f UpdateFields) IsEmpty() bool {
	return f.Position == nil && f.JoinDate == nil
}

// Actor はコマンドを実行したメンバーです。
type Actor struct {
	ID            string
	DisplayName   string
	RoleIDs       []string
	Administrator bool
}

// Target はコマンドの対象メンバーです。
type Target struct {
	ID          string
	DisplayName string
	// JoinedAt はサーバーへの参加日時です。名簿に入社日がない場合の勤務期間に使います。
	JoinedAt *time.Time
}

package employee

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxFieldLength は自由入力項目の既定の最大文字数です。
const DefaultMaxFieldLength = 200

var newlineReplacer = strings.NewReplacer("\r", "", "\n", " ")

// Sanitize は任意の値を文字列化し、改行を除去して前後の空白を取り除き、maxLen 文字に切り詰めます。
// maxLen が 0 以下の場合は DefaultMaxFieldLength を使います。
func Sanitize(value any, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxFieldLength
	}

	var text string
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		text = v
	case fmt.Stringer:
		text = v.String()
	default:
		text = fmt.Sprint(v)
	}

	text = strings.TrimSpace(newlineReplacer.Replace(text))

	runes := []rune(text)
	if len(runes) > maxLen {
		text = strings.TrimSpace(string(runes[:maxLen]))
	}
	return text
}

// NormalizeID はプラットフォームのユーザー ID を保存キーとして安定した文字列に変換します。
// 数値と文字列のどちらで渡されても同じキーになります。
func NormalizeID(raw any) (string, error) {
	var id string
	switch v := raw.(type) {
	case string:
		id = strings.TrimSpace(v)
	case int:
		id = strconv.FormatInt(int64(v), 10)
	case int64:
		id = strconv.FormatInt(v, 10)
	case uint64:
		id = strconv.FormatUint(v, 10)
	case fmt.Stringer:
		id = strings.TrimSpace(v.String())
	default:
		return "", ErrInvalidID
	}

	if id == "" {
		return "", ErrInvalidID
	}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		// 先頭ゼロなどの表記揺れを吸収する
		id = strconv.FormatUint(n, 10)
	}
	return id, nil
}

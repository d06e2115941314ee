package employee

import "fmt"

// Color は通知の色です。
type Color int

const (
	ColorRed    Color = 0xff0000
	ColorGreen  Color = 0x00ff00
	ColorOrange Color = 0xff6b00
	ColorCyan   Color = 0x00ffff
	ColorBlue   Color = 0x3498db
)

// NoticeField は通知の一項目です。
type NoticeField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Notice は公開チャンネルと DM の両方に送られる構造化通知です。描画はゲートウェイが行います。
type Notice struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Color       Color         `json:"color"`
	Fields      []NoticeField `json:"fields"`
	Footer      string        `json:"footer,omitempty"`
}

func (n *Notice) add(name, value string, inline bool) *Notice {
	n.Fields = append(n.Fields, NoticeField{Name: name, Value: value, Inline: inline})
	return n
}

func mention(id string) string {
	return fmt.Sprintf("<@%s>", id)
}

package profile

import (
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// timestampLayouts はバックエンドが返しうる日時形式。
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dateOnlyLayout,
}

// DateOnly は日時文字列を日付入力欄向けの "YYYY-MM-DD" に変換する。
// 解析できない値は空文字列になる。タイムゾーン付きの値も記載された暦日をそのまま使う。
func DateOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() <= 1 {
				// .NETの既定値 0001-01-01 は未入力扱い
				return ""
			}
			return t.Format(dateOnlyLayout)
		}
	}
	return ""
}

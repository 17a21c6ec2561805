package circular

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/security"
)

// Attachment は表示用の添付ファイル情報。URLはゲートウェイ経由のパス。
type Attachment struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// View はブラウザに返すお知らせ。Description はサニタイズ済みHTML。
type View struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Excerpt     string       `json:"excerpt"`
	PublishDate string       `json:"publishDate"`
	Category    string       `json:"category"`
	IsActive    bool         `json:"isActive"`
	Attachments []Attachment `json:"attachments"`
}

// Presenter はバックエンドのお知らせを表示用に変換する。
type Presenter struct {
	sanitizer  security.HTMLSanitizer
	excerptLen int
}

// NewPresenter はPresenterを生成する。
func NewPresenter(sanitizer security.HTMLSanitizer) *Presenter {
	return &Presenter{sanitizer: sanitizer, excerptLen: DefaultExcerptLength}
}

// View は1件のお知らせを変換する。
func (p *Presenter) View(c model.Circular) View {
	id := c.ID.String()
	attachments := make([]Attachment, 0, len(c.Attachments))
	for i, raw := range c.Attachments {
		attachments = append(attachments, Attachment{
			Index: i,
			Name:  attachmentName(raw, i),
			URL:   fmt.Sprintf("/api/circulars/%s/attachments/%d", url.PathEscape(id), i),
		})
	}

	return View{
		ID:          id,
		Title:       strings.TrimSpace(c.Title),
		Description: p.sanitizer.Sanitize(c.Description),
		Excerpt:     Excerpt(c.Description, p.excerptLen),
		PublishDate: c.PublishDate,
		Category:    c.Category,
		IsActive:    c.IsActive,
		Attachments: attachments,
	}
}

// Views は一覧を変換する。
func (p *Presenter) Views(circulars []model.Circular) []View {
	views := make([]View, 0, len(circulars))
	for _, c := range circulars {
		views = append(views, p.View(c))
	}
	return views
}

// publishLayouts はバックエンドが返す公開日の形式。
var publishLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParsePublishDate は公開日を解釈する。タイムゾーンのない値はUTCとみなす。
func ParsePublishDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range publishLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func attachmentName(raw string, index int) string {
	if u, err := url.Parse(raw); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			if unescaped, err := url.PathUnescape(name); err == nil {
				return unescaped
			}
			return name
		}
	}
	return fmt.Sprintf("attachment-%d", index+1)
}

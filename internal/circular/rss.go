package circular

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// Channel はRSSチャンネルの情報。Link はポータルのURL。
type Channel struct {
	Title       string
	Link        string
	Description string
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string  `xml:"title"`
	Link        string  `xml:"link"`
	GUID        rssGUID `xml:"guid"`
	Category    string  `xml:"category,omitempty"`
	PubDate     string  `xml:"pubDate,omitempty"`
	Description string  `xml:"description"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// WriteRSS は有効なお知らせをRSS 2.0として書き出す。無効なお知らせは含めない。
func WriteRSS(w io.Writer, ch Channel, views []View, now time.Time) error {
	base := strings.TrimRight(ch.Link, "/")

	doc := rssDocument{
		Version: "2.0",
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   ch.Description,
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
		},
	}

	for _, v := range views {
		if !v.IsActive {
			continue
		}
		item := rssItem{
			Title:       v.Title,
			Link:        fmt.Sprintf("%s/circulars/%s", base, url.PathEscape(v.ID)),
			GUID:        rssGUID{IsPermaLink: false, Value: "circular-" + v.ID},
			Category:    v.Category,
			Description: v.Description,
		}
		if t, ok := ParsePublishDate(v.PublishDate); ok {
			item.PubDate = t.UTC().Format(time.RFC1123Z)
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write rss header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode rss: %w", err)
	}
	return enc.Close()
}

// Package circular はお知らせの表示用データ、RSS出力、添付ファイル取得を提供する。
package circular

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultExcerptLength は一覧表示用の抜粋の最大文字数。
const DefaultExcerptLength = 160

// Excerpt はHTML本文からプレーンテキストの抜粋を作る。
// script と style の中身は無視し、空白は1つにまとめる。
// maxRunes を超える場合は単語境界で切り詰めて "…" を付ける。
func Excerpt(body string, maxRunes int) string {
	if body == "" || maxRunes <= 0 {
		return ""
	}

	var sb strings.Builder
	skipDepth := 0
	tokenizer := html.NewTokenizer(strings.NewReader(body))

loop:
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			// io.EOF を含め、ここで終了する
			break loop
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skipDepth++
			}
			if isBlock(a) {
				sb.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if isBlock(atom.Lookup(name)) {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skipDepth > 0 {
				skipDepth--
			}
			if isBlock(a) {
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}

	text := strings.Join(strings.Fields(sb.String()), " ")
	return truncate(text, maxRunes)
}

func truncate(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Br, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Td, atom.Th,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Hr, atom.Table:
		return true
	}
	return false
}

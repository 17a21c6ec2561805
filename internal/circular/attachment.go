package circular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/security"
)

// 添付ファイル取得のエラー
var (
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrAttachmentUpstream = errors.New("attachment upstream error")
)

// File は取得した添付ファイル。
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Fetcher はお知らせの添付ファイルを取得する。
// 相対URLはバックエンドのベースURLで解決し、検証済みのURLだけを取得する。
type Fetcher struct {
	client    *http.Client
	validator security.URLValidator
	base      *url.URL
	maxSize   int64
}

// NewFetcher はFetcherを生成する。
func NewFetcher(client *http.Client, validator security.URLValidator, baseURL string, maxSize int64) (*Fetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid attachment base url: %w", err)
	}
	return &Fetcher{client: client, validator: validator, base: base, maxSize: maxSize}, nil
}

// Resolve はお知らせの index 番目の添付ファイルの絶対URLを返す。
func (f *Fetcher) Resolve(c model.Circular, index int) (string, error) {
	if index < 0 || index >= len(c.Attachments) {
		return "", ErrAttachmentNotFound
	}
	raw := strings.TrimSpace(c.Attachments[index])
	if raw == "" {
		return "", ErrAttachmentNotFound
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", security.ErrBlockedURL, err)
	}
	return f.base.ResolveReference(ref).String(), nil
}

// Fetch は添付ファイルを取得する。サイズ上限を超える場合は ErrAttachmentTooLarge を返す。
func (f *Fetcher) Fetch(ctx context.Context, c model.Circular, index int) (*File, error) {
	target, err := f.Resolve(c, index)
	if err != nil {
		return nil, err
	}
	if err := f.validator.ValidateURL(target); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrAttachmentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrAttachmentUpstream, resp.StatusCode)
	}
	if resp.ContentLength > f.maxSize {
		return nil, ErrAttachmentTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentUpstream, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, ErrAttachmentTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err != nil || mt == "" {
		contentType = http.DetectContentType(body)
	}

	return &File{
		Name:        attachmentName(c.Attachments[index], index),
		ContentType: contentType,
		Body:        body,
	}, nil
}

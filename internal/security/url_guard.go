package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL はURLがセキュリティポリシーで拒否された場合のエラー。
var ErrBlockedURL = errors.New("url blocked by security policy")

// URLValidator は外部URLへのリクエスト前の静的検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// blockedPrefixes は添付ファイル取得で拒否するアドレス範囲。
// プライベート・ループバック・リンクローカル（メタデータIPを含む）・ULA。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// AttachmentGuard は添付ファイル取得用のSSRF防止機能。
type AttachmentGuard struct {
	timeout time.Duration
}

// NewAttachmentGuard はAttachmentGuardを生成する。
func NewAttachmentGuard(timeout time.Duration) *AttachmentGuard {
	return &AttachmentGuard{timeout: timeout}
}

// Client はSSRF防止付きのHTTPクライアントを返す。
// safeurlがDNS解決後の接続先IPをDialerで検証するため、DNS再バインディングも防げる。
func (g *AttachmentGuard) Client() *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(g.timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL はDNS解決を伴わない事前検証を行う。
func (g *AttachmentGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty url", ErrBlockedURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrBlockedURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: host %s", ErrBlockedURL, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr) {
				return fmt.Errorf("%w: address %s", ErrBlockedURL, addr)
			}
		}
	}
	return nil
}

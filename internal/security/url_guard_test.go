package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAttachmentGuard_ClientTimeout(t *testing.T) {
	guard := NewAttachmentGuard(7 * time.Second)
	client := guard.Client()
	if client.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 7*time.Second)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected a guarded transport")
	}
}

// TestAttachmentGuard_ClientBlocksLoopback はhttptestサーバー(127.0.0.1)への接続が拒否されることを検証する。
func TestAttachmentGuard_ClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewAttachmentGuard(5 * time.Second).Client()
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected loopback request to be blocked")
	}
}

func TestAttachmentGuard_ValidateURL(t *testing.T) {
	guard := NewAttachmentGuard(time.Second)

	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://iub.edu.bd/files/notice.pdf", true},
		{"http://cdn.example.com/a.pdf", true},
		{"https://93.184.216.34/a.pdf", true},
		{"", false},
		{"ftp://files.example.com/a.pdf", false},
		{"file:///etc/passwd", false},
		{"https:///nohost", false},
		{"http://localhost/a.pdf", false},
		{"http://api.localhost/a.pdf", false},
		{"http://127.0.0.1/a.pdf", false},
		{"http://10.1.2.3/a.pdf", false},
		{"http://172.20.0.1/a.pdf", false},
		{"http://192.168.1.10/a.pdf", false},
		{"http://169.254.169.254/latest/meta-data", false},
		{"http://[::1]/a.pdf", false},
		{"http://[fd00::1]/a.pdf", false},
		{"http://[::ffff:127.0.0.1]/a.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if tt.allowed && err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
			}
			if !tt.allowed {
				if err == nil {
					t.Errorf("ValidateURL(%q) = nil, want error", tt.url)
				} else if !errors.Is(err, ErrBlockedURL) {
					t.Errorf("ValidateURL(%q) error %v does not wrap ErrBlockedURL", tt.url, err)
				}
			}
		})
	}
}

// Package backend はリモートREST APIのクライアントを提供する。
// すべての呼び出しはJSONで行い、トークンがあればBearerヘッダーを付与する。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/model"
)

// maxResponseSize はレスポンスボディの読み取り上限（4MB）。
const maxResponseSize = 4 << 20

// TokenSource は認証トークンの供給元。セッションストアが実装する。
type TokenSource interface {
	// Token は現在のトークンを返す。未ログインの場合は空文字列。
	Token() string
	// ClearToken は保存済みトークンを破棄する。401レスポンスで呼ばれる。
	ClearToken()
}

// noTokens はトークンを持たないTokenSource。
type noTokens struct{}

func (noTokens) Token() string { return "" }
func (noTokens) ClearToken()   {}

// Client はバックエンドAPIのクライアント。
// HTTPクライアントとメトリクスはワークスペース間で共有し、TokenSourceだけを差し替えて使う。
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientを生成する。
// baseURLはプレフィックスを含むAPIのルート、timeoutは全呼び出しに一律適用される。
func NewClient(baseURL string, timeout time.Duration, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     noTokens{},
		metrics:    collector,
		logger:     logger,
	}
}

// WithTokens は tokens をトークン供給元とするClientのコピーを返す。
func (c *Client) WithTokens(tokens TokenSource) *Client {
	cp := *c
	if tokens == nil {
		tokens = noTokens{}
	}
	cp.tokens = tokens
	return &cp
}

// Authenticate は POST /Auth/authentication を呼び出す。
func (c *Client) Authenticate(ctx context.Context, userName, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/Auth/authentication", AuthRequest{UserName: userName, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register は POST /Auth/registration を呼び出す。
func (c *Client) Register(ctx context.Context, req RegistrationRequest) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/Auth/registration", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword は POST /Auth/change-password を呼び出す。
func (c *Client) ChangePassword(ctx context.Context, data model.ChangePasswordData) error {
	return c.do(ctx, http.MethodPost, "/Auth/change-password", data, nil)
}

// ForgotPassword は POST /auth/forgot-password を呼び出す。
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword は POST /auth/reset-password を呼び出す。
func (c *Client) ResetPassword(ctx context.Context, data model.ResetPasswordData) error {
	return c.do(ctx, http.MethodPost, "/auth/reset-password", data, nil)
}

// ValidateResetToken は POST /auth/validate-reset-token を呼び出し、トークンの有効性を返す。
func (c *Client) ValidateResetToken(ctx context.Context, token string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/validate-reset-token", map[string]string{"token": token}, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// GetProfile は GET /Profiles/profile を呼び出す。
// レスポンスは data ラッパーの有無、personalInfo の入れ子有無のどちらも受け付ける。
func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/Profiles/profile", nil, &raw); err != nil {
		return nil, err
	}
	return decodeProfile(raw)
}

// SubmitPersonalInfo は POST /Profiles/personal-info を呼び出す。
func (c *Client) SubmitPersonalInfo(ctx context.Context, info model.PersonalInfo) error {
	return c.do(ctx, http.MethodPost, "/Profiles/personal-info", info, nil)
}

// SubmitEducationInfo は POST /Profiles/education-info を呼び出す。
func (c *Client) SubmitEducationInfo(ctx context.Context, entries []model.AcademicInfo) error {
	return c.do(ctx, http.MethodPost, "/Profiles/education-info", model.EducationRequest{Education: entries}, nil)
}

// GetCirculars は GET /Circular/get-circulars を呼び出す。
func (c *Client) GetCirculars(ctx context.Context) ([]model.Circular, error) {
	var env envelope[[]model.Circular]
	if err := c.do(ctx, http.MethodGet, "/Circular/get-circulars", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetCircular は GET /Circular/get-circular/{id} を呼び出す。
func (c *Client) GetCircular(ctx context.Context, id string) (*model.Circular, error) {
	var env envelope[*model.Circular]
	if err := c.do(ctx, http.MethodGet, "/Circular/get-circular/"+url.PathEscape(id), nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetExecutivePrograms は GET /ExecutiveProgram/executive-programs を呼び出す。
func (c *Client) GetExecutivePrograms(ctx context.Context) ([]model.ExecutiveProgram, error) {
	var env envelope[[]model.ExecutiveProgram]
	if err := c.do(ctx, http.MethodGet, "/ExecutiveProgram/executive-programs", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetProgramTypes は GET /ExecutiveProgram/program-type を呼び出す。
func (c *Client) GetProgramTypes(ctx context.Context) ([]model.ProgramType, error) {
	var env envelope[[]model.ProgramType]
	if err := c.do(ctx, http.MethodGet, "/ExecutiveProgram/program-type", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// RegisterProgram は POST /ExecutiveProgram/ep-registraiton を呼び出す。
// パスの綴りはバックエンドの実装に合わせている。
func (c *Client) RegisterProgram(ctx context.Context, req model.ProgramRegistrationRequest) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/ExecutiveProgram/ep-registraiton", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PayRegistrationBill は POST /Payment/pay-reg-bill を呼び出す。
func (c *Client) PayRegistrationBill(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	var resp model.PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/Payment/pay-reg-bill", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBillingHistory は GET /Payment/billing-history を呼び出す。
func (c *Client) GetBillingHistory(ctx context.Context) ([]model.BillingHistoryItem, error) {
	var env envelope[[]model.BillingHistoryItem]
	if err := c.do(ctx, http.MethodGet, "/Payment/billing-history", nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// do はリクエストを送信し、2xxならレスポンスをoutにデコードする。
// 401を受けた場合は呼び出し元の操作に関係なくトークンを破棄する。
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request for %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackendTransportError(endpoint)
		c.logger.Error("backend request failed",
			slog.String("endpoint", endpoint),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("backend %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordBackendCall(endpoint, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.ClearToken()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		c.logger.Warn("backend returned error status",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("message", eb.Message),
		)
		return &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: eb.Message}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

// decodeProfile はプロフィールレスポンスを正規化する。
func decodeProfile(raw json.RawMessage) (*model.Profile, error) {
	var p profilePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	body := raw
	if len(p.Data) > 0 && !bytes.Equal(bytes.TrimSpace(p.Data), []byte("null")) {
		body = p.Data
		p = profilePayload{}
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile data: %w", err)
		}
	}

	profile := &model.Profile{
		PersonalInfo:         p.PersonalInfo,
		AcademicInformations: p.AcademicInformations,
		Occupations:          p.Occupations,
	}

	// personalInfo が入れ子になっていない場合はトップレベルを個人情報とみなす
	if profile.PersonalInfo == nil {
		var flat model.PersonalInfo
		if err := json.Unmarshal(body, &flat); err == nil && flat != (model.PersonalInfo{}) {
			profile.PersonalInfo = &flat
		}
	}

	return profile, nil
}

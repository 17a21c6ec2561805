package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/circular"
	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/security"
	"github.com/hitoshi/ksiportal/internal/workspace"
)

const (
	testEmail    = "student@example.com"
	testPassword = "secret1"
	testToken    = "tok-1"
)

// --- フェイクバックエンド ---

// fakeBackend はリモートREST APIのテスト用実装。
type fakeBackend struct {
	mu               sync.Mutex
	isIubian         bool
	paymentURL       string
	registerStatus   int
	lastRegistration model.ProgramRegistrationRequest
	lastPayment      model.PaymentRequest
	lastPersonalInfo *model.PersonalInfo
	lastEducation    []model.AcademicInfo
	registered       map[int]bool
	calls            map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		paymentURL:     "https://pay.example.com/checkout?session=abc",
		registerStatus: http.StatusOK,
		registered:     map[int]bool{},
		calls:          map[string]int{},
	}
}

// configure はロックを取ってフェイクの応答を変更する。
func (f *fakeBackend) configure(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /Auth/authentication", func(w http.ResponseWriter, r *http.Request) {
		var req backend.AuthRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.UserName != testEmail || req.Password != testPassword {
			writeBody(w, http.StatusOK, map[string]any{"isAuthSuccessful": false})
			return
		}
		writeBody(w, http.StatusOK, map[string]any{
			"token":            testToken,
			"isAuthSuccessful": true,
			"user":             map[string]any{"id": 42, "email": testEmail, "firstName": "Mina"},
		})
	})
	mux.HandleFunc("POST /Auth/registration", func(w http.ResponseWriter, r *http.Request) {
		var req backend.RegistrationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email == "taken@example.com" {
			writeBody(w, http.StatusBadRequest, map[string]any{"message": "Email already registered"})
			return
		}
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /auth/validate-reset-token", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		writeBody(w, http.StatusOK, map[string]any{"valid": req["token"] == "good-token"})
	})
	mux.HandleFunc("POST /auth/reset-password", func(w http.ResponseWriter, r *http.Request) {
		var req model.ResetPasswordData
		json.NewDecoder(r.Body).Decode(&req)
		if req.Token != "good-token" {
			writeBody(w, http.StatusBadRequest, map[string]any{"message": "Reset link has expired"})
			return
		}
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("GET /Profiles/profile", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		iubian := f.isIubian
		f.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"data": map[string]any{
			"personalInfo": map[string]any{
				"firstName": "Mina", "lastName": "Rahman", "email": testEmail,
				"isIubian": iubian, "dateOfBirth": "2001-04-09T00:00:00",
			},
			"academicInformations": []map[string]any{
				{"id": 7, "nameOfDegree": "ssc", "institution": "Dhaka College", "result": "5.00"},
				{"id": 8, "nameOfDegree": "Diploma", "institution": "KSI"},
			},
			"occupations": []map[string]any{{"profession": "Engineer"}, {"profession": "Teacher"}},
		}})
	}))
	mux.HandleFunc("POST /Profiles/personal-info", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		var info model.PersonalInfo
		json.NewDecoder(r.Body).Decode(&info)
		f.mu.Lock()
		f.lastPersonalInfo = &info
		f.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	}))
	mux.HandleFunc("POST /Profiles/education-info", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		var req model.EducationRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastEducation = req.Education
		f.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	}))

	mux.HandleFunc("GET /ExecutiveProgram/executive-programs", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		registered := f.registered[1]
		f.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{
			{
				"id": 1, "programsName": "Korean Level 1A", "regCost": 1000,
				"discoutPC": 10, "iubStudentDiscoutPC": 50,
				"isSuccessfullyEPRegistration": registered,
			},
		}})
	}))
	mux.HandleFunc("GET /ExecutiveProgram/program-type", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, map[string]any{"data": []map[string]any{{"id": 1, "name": "Language"}}})
	}))
	mux.HandleFunc("POST /ExecutiveProgram/ep-registraiton", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		var req model.ProgramRegistrationRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastRegistration = req
		status := f.registerStatus
		if status == http.StatusOK {
			f.registered[req.ExecutiveProgramID] = true
		}
		f.mu.Unlock()
		if status != http.StatusOK {
			writeBody(w, status, map[string]any{"message": "Registration window is closed"})
			return
		}
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	}))

	mux.HandleFunc("GET /Payment/billing-history", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"id": 9, "regYear": 2026, "regSem": 1, "isBillPaid": false, "regPayable": 500.5},
			{"id": 10, "regYear": 2026, "regSem": 2, "isBillPaid": true, "regPayable": 900},
		}})
	}))
	mux.HandleFunc("POST /Payment/pay-reg-bill", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		var req model.PaymentRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastPayment = req
		url := f.paymentURL
		f.mu.Unlock()
		writeBody(w, http.StatusOK, map[string]any{"paymentUrl": url, "valueD": req.ValueD})
	}))

	mux.HandleFunc("GET /Circular/get-circulars", func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{
				"id": 3, "title": "Admission open", "description": `<p>Apply now<script>alert(1)</script></p>`,
				"publishDate": "2026-09-01T08:00:00", "category": "Admission", "isActive": true,
				"attachments": []string{"/files/notice.pdf"},
			},
			{"id": 4, "title": "Old notice", "description": "<p>Expired</p>", "isActive": false},
		}})
	})
	mux.HandleFunc("GET /Circular/get-circular/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "3":
			writeBody(w, http.StatusOK, map[string]any{"data": map[string]any{
				"id": 3, "title": "Admission open", "description": `<p onclick="x()">Apply now</p>`,
				"isActive": true, "attachments": []string{"/files/notice.pdf", "http://169.254.169.254/latest"},
			}})
		default:
			writeBody(w, http.StatusNotFound, map[string]any{"message": "Circular not found"})
		}
	})
	mux.HandleFunc("GET /files/notice.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 notice")
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

// authorized はBearerトークンを要求する。
func (f *fakeBackend) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeBody(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// --- テスト用ポータル ---

// blockMetadata はメタデータアドレスだけを拒否する検証器。
// httptestのループバックアドレスには接続できる必要がある。
type blockMetadata struct{}

func (blockMetadata) ValidateURL(raw string) error {
	if strings.Contains(raw, "169.254.169.254") {
		return security.ErrBlockedURL
	}
	return nil
}

type portal struct {
	t        *testing.T
	backend  *fakeBackend
	registry *workspace.Registry
	server   *httptest.Server
	client   *http.Client
	csrf     string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPortal(t *testing.T) *portal {
	t.Helper()

	fb := newFakeBackend()
	upstream := httptest.NewServer(fb.handler())
	t.Cleanup(upstream.Close)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	logger := discardLogger()

	registry := workspace.NewRegistry(workspace.Deps{
		Backend: backend.NewClient(upstream.URL, 5*time.Second, collector, logger),
		Storage: newMemRepo(),
		Metrics: collector,
		Logger:  logger,
	}, time.Hour)

	fetcher, err := circular.NewFetcher(upstream.Client(), blockMetadata{}, upstream.URL, 1<<20)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000, 1000))
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		Logger:            logger,
		Workspaces:        registry,
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       rl,
		MetricsHandler:    metrics.Handler(reg),
		Circulars: CircularHandlerConfig{
			Presenter: circular.NewPresenter(security.NewCircularSanitizer()),
			Fetcher:   fetcher,
			Lister:    backend.NewClient(upstream.URL, 5*time.Second, nil, logger),
			Channel:   circular.Channel{Title: "KSI Circulars", Link: "https://portal.example.edu", Description: "Notices"},
			Now:       func() time.Time { return time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC) },
		},
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}

	return &portal{
		t:        t,
		backend:  fb,
		registry: registry,
		server:   server,
		client:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
}

func (p *portal) do(method, path string, body any, csrf bool) *http.Response {
	p.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			p.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, p.server.URL+path, reader)
	if err != nil {
		p.t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf {
		req.Header.Set("X-CSRF-Token", p.csrfToken())
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.t.Fatalf("%s %s: %v", method, path, err)
	}
	p.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (p *portal) get(path string) *http.Response {
	return p.do(http.MethodGet, path, nil, false)
}

func (p *portal) post(path string, body any) *http.Response {
	return p.do(http.MethodPost, path, body, true)
}

func (p *portal) csrfToken() string {
	p.t.Helper()
	if p.csrf != "" {
		return p.csrf
	}
	resp := p.get("/api/csrf-token")
	var body map[string]string
	decodeBody(p.t, resp, &body)
	p.csrf = body["token"]
	return p.csrf
}

func (p *portal) login() {
	p.t.Helper()
	resp := p.post("/api/auth/login", map[string]string{"userName": testEmail, "password": testPassword})
	if resp.StatusCode != http.StatusOK {
		p.t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status = %d, want %d; body = %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, b)
	}
}

// --- インメモリのクライアントストレージ ---

type memRepo struct {
	mu     sync.Mutex
	values map[string]map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{values: map[string]map[string]string{}}
}

func (m *memRepo) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[clientID][key]
	return v, ok, nil
}

func (m *memRepo) Set(ctx context.Context, clientID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[clientID] == nil {
		m.values[clientID] = map[string]string{}
	}
	m.values[clientID][key] = value
	return nil
}

func (m *memRepo) Delete(ctx context.Context, clientID string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values[clientID], k)
	}
	return nil
}

func (m *memRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

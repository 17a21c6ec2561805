// Package session はログイン中ユーザーとトークンを保持するセッションストアを提供する。
// セッションはクライアントストレージに永続化され、コールドスタート時に復元される。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/model"
)

// クライアントストレージのキー
const (
	KeyAuthToken     = "authToken"
	KeyUser          = "user"
	draftKeyPrefix   = "profile_draft_"
	storageOpTimeout = 5 * time.Second
	refreshTimeout   = 30 * time.Second
)

// ユーザー向けエラーメッセージ
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgRegistrationFailed = "Registration failed. Please try again."
	MsgChangePassword     = "Failed to change password"
)

// ErrNotAuthenticated はログインが必要な操作を未ログインで呼んだ場合のエラー。
var ErrNotAuthenticated = errors.New("not authenticated")

// State はセッションの状態。
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateRestoring       State = "restoring"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Storage はブラウザのローカルストレージに相当するキーバリューストア。
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// AuthAPI はセッションストアが使うバックエンド操作。
type AuthAPI interface {
	Authenticate(ctx context.Context, userName, password string) (*backend.AuthResponse, error)
	Register(ctx context.Context, req backend.RegistrationRequest) (*backend.StatusResponse, error)
	ChangePassword(ctx context.Context, data model.ChangePasswordData) error
	GetProfile(ctx context.Context) (*model.Profile, error)
}

// Status はセッションの公開用スナップショット。
type Status struct {
	State         State       `json:"state"`
	Authenticated bool        `json:"isAuthenticated"`
	User          *model.User `json:"user"`
	Loading       bool        `json:"isLoading"`
	Error         string      `json:"error,omitempty"`
}

// Store はセッションストア。backend.TokenSource を実装する。
type Store struct {
	api     AuthAPI
	storage Storage
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	state   State
	user    *model.User
	token   string
	loading bool
	errMsg  string
	epoch   uint64 // ログイン・ログアウト・トークン破棄ごとに進む

	// persistMu はユーザースナップショットの書き込みとログアウト時の消去を直列化する
	persistMu sync.Mutex

	background sync.WaitGroup
}

// NewStore はStoreを生成する。
func NewStore(api AuthAPI, storage Storage, collector metrics.MetricsCollector, logger *slog.Logger) *Store {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Store{
		api:     api,
		storage: storage,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
		state:   StateUninitialized,
	}
}

// Token は現在の認証トークンを返す。
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ClearToken はトークンを破棄する。バックエンドが401を返したときに呼ばれる。
// ストレージからは authToken キーだけを削除し、キャッシュ済みユーザーは残す。
func (s *Store) ClearToken() {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	s.epoch++
	if s.state == StateAuthenticated {
		s.state = StateUnauthenticated
	}
	s.mu.Unlock()

	if hadToken {
		s.logger.Info("auth token cleared after 401 response")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageOpTimeout)
	defer cancel()
	if err := s.storage.Remove(ctx, KeyAuthToken); err != nil {
		s.logger.Error("failed to remove auth token from storage", slog.String("error", err.Error()))
	}
}

// Status は現在の状態を返す。
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var user *model.User
	if s.user != nil {
		u := *s.user
		user = &u
	}
	return Status{
		State:         s.state,
		Authenticated: s.state == StateAuthenticated,
		User:          user,
		Loading:       s.loading,
		Error:         s.errMsg,
	}
}

// Authenticated はログイン済みかを返す。
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateAuthenticated
}

// User はログイン中ユーザーのコピーを返す。
func (s *Store) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

// Err は直前の操作で記録されたエラーメッセージを返す。
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// ClearError はエラーメッセージを消去する。
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Login は認証を行う。
// レスポンスにトークンと isAuthSuccessful=true の両方がある場合のみ成功とする。
// 失敗してもエラーは返さず、Err() で参照できるメッセージを記録する。
func (s *Store) Login(ctx context.Context, identifier, password string) bool {
	s.start()
	defer s.finish()

	resp, err := s.api.Authenticate(ctx, identifier, password)
	if err != nil {
		s.fail(backend.MessageOf(err, MsgInvalidCredentials))
		s.metrics.RecordLogin(false)
		return false
	}
	if resp == nil || resp.Token == "" || !resp.IsAuthSuccessful {
		s.fail(MsgInvalidCredentials)
		s.metrics.RecordLogin(false)
		return false
	}

	user := model.User{Email: identifier}
	if resp.User != nil {
		user = *resp.User
	}

	s.persistMu.Lock()
	s.persistSession(ctx, resp.Token, user)
	s.mu.Lock()
	s.epoch++
	s.token = resp.Token
	s.user = &user
	s.state = StateAuthenticated
	s.mu.Unlock()
	s.persistMu.Unlock()

	s.metrics.RecordLogin(true)
	s.logger.Info("user logged in", slog.String("user_id", user.ID.String()))
	return true
}

// Register はアカウントを登録する。成功してもログイン状態にはしない。
func (s *Store) Register(ctx context.Context, data model.RegisterData) bool {
	s.start()
	defer s.finish()

	email := strings.TrimSpace(data.Email)
	resp, err := s.api.Register(ctx, backend.RegistrationRequest{
		Email:       email,
		UserName:    email,
		PhoneNumber: strings.TrimSpace(data.Phone),
		FirstName:   strings.TrimSpace(data.FirstName),
		LastName:    strings.TrimSpace(data.LastName),
		Password:    data.Password,
	})
	if err != nil {
		s.fail(backend.MessageOf(err, MsgRegistrationFailed))
		return false
	}
	if resp == nil || !resp.Success {
		msg := MsgRegistrationFailed
		if resp != nil && resp.Message != "" {
			msg = resp.Message
		}
		s.fail(msg)
		return false
	}

	s.logger.Info("account registered", slog.String("email", email))
	return true
}

// ChangePassword はログイン中のパスワードを変更する。
func (s *Store) ChangePassword(ctx context.Context, current, next string) bool {
	s.start()
	defer s.finish()

	err := s.api.ChangePassword(ctx, model.ChangePasswordData{CurrentPassword: current, NewPassword: next})
	if err != nil {
		s.fail(backend.MessageOf(err, MsgChangePassword))
		return false
	}
	return true
}

// Logout はストレージとメモリ上のセッションを破棄する。失敗しない。
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	keys := []string{KeyAuthToken, KeyUser}
	if s.user != nil && s.user.ID != "" {
		keys = append(keys, draftKey(s.user.ID.String()))
	}
	s.token = ""
	s.user = nil
	s.errMsg = ""
	s.loading = false
	s.state = StateUnauthenticated
	s.epoch++
	s.mu.Unlock()

	s.persistMu.Lock()
	err := s.storage.Remove(ctx, keys...)
	s.persistMu.Unlock()
	if err != nil {
		s.logger.Error("failed to clear session storage", slog.String("error", err.Error()))
	}
	s.logger.Info("user logged out")
}

// FetchProfile はプロフィールを取得してユーザースナップショットを更新する。
// 取得中にログアウトや再ログインがあった場合、結果は捨てる。
// エラーは呼び出し元に返す。
func (s *Store) FetchProfile(ctx context.Context) error {
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	p, err := s.api.GetProfile(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh user profile: %w", err)
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateAuthenticated || s.user == nil || p.PersonalInfo == nil {
		s.mu.Unlock()
		return nil
	}
	user := *s.user
	mergePersonalInfo(&user, p.PersonalInfo)
	s.user = &user
	s.mu.Unlock()

	s.persistUser(ctx, user)
	return nil
}

// Restore はコールドスタート時にストレージからセッションを復元する。
// トークンとユーザーがそろっていれば即座に認証済みとし、裏でプロフィールを再取得する。
// キャッシュが壊れている場合はストレージを消去して未認証にする。
func (s *Store) Restore(ctx context.Context) State {
	s.setState(StateRestoring)

	token, found, err := s.storage.Get(ctx, KeyAuthToken)
	if err != nil {
		s.logger.Error("failed to read auth token from storage", slog.String("error", err.Error()))
		return s.setState(StateUnauthenticated)
	}
	if !found || token == "" {
		return s.setState(StateUnauthenticated)
	}

	raw, found, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Error("failed to read cached user from storage", slog.String("error", err.Error()))
		return s.setState(StateUnauthenticated)
	}

	user, err := decodeCachedUser(raw, found)
	if err == nil {
		err = s.checkTokenExpiry(token)
	}
	if err != nil {
		s.logger.Warn("discarding corrupted cached session", slog.String("error", err.Error()))
		if rmErr := s.storage.Remove(ctx, KeyAuthToken, KeyUser); rmErr != nil {
			s.logger.Error("failed to clear corrupted session", slog.String("error", rmErr.Error()))
		}
		return s.setState(StateUnauthenticated)
	}

	s.mu.Lock()
	s.epoch++
	s.token = token
	s.user = &user
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		if err := s.FetchProfile(refreshCtx); err != nil {
			// 一時的な障害でキャッシュ済みセッションを失わないよう、ここではログアウトしない
			s.logger.Warn("background profile refresh failed", slog.String("error", err.Error()))
		}
	}()

	return StateAuthenticated
}

// Wait は実行中のバックグラウンド更新の完了を待つ。
func (s *Store) Wait() {
	s.background.Wait()
}

// Draft は旧形式のプロフィール下書きを返す。
func (s *Store) Draft(ctx context.Context) (string, bool, error) {
	key, err := s.currentDraftKey()
	if err != nil {
		return "", false, err
	}
	return s.storage.Get(ctx, key)
}

// SaveDraft はプロフィール下書きを保存する。
func (s *Store) SaveDraft(ctx context.Context, blob string) error {
	key, err := s.currentDraftKey()
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, key, blob)
}

// DropDraft はプロフィール下書きを削除する。
func (s *Store) DropDraft(ctx context.Context) error {
	key, err := s.currentDraftKey()
	if err != nil {
		return err
	}
	return s.storage.Remove(ctx, key)
}

func (s *Store) currentDraftKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated || s.user == nil || s.user.ID == "" {
		return "", ErrNotAuthenticated
	}
	return draftKey(s.user.ID.String()), nil
}

func (s *Store) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	s.errMsg = ""
}

func (s *Store) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
}

func (s *Store) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

func (s *Store) setState(state State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return state
}

func (s *Store) persistSession(ctx context.Context, token string, user model.User) {
	if err := s.storage.Set(ctx, KeyAuthToken, token); err != nil {
		s.logger.Error("failed to persist auth token", slog.String("error", err.Error()))
	}
	s.persistUser(ctx, user)
}

func (s *Store) persistUser(ctx context.Context, user model.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Error("failed to encode user snapshot", slog.String("error", err.Error()))
		return
	}
	if err := s.storage.Set(ctx, KeyUser, string(data)); err != nil {
		s.logger.Error("failed to persist user snapshot", slog.String("error", err.Error()))
	}
}

// checkTokenExpiry はトークンがJWTで exp が過去なら期限切れエラーを返す。
// JWT形式でないトークンはそのまま受け入れる。署名は検証しない。
func (s *Store) checkTokenExpiry(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(s.now()) {
		return fmt.Errorf("cached token expired at %s", exp.Format(time.RFC3339))
	}
	return nil
}

func decodeCachedUser(raw string, found bool) (model.User, error) {
	raw = strings.TrimSpace(raw)
	if !found || raw == "" || raw == "null" {
		return model.User{}, errors.New("cached user is missing")
	}
	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return model.User{}, fmt.Errorf("failed to parse cached user: %w", err)
	}
	return user, nil
}

func mergePersonalInfo(user *model.User, info *model.PersonalInfo) {
	if info.FirstName != "" {
		user.FirstName = info.FirstName
	}
	if info.LastName != "" {
		user.LastName = info.LastName
	}
	if info.Email != "" {
		user.Email = info.Email
	}
	if info.ContactNumber != "" {
		user.Phone = info.ContactNumber
	}
}

func draftKey(userID string) string {
	return draftKeyPrefix + userID
}

// compile-time interface check
var _ backend.TokenSource = (*Store)(nil)

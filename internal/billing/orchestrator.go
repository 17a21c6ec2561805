// Package billing はプログラム登録と請求支払いの手続きをまとめる。
// ストアの再取得やメトリクス記録など、複数のストアにまたがる処理はここで行う。
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/metrics"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/store"
)

// ユーザー向けエラーメッセージ
const (
	MsgRegistrationFailed = "Registration failed. Please try again."
	MsgPaymentFailed      = "Payment failed. Please try again."
)

// DefaultSuccessTTL は登録成功メッセージの表示期間。
const DefaultSuccessTTL = 5 * time.Second

// ErrInvalidPaymentURL は決済URLがhttp(s)の絶対URLでない場合のエラー。
var ErrInvalidPaymentURL = errors.New("invalid payment url")

// API はオーケストレーターが使うバックエンド操作。
type API interface {
	RegisterProgram(ctx context.Context, req model.ProgramRegistrationRequest) (*backend.StatusResponse, error)
	PayRegistrationBill(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error)
}

// UserSource はログイン中ユーザーを返す。session.Store が実装する。
type UserSource interface {
	User() (model.User, bool)
}

// Navigator は決済ページへの遷移を行う。
// ゲートウェイではURLをブラウザに返し、ブラウザが新しいタブで開く。
type Navigator interface {
	Navigate(paymentURL string)
}

// NavigatorFunc は関数をNavigatorとして使うためのアダプタ。
type NavigatorFunc func(paymentURL string)

// Navigate はNavigatorを実装する。
func (f NavigatorFunc) Navigate(paymentURL string) { f(paymentURL) }

// ProgramStatus はプログラムごとの登録状態。
type ProgramStatus struct {
	Registering    bool   `json:"registering"`
	SuccessMessage string `json:"successMessage,omitempty"`
}

// PaymentResult は決済開始の結果。
type PaymentResult struct {
	Initiated  bool   `json:"initiated"`
	PaymentURL string `json:"paymentUrl,omitempty"`
}

type successMessage struct {
	text      string
	expiresAt time.Time
}

// Orchestrator は登録と支払いの手続きを実行する。
type Orchestrator struct {
	api        API
	users      UserSource
	profile    *store.ProfileStore
	programs   *store.ProgramStore
	billing    *store.BillingStore
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	successTTL time.Duration
	now        func() time.Time

	mu        sync.Mutex
	busy      map[int]bool
	successes map[int]successMessage
}

// Config はOrchestratorの依存関係。
type Config struct {
	API        API
	Users      UserSource
	Profile    *store.ProfileStore
	Programs   *store.ProgramStore
	Billing    *store.BillingStore
	Metrics    metrics.MetricsCollector
	Logger     *slog.Logger
	SuccessTTL time.Duration
	Now        func() time.Time
}

// NewOrchestrator はOrchestratorを生成する。
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		api:        cfg.API,
		users:      cfg.Users,
		profile:    cfg.Profile,
		programs:   cfg.Programs,
		billing:    cfg.Billing,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		successTTL: cfg.SuccessTTL,
		now:        cfg.Now,
		busy:       make(map[int]bool),
		successes:  make(map[int]successMessage),
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.successTTL <= 0 {
		o.successTTL = DefaultSuccessTTL
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// RegistrationAmount は登録料を返す。IUB学生には学生割引率、それ以外には通常割引率を適用する。
func RegistrationAmount(program model.ExecutiveProgram, isIubian bool) float64 {
	pct := program.DiscoutPC
	if isIubian {
		pct = program.IubStudentDiscoutPC
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	amount := program.RegCost * (1 - pct/100)
	return math.Round(amount*100) / 100
}

// AmountFor は現在のプロフィールに基づく登録料を返す。
func (o *Orchestrator) AmountFor(program model.ExecutiveProgram) float64 {
	return RegistrationAmount(program, o.isIubian())
}

// RegisterForProgram はプログラムへの登録を送信する。
// 成功時はプログラムごとの成功メッセージを記録し、プログラム一覧と請求履歴を再取得する。
// 失敗時はサーバーのメッセージ（なければ汎用メッセージ）を持つ *model.APIError を返す。
// 登録中フラグは結果にかかわらず最後に解除される。
func (o *Orchestrator) RegisterForProgram(ctx context.Context, program model.ExecutiveProgram) error {
	if !o.acquire(program.ID) {
		return model.NewRegistrationBusyError()
	}
	defer o.release(program.ID)

	year, semester := model.SemesterAt(o.now())
	req := model.ProgramRegistrationRequest{
		ExecutiveProgramID: program.ID,
		RegYear:            year,
		RegSem:             semester,
		RegBill:            o.AmountFor(program),
	}

	resp, err := o.api.RegisterProgram(ctx, req)
	if err != nil {
		o.metrics.RecordProgramRegistration(false)
		o.logger.Warn("program registration failed",
			slog.Int("program_id", program.ID),
			slog.String("error", err.Error()),
		)
		return model.NewBackendError(backend.MessageOf(err, MsgRegistrationFailed))
	}
	if resp == nil || !resp.Success {
		o.metrics.RecordProgramRegistration(false)
		msg := MsgRegistrationFailed
		if resp != nil && resp.Message != "" {
			msg = resp.Message
		}
		return model.NewBackendError(msg)
	}

	o.metrics.RecordProgramRegistration(true)
	o.logger.Info("program registered",
		slog.Int("program_id", program.ID),
		slog.Int("reg_year", year),
		slog.Int("reg_sem", semester),
	)

	o.mu.Lock()
	o.successes[program.ID] = successMessage{
		text:      fmt.Sprintf("Successfully registered for %s!", program.ProgramsName),
		expiresAt: o.now().Add(o.successTTL),
	}
	o.mu.Unlock()

	o.refreshAfterRegistration(ctx)
	return nil
}

// PayBill は請求の支払いを開始する。
// 決済URLが返れば navigator に渡して請求履歴を再取得する。
// URLがない場合は警告ログのみ記録し、Initiated=false を返す（再取得もしない）。
func (o *Orchestrator) PayBill(ctx context.Context, item model.BillingHistoryItem, navigator Navigator) (PaymentResult, error) {
	user, ok := o.users.User()
	if !ok {
		return PaymentResult{}, model.NewUnauthenticatedError()
	}

	req := model.PaymentRequest{
		Amount: formatAmount(item.RegPayable),
		ValueD: user.ID.String(),
		ValueB: fmt.Sprintf("%d-%d", item.RegYear, item.RegSem),
		RegID:  strconv.Itoa(item.ID),
	}

	resp, err := o.api.PayRegistrationBill(ctx, req)
	if err != nil {
		o.logger.Warn("payment request failed",
			slog.Int("bill_id", item.ID),
			slog.String("error", err.Error()),
		)
		return PaymentResult{}, model.NewBackendError(backend.MessageOf(err, MsgPaymentFailed))
	}

	if resp == nil || resp.PaymentURL == "" {
		o.metrics.RecordPaymentInitiation(false)
		o.logger.Warn("payment response did not include a payment url", slog.Int("bill_id", item.ID))
		return PaymentResult{Initiated: false}, nil
	}

	if err := validatePaymentURL(resp.PaymentURL); err != nil {
		o.metrics.RecordPaymentInitiation(false)
		o.logger.Warn("payment response included an unusable payment url",
			slog.Int("bill_id", item.ID),
			slog.String("error", err.Error()),
		)
		return PaymentResult{Initiated: false}, nil
	}

	o.metrics.RecordPaymentInitiation(true)
	if navigator != nil {
		navigator.Navigate(resp.PaymentURL)
	}

	if err := o.billing.FetchHistory(ctx); err != nil {
		o.logger.Warn("failed to refresh billing history after payment", slog.String("error", err.Error()))
	}

	return PaymentResult{Initiated: true, PaymentURL: resp.PaymentURL}, nil
}

// Status は指定プログラムの登録状態を返す。期限切れの成功メッセージは破棄する。
func (o *Orchestrator) Status(programID int) ProgramStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := ProgramStatus{Registering: o.busy[programID]}
	if msg, ok := o.successes[programID]; ok {
		if o.now().Before(msg.expiresAt) {
			st.SuccessMessage = msg.text
		} else {
			delete(o.successes, programID)
		}
	}
	return st
}

// Statuses は状態を持つ全プログラムの登録状態を返す。
func (o *Orchestrator) Statuses() map[int]ProgramStatus {
	o.mu.Lock()
	ids := make([]int, 0, len(o.busy)+len(o.successes))
	for id := range o.busy {
		ids = append(ids, id)
	}
	for id := range o.successes {
		if !o.busy[id] {
			ids = append(ids, id)
		}
	}
	o.mu.Unlock()

	out := make(map[int]ProgramStatus, len(ids))
	for _, id := range ids {
		if st := o.Status(id); st.Registering || st.SuccessMessage != "" {
			out[id] = st
		}
	}
	return out
}

// Reset は登録状態をすべて破棄する。ログアウト時に呼ばれる。
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.successes)
}

func (o *Orchestrator) acquire(programID int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy[programID] {
		return false
	}
	o.busy[programID] = true
	delete(o.successes, programID)
	return true
}

func (o *Orchestrator) release(programID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, programID)
}

func (o *Orchestrator) isIubian() bool {
	if o.profile == nil {
		return false
	}
	info := o.profile.State.Snapshot().Data.PersonalInfo
	return info != nil && info.IsIubian
}

func (o *Orchestrator) refreshAfterRegistration(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := o.programs.FetchPrograms(ctx); err != nil {
			o.logger.Warn("failed to refresh programs after registration", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer wg.Done()
		if err := o.billing.FetchHistory(ctx); err != nil {
			o.logger.Warn("failed to refresh billing history after registration", slog.String("error", err.Error()))
		}
	}()
	wg.Wait()
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func validatePaymentURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPaymentURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidPaymentURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidPaymentURL)
	}
	return nil
}

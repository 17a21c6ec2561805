// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, backend, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeBackendFailed      = "BACKEND_FAILED"
	ErrCodeProgramNotFound    = "PROGRAM_NOT_FOUND"
	ErrCodeBillNotFound       = "BILL_NOT_FOUND"
	ErrCodeCircularNotFound   = "CIRCULAR_NOT_FOUND"
	ErrCodeAttachmentNotFound = "ATTACHMENT_NOT_FOUND"
	ErrCodeAttachmentBlocked  = "ATTACHMENT_BLOCKED"
	ErrCodeRegistrationBusy   = "REGISTRATION_IN_PROGRESS"
)

// NewUnauthenticatedError は未ログイン状態でのアクセスエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "You are not logged in.",
		Category: "auth",
		Action:   "Please log in and try again.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  message,
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the submitted data and try again.",
	}
}

// NewBackendError はバックエンド呼び出し失敗を正規化したメッセージで生成する。
func NewBackendError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendFailed,
		Message:  message,
		Category: "backend",
		Action:   "Please try again in a moment.",
	}
}

// NewProgramNotFoundError はプログラム未検出エラーを生成する。
func NewProgramNotFoundError(programID string) *APIError {
	return &APIError{
		Code:     ErrCodeProgramNotFound,
		Message:  fmt.Sprintf("Program not found: %s", programID),
		Category: "validation",
		Action:   "Reload the course list and try again.",
	}
}

// NewBillNotFoundError は請求未検出エラーを生成する。
func NewBillNotFoundError(billID string) *APIError {
	return &APIError{
		Code:     ErrCodeBillNotFound,
		Message:  fmt.Sprintf("Billing item not found: %s", billID),
		Category: "payment",
		Action:   "Reload your billing history and try again.",
	}
}

// NewCircularNotFoundError はお知らせ未検出エラーを生成する。
func NewCircularNotFoundError(circularID string) *APIError {
	return &APIError{
		Code:     ErrCodeCircularNotFound,
		Message:  fmt.Sprintf("Circular not found: %s", circularID),
		Category: "validation",
		Action:   "Check the circular ID.",
	}
}

// NewAttachmentNotFoundError は添付ファイル未検出エラーを生成する。
func NewAttachmentNotFoundError(index int) *APIError {
	return &APIError{
		Code:     ErrCodeAttachmentNotFound,
		Message:  fmt.Sprintf("Attachment not found: %d", index),
		Category: "validation",
		Action:   "Check the attachment number.",
	}
}

// NewAttachmentBlockedError は添付ファイルURLがセキュリティポリシーで拒否された場合のエラーを生成する。
func NewAttachmentBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAttachmentBlocked,
		Message:  "The attachment location is not allowed by the security policy.",
		Category: "validation",
		Action:   "Contact the institute office for a copy of the attachment.",
	}
}

// NewRegistrationBusyError は同じプログラムの登録処理が実行中の場合のエラーを生成する。
func NewRegistrationBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationBusy,
		Message:  "A registration for this program is already in progress.",
		Category: "validation",
		Action:   "Wait for the current registration to finish.",
	}
}

package model

// User はログイン中ユーザーのスナップショットを表す。
// 認証レスポンスの user オブジェクトをそのまま保持し、クライアントストレージに保存される。
type User struct {
	ID        FlexString `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Phone     string     `json:"phone"`
}

// Session は認証済みセッションを表す。
// セッションストアが唯一の所有者であり、ログイン成功時に生成されログアウトで破棄される。
type Session struct {
	User      User
	AuthToken string
}

// RegisterData はアカウント登録フォームの入力値。
type RegisterData struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetPasswordData はパスワード再設定リクエスト。
type ResetPasswordData struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePasswordData はログイン中のパスワード変更リクエスト。
type ChangePasswordData struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

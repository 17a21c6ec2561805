package backend

import (
	"encoding/json"

	"github.com/hitoshi/ksiportal/internal/model"
)

// AuthRequest は POST /Auth/authentication のボディ。
type AuthRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// AuthResponse は認証レスポンス。
// Token が空、または IsAuthSuccessful が false の場合は認証失敗として扱う。
type AuthResponse struct {
	Token            string      `json:"token"`
	IsAuthSuccessful bool        `json:"isAuthSuccessful"`
	User             *model.User `json:"user"`
	Message          string      `json:"message"`
}

// RegistrationRequest は POST /Auth/registration のボディ。
type RegistrationRequest struct {
	Email       string `json:"email"`
	UserName    string `json:"userName"`
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Password    string `json:"password"`
}

// StatusResponse は success/message のみを返すエンドポイントの共通レスポンス。
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// envelope は {data, success, message} 形式の共通ラッパー。
type envelope[T any] struct {
	Data    T      `json:"data"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// errorBody はエラーレスポンスから message を取り出すための型。
type errorBody struct {
	Message string `json:"message"`
}

// profilePayload はプロフィールレスポンスの揺れを吸収するための中間表現。
// ラッパー有無と personalInfo の入れ子有無の両方を許容する。
type profilePayload struct {
	Data                 json.RawMessage        `json:"data"`
	PersonalInfo         *model.PersonalInfo    `json:"personalInfo"`
	AcademicInformations []model.AcademicRecord `json:"academicInformations"`
	Occupations          []model.Occupation     `json:"occupations"`
}

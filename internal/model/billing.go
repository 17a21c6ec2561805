package model

import (
	"fmt"
	"time"
)

// BillingHistoryItem は登録と支払いの記録。
// サーバー側で登録時に作成され、支払い済みフラグは決済ゲートウェイのコールバックでのみ更新される。
type BillingHistoryItem struct {
	ID                  int                  `json:"id"`
	RegYear             int                  `json:"regYear"`
	RegSem              int                  `json:"regSem"`
	IsBillPaid          bool                 `json:"isBillPaid"`
	RegPayable          float64              `json:"regPayable"`
	RegValue            float64              `json:"regValue"`
	RegDiscount         float64              `json:"regDiscount"`
	IsIubian            bool                 `json:"isIubian"`
	ExProgramRegDetails []RegistrationDetail `json:"exProgramRegDetails"`
}

// RegistrationDetail は請求に含まれるプログラム登録1件。
type RegistrationDetail struct {
	ID             int     `json:"id"`
	ExeProgramName string  `json:"exeProgramName"`
	Credithours    float64 `json:"credithours"`
	RegBill        float64 `json:"regBill"`
}

// ProgramRegistrationRequest は POST /ExecutiveProgram/ep-registraiton のボディ。
type ProgramRegistrationRequest struct {
	ExecutiveProgramID int     `json:"executiveProgramId"`
	RegYear            int     `json:"regYear"`
	RegSem             int     `json:"regSem"`
	RegBill            float64 `json:"regBill"`
}

// PaymentRequest は POST /Payment/pay-reg-bill のボディ。
// フィールド名はバックエンドの契約に合わせてPascalCase。
type PaymentRequest struct {
	Amount string `json:"Amount"`
	ValueD string `json:"ValueD"`
	ValueB string `json:"ValueB"`
	RegID  string `json:"RegId"`
}

// PaymentResponse は決済開始レスポンス。PaymentURLが空の場合、決済は開始されていない。
type PaymentResponse struct {
	BaseFair   *string `json:"baseFair"`
	ValueA     *string `json:"valueA"`
	ValueB     string  `json:"valueB"`
	ValueC     *string `json:"valueC"`
	ValueD     string  `json:"valueD"`
	PaymentURL string  `json:"paymentUrl"`
}

// 学期番号
const (
	SemesterAutumn = 1
	SemesterSpring = 2
	SemesterSummer = 3
)

// SemesterName は学期番号を表示名に変換する。
func SemesterName(semester int) string {
	switch semester {
	case SemesterAutumn:
		return "Autumn"
	case SemesterSpring:
		return "Spring"
	case SemesterSummer:
		return "Summer"
	default:
		return fmt.Sprintf("Semester %d", semester)
	}
}

// RegistrationPeriod は "Spring 2025" 形式の登録期間表示を返す。
func RegistrationPeriod(regYear, regSem int) string {
	return fmt.Sprintf("%s %d", SemesterName(regSem), regYear)
}

// SemesterAt は日付が属する登録年と学期を返す。
// 1〜4月はSpring、5〜8月はSummer、9〜12月はAutumn。
func SemesterAt(t time.Time) (year, semester int) {
	switch {
	case t.Month() <= time.April:
		return t.Year(), SemesterSpring
	case t.Month() <= time.August:
		return t.Year(), SemesterSummer
	default:
		return t.Year(), SemesterAutumn
	}
}

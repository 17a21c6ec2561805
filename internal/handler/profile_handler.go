package handler

import (
	"net/http"

	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/profile"
	"github.com/hitoshi/ksiportal/internal/store"
	"github.com/hitoshi/ksiportal/internal/validation"
)

// ProfileHandler はプロフィール関連のHTTPハンドラー。
type ProfileHandler struct{}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{}
}

// profileResponse はプロフィールのAPIレスポンス。
// BasicInfo はフォームの初期値（生年月日は YYYY-MM-DD）。
type profileResponse struct {
	PersonalInfo         *model.PersonalInfo       `json:"personalInfo"`
	BasicInfo            *validation.BasicInfoForm `json:"basicInfo"`
	AcademicInformations []model.AcademicRecord    `json:"academicInformations"`
	Occupation           *model.Occupation         `json:"occupation"`
	Status               store.Status              `json:"status"`
	Error                string                    `json:"error,omitempty"`
}

// educationResponse は学歴エディタの内容。
type educationResponse struct {
	Entries []model.AcademicInfo `json:"entries"`
	Dirty   bool                 `json:"dirty"`
}

func toProfileResponse(snap store.Snapshot[store.ProfileState]) profileResponse {
	resp := profileResponse{
		PersonalInfo:         snap.Data.PersonalInfo,
		AcademicInformations: snap.Data.AcademicInformations,
		Occupation:           snap.Data.Occupation,
		Status:               snap.Status,
		Error:                snap.Error,
	}
	if resp.AcademicInformations == nil {
		resp.AcademicInformations = []model.AcademicRecord{}
	}
	if info := snap.Data.PersonalInfo; info != nil {
		form := validation.BasicInfoFormFrom(*info, profile.DateOnly(info.DateOfBirth))
		resp.BasicInfo = &form
	}
	return resp
}

// GetProfile はプロフィールを返す。未取得の場合のみバックエンドから取得する。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if err := ws.Profile.EnsureLoaded(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(ws.Profile.State.Snapshot()))
}

// ResetProfile はプロフィールと学歴エディタを破棄し、次回に再取得させる。
// POST /api/profile/reset
func (h *ProfileHandler) ResetProfile(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	ws.Profile.Reset()
	ws.Education.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePersonalInfo は基本情報を検証して保存する。
// 検証エラーがある場合はバックエンドに送信しない。
// POST /api/profile/personal-info
func (h *ProfileHandler) UpdatePersonalInfo(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var form validation.BasicInfoForm
	if !decodeJSON(w, r, &form) {
		return
	}
	if errs := validation.ValidateBasicInfo(form); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	if err := ws.Profile.UpdatePersonalInfo(r.Context(), form.PersonalInfo()); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(ws.Profile.State.Snapshot()))
}

// GetEducation は学歴エディタの一覧を返す。
// GET /api/profile/education
func (h *ProfileHandler) GetEducation(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	entries, err := ws.EducationEntries(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, educationResponse{Entries: entries, Dirty: ws.Education.Dirty()})
}

// UpdateEducation は学歴一覧を検証して保存する。
// POST /api/profile/education
func (h *ProfileHandler) UpdateEducation(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var req model.EducationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateAcademicInfo(req.Education); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	ws.Education.ReplaceEntries(req.Education)
	entries := ws.Education.Entries()
	if err := ws.Profile.UpdateEducationInfo(r.Context(), entries); err != nil {
		handleError(w, err)
		return
	}
	ws.Education.MarkSaved()

	writeJSON(w, http.StatusOK, educationResponse{Entries: entries, Dirty: false})
}

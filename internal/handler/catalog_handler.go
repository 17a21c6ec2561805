package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/ksiportal/internal/billing"
	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/workspace"
)

// CatalogHandler はコース一覧と登録のHTTPハンドラー。
type CatalogHandler struct{}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler() *CatalogHandler {
	return &CatalogHandler{}
}

// programResponse はコース一覧の1件。
// Level、Description、Features はプログラム名から導出した表示用の値。
type programResponse struct {
	model.ExecutiveProgram
	Level          model.Level `json:"level"`
	Description    string      `json:"description"`
	Features       []string    `json:"features"`
	Amount         float64     `json:"amount"`
	Registered     bool        `json:"registered"`
	Registering    bool        `json:"registering"`
	SuccessMessage string      `json:"successMessage,omitempty"`
}

func toProgramResponse(p model.ExecutiveProgram, amount float64, st billing.ProgramStatus) programResponse {
	return programResponse{
		ExecutiveProgram: p,
		Level:            model.ProgramLevel(p.ProgramsName),
		Description:      model.ProgramDescription(p.ProgramsName),
		Features:         model.ProgramFeatures(p.ProgramsName),
		Amount:           amount,
		Registered:       p.IsRegistered(),
		Registering:      st.Registering,
		SuccessMessage:   st.SuccessMessage,
	}
}

func programResponses(ws *workspace.Workspace) []programResponse {
	programs := ws.Programs.Programs.Snapshot().Data
	statuses := ws.Orchestrator.Statuses()
	out := make([]programResponse, 0, len(programs))
	for _, p := range programs {
		out = append(out, toProgramResponse(p, ws.Orchestrator.AmountFor(p), statuses[p.ID]))
	}
	return out
}

// ListPrograms はエグゼクティブプログラム一覧を取得して返す。
// GET /api/programs
func (h *CatalogHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if err := ws.Programs.FetchPrograms(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, programResponses(ws))
}

// ListProgramTypes はプログラム種別一覧を取得して返す。
// GET /api/program-types
func (h *CatalogHandler) ListProgramTypes(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if err := ws.Programs.FetchTypes(r.Context()); err != nil {
		handleError(w, err)
		return
	}
	types := ws.Programs.Types.Snapshot().Data
	if types == nil {
		types = []model.ProgramType{}
	}
	writeJSON(w, http.StatusOK, types)
}

// RegisterProgram はプログラムへの登録を行い、更新後のプログラムを返す。
// POST /api/programs/{id}/register
func (h *CatalogHandler) RegisterProgram(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	if !ws.Programs.Programs.Loaded() {
		if err := ws.Programs.FetchPrograms(r.Context()); err != nil {
			handleError(w, err)
			return
		}
	}
	program, found := ws.Programs.FindProgram(id)
	if !found {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProgramNotFoundError(strconv.Itoa(id)))
		return
	}
	// 割引率の判定に使う。取得できなければ通常割引で登録する。
	if err := ws.Profile.EnsureLoaded(r.Context()); err != nil {
		slog.Warn("profile unavailable for registration discount",
			slog.Int("program_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := ws.Orchestrator.RegisterForProgram(r.Context(), program); err != nil {
		handleError(w, err)
		return
	}

	if refreshed, found := ws.Programs.FindProgram(id); found {
		program = refreshed
	}
	writeJSON(w, http.StatusOK, toProgramResponse(program, ws.Orchestrator.AmountFor(program), ws.Orchestrator.Status(id)))
}

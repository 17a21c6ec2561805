package profile

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/ksiportal/internal/model"
)

var (
	// ErrEntryNotFound は指定IDの行が存在しない場合のエラー。
	ErrEntryNotFound = errors.New("academic entry not found")
	// ErrCanonicalSlot は標準スロットを削除しようとした場合のエラー。
	ErrCanonicalSlot = errors.New("canonical degree slots cannot be removed")
	// ErrUnknownField は編集できないフィールド名が指定された場合のエラー。
	ErrUnknownField = errors.New("unknown academic field")
)

// Editor は学歴フォームの編集状態を保持する。
// 整形は新しく取得したスナップショットに対してのみ行い、編集中の内容からは再実行しない。
type Editor struct {
	mu         sync.Mutex
	entries    []model.AcademicInfo
	loaded     bool
	dirty      bool
	generation uint64
}

// NewEditor はEditorを生成する。
func NewEditor() *Editor {
	return &Editor{}
}

// Load は取得世代 generation のスナップショットを読み込む。
// 同じ世代を読み込み済みなら何もしない。再整形した場合はtrueを返す。
func (e *Editor) Load(generation uint64, raw []model.AcademicRecord) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded && e.generation == generation {
		return false
	}
	e.entries = Reconcile(raw)
	e.generation = generation
	e.loaded = true
	e.dirty = false
	return true
}

// Entries は現在の一覧のコピーを返す。
func (e *Editor) Entries() []model.AcademicInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.AcademicInfo, len(e.entries))
	copy(out, e.entries)
	return out
}

// Loaded は一度でも読み込まれたかを返す。
func (e *Editor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Dirty は未保存の編集があるかを返す。
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// UpdateEntry は指定行の1フィールドを更新する。fieldはJSON名で指定する。
func (e *Editor) UpdateEntry(id, field, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(id)
	if i < 0 {
		return ErrEntryNotFound
	}

	entry := &e.entries[i]
	switch field {
	case "nameOfDegree":
		entry.NameOfDegree = value
	case "boardOfEducation":
		entry.BoardOfEducation = value
	case "institution":
		entry.Institution = value
	case "academicYear":
		entry.AcademicYear = value
	case "result":
		entry.Result = value
	default:
		return ErrUnknownField
	}
	e.dirty = true
	return nil
}

// ReplaceEntries はフォーム全体の内容で一覧を置き換える。
// 並びは入力どおりに保持し、IDのない行には新しいIDを振る。
func (e *Editor) ReplaceEntries(entries []model.AcademicInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries = make([]model.AcademicInfo, len(entries))
	copy(e.entries, entries)
	for i := range e.entries {
		if e.entries[i].ID == "" {
			e.entries[i].ID = uuid.NewString()
		}
	}
	e.loaded = true
	e.dirty = true
}

// AddEntry は空の行を末尾に追加して返す。
func (e *Editor) AddEntry() model.AcademicInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := model.AcademicInfo{ID: uuid.NewString()}
	e.entries = append(e.entries, entry)
	e.dirty = true
	return entry
}

// RemoveEntry は標準スロット以外の行を削除する。
func (e *Editor) RemoveEntry(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(id)
	if i < 0 {
		return ErrEntryNotFound
	}
	if i < len(model.CanonicalDegrees) && IsCanonical(e.entries[i].NameOfDegree) {
		return ErrCanonicalSlot
	}
	e.entries = append(e.entries[:i], e.entries[i+1:]...)
	e.dirty = true
	return nil
}

// MarkSaved は保存完了を記録する。
func (e *Editor) MarkSaved() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dirty = false
}

// Reset は編集状態を初期化する。次のLoadで必ず再整形される。
func (e *Editor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries = nil
	e.loaded = false
	e.dirty = false
	e.generation = 0
}

func (e *Editor) indexOf(id string) int {
	for i, entry := range e.entries {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

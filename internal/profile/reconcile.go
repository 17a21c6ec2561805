// Package profile は学歴データの整形と編集状態の管理を提供する。
package profile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/ksiportal/internal/model"
)

// defaultSlotIDs は標準スロットの既定ID（CanonicalDegrees と同じ順）。
var defaultSlotIDs = []string{"1", "2", "3", "4"}

// fallbackNamespace はIDを持たないレコードの代替ID生成に使う名前空間。
var fallbackNamespace = uuid.MustParse("5b0c2f4e-8a47-4d0e-9a1f-3c6d2b7e9f10")

// Reconcile はバックエンドの学歴レコードを編集用の一覧に整形する。
//
// 先頭に SSC/HSC/Honours/Masters の4スロットを必ず並べ、名前が一致する（大文字小文字無視、
// 最初の1件）レコードがあればそれを使い、なければ空のスロットを置く。標準以外の学位は
// 元の順序のまま後ろに続ける。同じ入力に対しては常に同じ結果を返す。
func Reconcile(raw []model.AcademicRecord) []model.AcademicInfo {
	normalized := make([]model.AcademicInfo, len(raw))
	usedIDs := make(map[string]bool, len(raw))
	for i, r := range raw {
		normalized[i] = normalize(i, r)
		usedIDs[normalized[i].ID] = true
	}

	result := make([]model.AcademicInfo, 0, len(model.CanonicalDegrees)+len(normalized))
	for i, degree := range model.CanonicalDegrees {
		if match, ok := findDegree(normalized, degree); ok {
			result = append(result, match)
			continue
		}
		result = append(result, emptySlot(i, degree, usedIDs))
	}

	for _, entry := range normalized {
		if !IsCanonical(entry.NameOfDegree) {
			result = append(result, entry)
		}
	}

	return result
}

// IsCanonical は学位名が標準スロットのいずれかに一致するかを返す。
func IsCanonical(name string) bool {
	name = strings.TrimSpace(name)
	for _, degree := range model.CanonicalDegrees {
		if strings.EqualFold(name, degree) {
			return true
		}
	}
	return false
}

// ToRecords は編集済みの一覧をバックエンドのレコード形式に戻す。
func ToRecords(entries []model.AcademicInfo) []model.AcademicRecord {
	records := make([]model.AcademicRecord, len(entries))
	for i, e := range entries {
		records[i] = model.AcademicRecord{
			ID:               model.FlexString(e.ID),
			NameOfDegree:     model.FlexString(e.NameOfDegree),
			BoardOfEducation: model.FlexString(e.BoardOfEducation),
			Institution:      model.FlexString(e.Institution),
			AcademicYear:     model.FlexString(e.AcademicYear),
			Result:           model.FlexString(e.Result),
		}
	}
	return records
}

func normalize(position int, r model.AcademicRecord) model.AcademicInfo {
	id := strings.TrimSpace(r.ID.String())
	if id == "" {
		id = fallbackID(position, r.NameOfDegree.String())
	}
	return model.AcademicInfo{
		ID:               id,
		NameOfDegree:     r.NameOfDegree.String(),
		BoardOfEducation: r.BoardOfEducation.String(),
		Institution:      r.Institution.String(),
		AcademicYear:     r.AcademicYear.String(),
		Result:           r.Result.String(),
	}
}

// fallbackID は位置と学位名から決定的なIDを生成する。
func fallbackID(position int, degree string) string {
	key := fmt.Sprintf("academic:%d:%s", position, strings.ToLower(strings.TrimSpace(degree)))
	return uuid.NewSHA1(fallbackNamespace, []byte(key)).String()
}

func findDegree(entries []model.AcademicInfo, degree string) (model.AcademicInfo, bool) {
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e.NameOfDegree), degree) {
			return e, true
		}
	}
	return model.AcademicInfo{}, false
}

// emptySlot は標準スロットの空行を返す。既定IDが実レコードと衝突する場合は学位名由来のIDを使う。
func emptySlot(index int, degree string, usedIDs map[string]bool) model.AcademicInfo {
	id := defaultSlotIDs[index]
	if usedIDs[id] {
		id = "slot-" + strings.ToLower(degree)
	}
	return model.AcademicInfo{ID: id, NameOfDegree: degree}
}

package model

import "strings"

// Circular はお知らせ（サーキュラー）を表す。
type Circular struct {
	ID          FlexString `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PublishDate string     `json:"publishDate"`
	Category    string     `json:"category"`
	IsActive    bool       `json:"isActive"`
	Attachments []string   `json:"attachments,omitempty"`
}

// ExecutiveProgram は受講可能なコース（エグゼクティブプログラム）を表す。
// クライアントからは読み取り専用。
type ExecutiveProgram struct {
	ID                           int        `json:"id"`
	ProgramsName                 string     `json:"programsName"`
	ExecutiveProgramTypeID       int        `json:"executiveProgramTypeId"`
	StartDate                    string     `json:"startDate"`
	StartDateDescription         string     `json:"startDateDescription"`
	EndDate                      *string    `json:"endDate"`
	ProgramDuration              *int       `json:"programDuration"`
	ClassCount                   FlexString `json:"classCount"`
	ClassSchedule                string     `json:"classSchedule"`
	TotalHours                   float64    `json:"totalHours"`
	RegCost                      float64    `json:"regCost"`
	DiscoutPC                    float64    `json:"discoutPC"`
	IubStudentDiscoutPC          float64    `json:"iubStudentDiscoutPC"`
	RegCostDescription           string     `json:"regCostDescription"`
	IsRunning                    bool       `json:"isRunning"`
	IsSuccessfullyEPRegistration *bool      `json:"isSuccessfullyEPRegistration"`
}

// IsRegistered はログインユーザーが登録済みかを返す。nullは未登録扱い。
func (p ExecutiveProgram) IsRegistered() bool {
	return p.IsSuccessfullyEPRegistration != nil && *p.IsSuccessfullyEPRegistration
}

// ProgramType はプログラム種別。
type ProgramType struct {
	ID          FlexString `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

// Level はプログラム名から導出される難易度。保存されるフィールドではない。
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
	LevelUnknown      Level = "Unknown"
)

// ProgramLevel はプログラム名の部分一致（"Level 1"/"Level 2"/"Level 3"）で難易度を判定する。
func ProgramLevel(programsName string) Level {
	switch {
	case strings.Contains(programsName, "Level 1"):
		return LevelBeginner
	case strings.Contains(programsName, "Level 2"):
		return LevelIntermediate
	case strings.Contains(programsName, "Level 3"):
		return LevelAdvanced
	default:
		return LevelUnknown
	}
}

var programDescriptions = []struct {
	marker string
	text   string
}{
	{"Level 1A", "Learn basic Korean alphabet (Hangul), basic greetings, and simple conversations. Perfect for absolute beginners."},
	{"Level 1B", "Build upon Level 1A knowledge with more vocabulary and basic grammar patterns."},
	{"Level 2A", "Develop intermediate speaking and listening skills with focus on practical communication."},
	{"Level 2B", "Advanced intermediate level with complex grammar and extended vocabulary."},
	{"Level 3A", "Master advanced Korean with focus on academic and professional communication."},
	{"Level 3B", "Highest level with advanced literature analysis and professional Korean."},
}

// ProgramDescription はプログラム名から紹介文を導出する。
func ProgramDescription(programsName string) string {
	for _, d := range programDescriptions {
		if strings.Contains(programsName, d.marker) {
			return d.text
		}
	}
	return "Comprehensive Korean language course designed to enhance your language skills."
}

// ProgramFeatures はレベルごとの学習内容一覧を返す。
func ProgramFeatures(programsName string) []string {
	switch ProgramLevel(programsName) {
	case LevelBeginner:
		return []string{
			"Hangul reading and writing",
			"Basic vocabulary (500+ words)",
			"Simple sentence structures",
			"Cultural introduction",
			"Interactive speaking practice",
		}
	case LevelIntermediate:
		return []string{
			"Advanced grammar patterns",
			"Extended vocabulary (1000+ words)",
			"Past and future tenses",
			"Daily conversation practice",
			"Korean culture deep dive",
		}
	case LevelAdvanced:
		return []string{
			"Academic Korean writing",
			"Professional communication",
			"Literature analysis",
			"Advanced grammar mastery",
			"TOPIK Level 5-6 preparation",
		}
	default:
		return []string{
			"Comprehensive curriculum",
			"Expert instruction",
			"Interactive learning",
			"Cultural immersion",
			"Progress tracking",
		}
	}
}

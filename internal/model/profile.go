package model

// PersonalInfo はプロフィールの基本情報タブの内容。
// IsIubian が true の場合、StudentID と DepartmentName は必須になる。
type PersonalInfo struct {
	FirstName              string `json:"firstName"`
	LastName               string `json:"lastName"`
	Email                  string `json:"email"`
	IsIubian               bool   `json:"isIubian"`
	StudentID              string `json:"studentId"`
	DepartmentName         string `json:"departmentName"`
	DateOfBirth            string `json:"dateOfBirth"`
	Nationality            string `json:"nationality"`
	ContactNumber          string `json:"contactNumber"`
	EmergencyContactNumber string `json:"emergencyContactNumber"`
	FatherFirstName        string `json:"fatherFirstName"`
	FatherLastName         string `json:"fatherLastName"`
	MotherFirstName        string `json:"motherFirstName"`
	MotherLastName         string `json:"motherLastName"`
	PresentAddress         string `json:"presentAddress"`
	PermanentAddress       string `json:"permanentAddress"`
}

// CanonicalDegrees は学歴フォームに常に表示する標準の学位（表示順）。
var CanonicalDegrees = []string{"SSC", "HSC", "Honours", "Masters"}

// AcademicInfo は学歴1件の編集用表現。
// IDは位置ではなく同一性を表し、マージ後も保持される。
type AcademicInfo struct {
	ID               string `json:"id"`
	NameOfDegree     string `json:"nameOfDegree"`
	BoardOfEducation string `json:"boardOfEducation"`
	Institution      string `json:"institution"`
	AcademicYear     string `json:"academicYear"`
	Result           string `json:"result"`
}

// AcademicRecord はバックエンドが返す学歴レコード。
// 欠落フィールドや数値IDを含むことがあるため、すべてFlexStringで受ける。
type AcademicRecord struct {
	ID               FlexString `json:"id"`
	NameOfDegree     FlexString `json:"nameOfDegree"`
	BoardOfEducation FlexString `json:"boardOfEducation"`
	Institution      FlexString `json:"institution"`
	AcademicYear     FlexString `json:"academicYear"`
	Result           FlexString `json:"result"`
}

// Occupation は職歴情報。
type Occupation struct {
	UserID      FlexString `json:"userId"`
	Profession  string     `json:"profession,omitempty"`
	Institution string     `json:"institution,omitempty"`
	Department  string     `json:"department,omitempty"`
	FromDate    string     `json:"fromDate,omitempty"`
	ToDate      string     `json:"toDate,omitempty"`
	IsContinue  bool       `json:"isContinue"`
}

// Profile は GET /Profiles/profile のスナップショット。
type Profile struct {
	PersonalInfo         *PersonalInfo    `json:"personalInfo"`
	AcademicInformations []AcademicRecord `json:"academicInformations"`
	Occupations          []Occupation     `json:"occupations"`
}

// EducationRequest は学歴保存リクエストのボディ。
type EducationRequest struct {
	Education []AcademicInfo `json:"education"`
}

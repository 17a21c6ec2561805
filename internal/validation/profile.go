package validation

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/profile"
)

// BasicInfoForm は基本情報タブのフォーム。
// IsIubian は "yes"/"no"（未選択は空文字列）で受け取る。
type BasicInfoForm struct {
	FirstName              string `json:"firstName" validate:"notblank"`
	LastName               string `json:"lastName" validate:"notblank"`
	Email                  string `json:"email" validate:"notblank,emailshape"`
	IsIubian               string `json:"isIubian"`
	StudentID              string `json:"studentId"`
	DepartmentName         string `json:"departmentName"`
	DateOfBirth            string `json:"dateOfBirth" validate:"notblank"`
	Nationality            string `json:"nationality" validate:"notblank"`
	ContactNumber          string `json:"contactNumber" validate:"notblank"`
	EmergencyContactNumber string `json:"emergencyContactNumber"`
	FatherFirstName        string `json:"fatherFirstName"`
	FatherLastName         string `json:"fatherLastName"`
	MotherFirstName        string `json:"motherFirstName"`
	MotherLastName         string `json:"motherLastName"`
	PresentAddress         string `json:"presentAddress" validate:"notblank"`
	PermanentAddress       string `json:"permanentAddress" validate:"notblank"`
}

// IsIubianSelected はIUB学生フラグが "yes" かを返す。
func (f BasicInfoForm) IsIubianSelected() bool {
	return strings.EqualFold(strings.TrimSpace(f.IsIubian), "yes")
}

// PersonalInfo はフォームを保存用のモデルに変換する。
func (f BasicInfoForm) PersonalInfo() model.PersonalInfo {
	return model.PersonalInfo{
		FirstName:              strings.TrimSpace(f.FirstName),
		LastName:               strings.TrimSpace(f.LastName),
		Email:                  strings.TrimSpace(f.Email),
		IsIubian:               f.IsIubianSelected(),
		StudentID:              strings.TrimSpace(f.StudentID),
		DepartmentName:         strings.TrimSpace(f.DepartmentName),
		DateOfBirth:            f.DateOfBirth,
		Nationality:            strings.TrimSpace(f.Nationality),
		ContactNumber:          strings.TrimSpace(f.ContactNumber),
		EmergencyContactNumber: strings.TrimSpace(f.EmergencyContactNumber),
		FatherFirstName:        strings.TrimSpace(f.FatherFirstName),
		FatherLastName:         strings.TrimSpace(f.FatherLastName),
		MotherFirstName:        strings.TrimSpace(f.MotherFirstName),
		MotherLastName:         strings.TrimSpace(f.MotherLastName),
		PresentAddress:         strings.TrimSpace(f.PresentAddress),
		PermanentAddress:       strings.TrimSpace(f.PermanentAddress),
	}
}

// BasicInfoFormFrom は保存済みの個人情報からフォームの初期値を作る。
func BasicInfoFormFrom(info model.PersonalInfo, dateOfBirth string) BasicInfoForm {
	iubian := "no"
	if info.IsIubian {
		iubian = "yes"
	}
	return BasicInfoForm{
		FirstName:              info.FirstName,
		LastName:               info.LastName,
		Email:                  info.Email,
		IsIubian:               iubian,
		StudentID:              info.StudentID,
		DepartmentName:         info.DepartmentName,
		DateOfBirth:            dateOfBirth,
		Nationality:            info.Nationality,
		ContactNumber:          info.ContactNumber,
		EmergencyContactNumber: info.EmergencyContactNumber,
		FatherFirstName:        info.FatherFirstName,
		FatherLastName:         info.FatherLastName,
		MotherFirstName:        info.MotherFirstName,
		MotherLastName:         info.MotherLastName,
		PresentAddress:         info.PresentAddress,
		PermanentAddress:       info.PermanentAddress,
	}
}

var basicInfoMessages = messageTable{
	"firstName":        {notBlankTag: "First name is required"},
	"lastName":         {notBlankTag: "Last name is required"},
	"email":            {notBlankTag: "Email is required", emailShapeTag: "Email is invalid"},
	"dateOfBirth":      {notBlankTag: "Date of birth is required"},
	"nationality":      {notBlankTag: "Nationality is required"},
	"contactNumber":    {notBlankTag: "Contact number is required"},
	"presentAddress":   {notBlankTag: "Present address is required"},
	"permanentAddress": {notBlankTag: "Permanent address is required"},
	"studentId":        {iubRequiredTag: "Student ID is required for IUB students"},
	"departmentName":   {iubRequiredTag: "Department is required for IUB students"},
}

// basicInfoStructValidation はIUB学生フラグに応じた条件付き必須を検証する。
func basicInfoStructValidation(sl validator.StructLevel) {
	form, ok := sl.Current().Interface().(BasicInfoForm)
	if !ok || !form.IsIubianSelected() {
		return
	}
	if strings.TrimSpace(form.StudentID) == "" {
		sl.ReportError(form.StudentID, "studentId", "StudentID", iubRequiredTag, "")
	}
	if strings.TrimSpace(form.DepartmentName) == "" {
		sl.ReportError(form.DepartmentName, "departmentName", "DepartmentName", iubRequiredTag, "")
	}
}

// ValidateBasicInfo は基本情報フォームを検証する。
func ValidateBasicInfo(form BasicInfoForm) Errors {
	return collect(validate.Struct(form), basicInfoMessages, nil)
}

// academicEntry は学歴1件の必須項目。入力がある行にのみ適用する。
type academicEntry struct {
	NameOfDegree     string `json:"nameOfDegree" validate:"notblank"`
	BoardOfEducation string `json:"boardOfEducation" validate:"notblank"`
	Institution      string `json:"institution" validate:"notblank"`
	Result           string `json:"result" validate:"notblank"`
}

var academicMessages = messageTable{
	"nameOfDegree":     {notBlankTag: "Degree name is required"},
	"boardOfEducation": {notBlankTag: "Board of education is required"},
	"institution":      {notBlankTag: "Institution is required"},
	"result":           {notBlankTag: "Result is required"},
}

// AcademicErrorKey は学歴フィールドのエラーキー（"<field>_<entryID>"）を返す。
func AcademicErrorKey(field, entryID string) string {
	return field + "_" + entryID
}

// ValidateAcademicInfo は学歴一覧を検証する。
// 入力のある行は必須4項目すべてが必要で（キーは行ID、IDがなければ row<位置>）、入力のある行が1つもなければ "academic" キーにエラーを返す。
func ValidateAcademicInfo(entries []model.AcademicInfo) Errors {
	result := Errors{}
	anyFilled := false

	for i, entry := range entries {
		if !HasAcademicData(entry) {
			continue
		}
		anyFilled = true

		err := validate.Struct(academicEntry{
			NameOfDegree:     entry.NameOfDegree,
			BoardOfEducation: entry.BoardOfEducation,
			Institution:      entry.Institution,
			Result:           entry.Result,
		})
		id := entry.ID
		if strings.TrimSpace(id) == "" {
			// IDのない行は位置でキーを作る
			id = "row" + strconv.Itoa(i)
		}
		for k, v := range collect(err, academicMessages, func(field string) string {
			return AcademicErrorKey(field, id)
		}) {
			result[k] = v
		}
	}

	if !anyFilled {
		result["academic"] = "Please fill in at least one academic record"
	}
	return result
}

// HasAcademicData は行にユーザー入力があるかを返す。
// 標準の学位名（SSC/HSC/Honours/Masters）は空の行にも表示用に入っているため、入力とはみなさない。
func HasAcademicData(entry model.AcademicInfo) bool {
	for _, v := range []string{entry.BoardOfEducation, entry.Institution, entry.AcademicYear, entry.Result} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	name := strings.TrimSpace(entry.NameOfDegree)
	return name != "" && !profile.IsCanonical(name)
}

// Package validation はフォーム入力の検証を提供する。
// すべての関数は純粋関数で、フィールド名からエラーメッセージへのマップを返す。
// キーが存在しないフィールドは有効を意味する。
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// カスタム検証タグ
const (
	notBlankTag    = "notblank"
	emailShapeTag  = "emailshape"
	iubRequiredTag = "iubrequired"
)

// emailPattern は local@domain.tld 形式の簡易チェック。
var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// エラーキーにはGoのフィールド名ではなくJSONタグ名を使う
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	_ = validate.RegisterValidation(emailShapeTag, emailShape)
	validate.RegisterStructValidation(basicInfoStructValidation, BasicInfoForm{})
}

// Errors はフィールド名からエラーメッセージへのマップ。
type Errors map[string]string

// Valid はエラーがないかを返す。
func (e Errors) Valid() bool {
	return len(e) == 0
}

// Clear は指定フィールドのエラーを取り除く。再検証は行わない。
func (e Errors) Clear(field string) {
	delete(e, field)
}

// messageTable は (フィールド, タグ) ごとの表示メッセージ。
type messageTable map[string]map[string]string

// collect はvalidatorのエラーをErrorsに変換する。
// テーブルにないタグは英語の既定翻訳にフォールバックする。
func collect(err error, messages messageTable, keyOf func(field string) string) Errors {
	result := Errors{}
	if err == nil {
		return result
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		result["general"] = err.Error()
		return result
	}

	for _, fe := range verrs {
		field := fe.Field()
		key := field
		if keyOf != nil {
			key = keyOf(field)
		}
		if _, exists := result[key]; exists {
			continue
		}
		if msg, ok := messages[field][fe.Tag()]; ok {
			result[key] = msg
			continue
		}
		result[key] = fe.Translate(translator)
	}
	return result
}

func notBlank(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}

func emailShape(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return emailPattern.MatchString(s)
	}
	return false
}

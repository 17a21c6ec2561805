package validation

// RegistrationForm はアカウント登録フォーム。
type RegistrationForm struct {
	FirstName       string `json:"firstName" validate:"notblank"`
	LastName        string `json:"lastName" validate:"notblank"`
	Phone           string `json:"phone" validate:"notblank"`
	Email           string `json:"email" validate:"notblank,emailshape"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

var registrationMessages = messageTable{
	"firstName":       {notBlankTag: "First name is required"},
	"lastName":        {notBlankTag: "Last name is required"},
	"phone":           {notBlankTag: "Phone number is required"},
	"email":           {notBlankTag: "Email is required", emailShapeTag: "Email is invalid"},
	"password":        {"required": "Password is required", "min": "Password must be at least 6 characters"},
	"confirmPassword": {"eqfield": "Passwords do not match"},
}

// ValidateRegistration は登録フォームを検証する。
func ValidateRegistration(form RegistrationForm) Errors {
	return collect(validate.Struct(form), registrationMessages, nil)
}

// LoginForm はログインフォーム。
type LoginForm struct {
	UserName string `json:"userName" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

var loginMessages = messageTable{
	"userName": {notBlankTag: "User Id must not be empty."},
	"password": {"required": "Password is required"},
}

// ValidateLogin はログインフォームを検証する。
func ValidateLogin(form LoginForm) Errors {
	return collect(validate.Struct(form), loginMessages, nil)
}

// ResetPasswordForm はパスワード再設定フォーム。
type ResetPasswordForm struct {
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

var resetPasswordMessages = messageTable{
	"password":        {"required": "Password is required"},
	"confirmPassword": {"required": "Confirm Password is required", "eqfield": "Passwords do not match"},
}

// ValidateResetPassword はパスワード再設定フォームを検証する。
func ValidateResetPassword(form ResetPasswordForm) Errors {
	return collect(validate.Struct(form), resetPasswordMessages, nil)
}

// emailForm はパスワード忘れフォーム。
type emailForm struct {
	Email string `json:"email" validate:"notblank,emailshape"`
}

var emailMessages = messageTable{
	"email": {notBlankTag: "Email is required", emailShapeTag: "Please enter a valid email address"},
}

// ValidateEmail はパスワード忘れフォームのメールアドレスを検証する。
func ValidateEmail(email string) Errors {
	return collect(validate.Struct(emailForm{Email: email}), emailMessages, nil)
}

// ChangePasswordForm はログイン中のパスワード変更フォーム。
type ChangePasswordForm struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

var changePasswordMessages = messageTable{
	"currentPassword": {"required": "Current password is required"},
	"newPassword":     {"required": "New password is required", "min": "Password must be at least 6 characters"},
}

// ValidateChangePassword はパスワード変更フォームを検証する。
func ValidateChangePassword(form ChangePasswordForm) Errors {
	return collect(validate.Struct(form), changePasswordMessages, nil)
}

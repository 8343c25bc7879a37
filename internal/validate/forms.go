package validate

const (
	minAge = 0
	maxAge = 150
)

type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type DoctorSignup struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
	// ConfirmationID ties the account to a completed license payment.
	ConfirmationID string `json:"confirmationId" validate:"required"`
}

type CounterSignup struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=Password"`
}

type PasswordChange struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,nefield=OldPassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=NewPassword"`
}

type ForgotPassword struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordReset struct {
	Email           string `json:"email" validate:"required,email"`
	OTP             string `json:"otp" validate:"required,len=4,digits"`
	NewPassword     string `json:"newPassword" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"eqfield=NewPassword"`
}

// Patient is the counter's new-visit form.
type Patient struct {
	PatientName string `json:"patientName" validate:"required"`
	Age         *int   `json:"age" validate:"required,gte=0,lte=150"`
	Phone       string `json:"phone" validate:"required,digits,min=7,max=15"`
}

type Template struct {
	Name     string `json:"name" validate:"required"`
	ImageURL string `json:"imageUrl" validate:"omitempty,url"`
}

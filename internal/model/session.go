package model

// Role is the kind of clinic staff account.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RoleCounter Role = "counter"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RoleCounter
}

// Payment status values reported by /auth/me.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// Session is the authenticated actor held by the desk.
type Session struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Role          Role   `json:"role"`
	PaymentStatus string `json:"payment_status,omitempty"`
	ClinicName    string `json:"clinic_name,omitempty"`
	ClinicAddress string `json:"clinic_address,omitempty"`
	ProfileImage  string `json:"profile_image,omitempty"`
	AccessToken   string `json:"-"`
	RefreshToken  string `json:"-"`
}

// Identity is the identity document returned by the identity lookup and the
// profile update.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	Name          string `json:"name,omitempty"`
	ClinicName    string `json:"clinicName,omitempty"`
	ClinicAddress string `json:"clinicAddress,omitempty"`
	ProfileImage  string `json:"profileImage,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// WithIdentity returns a copy of s whose display fields are replaced by id.
// Tokens are preserved.
func (s Session) WithIdentity(id Identity) Session {
	s.ID = id.ID
	s.Email = id.Email
	s.Role = id.Role
	s.Name = id.Name
	s.ClinicName = id.ClinicName
	s.ClinicAddress = id.ClinicAddress
	s.ProfileImage = id.ProfileImage
	s.PaymentStatus = id.PaymentStatus
	return s
}

// HasRole reports whether the session role is one of roles.
func (s *Session) HasRole(roles ...Role) bool {
	if s == nil {
		return false
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// Paid reports whether the clinic license has been bought.
func (s *Session) Paid() bool {
	return s != nil && s.PaymentStatus == PaymentPaid
}

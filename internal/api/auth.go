package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// LoginResult is the login response.
type LoginResult struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name,omitempty"`
	Role         model.Role `json:"role"`
}

// Session converts the login response into a session.
func (r LoginResult) Session() model.Session {
	return model.Session{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		Role:         r.Role,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
}

// Login exchanges credentials for tokens. No bearer token is attached.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &res)
	if err != nil {
		return LoginResult{}, err
	}
	if res.AccessToken == "" {
		return LoginResult{}, fmt.Errorf("login: response carried no access token")
	}
	return res, nil
}

// DoctorRegistration is the doctor sign-up payload.
type DoctorRegistration struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	ConfirmationID string `json:"confirmationId"`
}

func (c *Client) RegisterDoctor(ctx context.Context, reg DoctorRegistration) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/register-doctor", reg, nil)
}

// CounterRegistration is the counter staff sign-up payload.
type CounterRegistration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) RegisterCounter(ctx context.Context, reg CounterRegistration) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/register-counter", reg, nil)
}

// Me looks up the identity owning token.
func (c *Client) Me(ctx context.Context, token string) (model.Identity, error) {
	var id model.Identity
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me", token: token}, &id)
	return id, err
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.doJSON(ctx, http.MethodPut, "/auth/password/change", map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	}, nil)
}

func (c *Client) SendForgotPasswordOTP(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/password/forgot/otp", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/password/reset", map[string]string{
		"email":       email,
		"otp":         otp,
		"newPassword": newPassword,
	}, nil)
}

// ProfileUpdate is the profile form. Image is optional.
type ProfileUpdate struct {
	Name          string
	ClinicName    string
	ClinicAddress string
	ImageName     string
	Image         io.Reader
}

// UpdateProfile sends the profile as a multipart form and returns the updated
// identity.
func (c *Client) UpdateProfile(ctx context.Context, p ProfileUpdate) (model.Identity, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"name", p.Name},
		{"clinicName", p.ClinicName},
		{"clinicAddress", p.ClinicAddress},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return model.Identity{}, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if p.Image != nil {
		name := p.ImageName
		if name == "" {
			name = "profile"
		}
		fw, err := mw.CreateFormFile("profileImage", name)
		if err != nil {
			return model.Identity{}, fmt.Errorf("create image part: %w", err)
		}
		if _, err := io.Copy(fw, p.Image); err != nil {
			return model.Identity{}, fmt.Errorf("copy image: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return model.Identity{}, fmt.Errorf("close multipart: %w", err)
	}

	var id model.Identity
	err := c.do(ctx, request{
		method:      http.MethodPut,
		path:        "/auth/profile/update",
		token:       c.accessToken(),
		raw:         &buf,
		contentType: mw.FormDataContentType(),
	}, &id)
	return id, err
}

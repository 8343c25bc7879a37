package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/auth"
	"github.com/dukerupert/clinicdesk/internal/model"
	"github.com/dukerupert/clinicdesk/internal/session"
	"github.com/dukerupert/clinicdesk/internal/validate"
)

const maxProfileImageBytes = 5 << 20

type AuthHandler struct {
	sessions *session.Store
	client   *api.Client
	logger   zerolog.Logger
}

func NewAuthHandler(sessions *session.Store, client *api.Client, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, client: client, logger: logger}
}

// LoginPage tells redirected callers that a login is required.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"login_required": h.sessions.Get() == nil})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form validate.Login
	if !decodeForm(w, r, &form) {
		return
	}
	sess, err := h.sessions.Login(r.Context(), strings.TrimSpace(form.Email), form.Password)
	if err != nil {
		h.logger.Info().Err(err).Msg("login failed")
		writeError(w, err, "Login failed. Please check your credentials.")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(); err != nil {
		h.logger.Error().Err(err).Msg("logout")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to log out"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Session reports the desk session without tokens. It never redirects, so
// the UI can use it to decide what to render while the session restores.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"loading":   h.sessions.Loading(),
		"logged_in": sess != nil,
		"session":   sess,
	})
}

// Home sends a signed-in user to their role's dashboard.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	switch auth.Role(r.Context()) {
	case model.RoleDoctor:
		http.Redirect(w, r, "/doctor-dashboard", http.StatusSeeOther)
	case model.RoleCounter:
		http.Redirect(w, r, "/counter-dashboard", http.StatusSeeOther)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *AuthHandler) RegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var form validate.DoctorSignup
	if !decodeForm(w, r, &form) {
		return
	}
	err := h.client.RegisterDoctor(r.Context(), api.DoctorRegistration{
		Name:           strings.TrimSpace(form.Name),
		Email:          strings.TrimSpace(form.Email),
		Password:       form.Password,
		ConfirmationID: form.ConfirmationID,
	})
	if err != nil {
		writeError(w, err, "Registration failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (h *AuthHandler) RegisterCounter(w http.ResponseWriter, r *http.Request) {
	var form validate.CounterSignup
	if !decodeForm(w, r, &form) {
		return
	}
	err := h.client.RegisterCounter(r.Context(), api.CounterRegistration{
		Name:     strings.TrimSpace(form.Name),
		Email:    strings.TrimSpace(form.Email),
		Password: form.Password,
	})
	if err != nil {
		writeError(w, err, "Registration failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var form validate.ForgotPassword
	if !decodeForm(w, r, &form) {
		return
	}
	if err := h.client.SendForgotPasswordOTP(r.Context(), strings.TrimSpace(form.Email)); err != nil {
		writeError(w, err, "Failed to send OTP. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "otp_sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var form validate.PasswordReset
	if !decodeForm(w, r, &form) {
		return
	}
	if err := h.client.ResetPassword(r.Context(), strings.TrimSpace(form.Email), form.OTP, form.NewPassword); err != nil {
		writeError(w, err, "Failed to reset password. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var form validate.PasswordChange
	if !decodeForm(w, r, &form) {
		return
	}
	if err := h.client.ChangePassword(r.Context(), form.OldPassword, form.NewPassword); err != nil {
		writeError(w, err, "Failed to change password. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// UpdateProfile accepts the profile as a multipart form with an optional
// profileImage file and forwards it to the clinic API.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProfileImageBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(maxProfileImageBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form"})
		return
	}

	update := api.ProfileUpdate{
		Name:          strings.TrimSpace(r.FormValue("name")),
		ClinicName:    strings.TrimSpace(r.FormValue("clinicName")),
		ClinicAddress: strings.TrimSpace(r.FormValue("clinicAddress")),
	}
	if update.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Name is required", "field": "name"})
		return
	}

	file, header, err := r.FormFile("profileImage")
	switch {
	case err == nil:
		defer file.Close()
		update.Image = file
		update.ImageName = header.Filename
	case !errors.Is(err, http.ErrMissingFile):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile image"})
		return
	}

	id, err := h.client.UpdateProfile(r.Context(), update)
	if err != nil {
		writeError(w, err, "Failed to update profile. Please try again.")
		return
	}
	if err := h.sessions.ApplyProfile(id); err != nil {
		writeError(w, err, "Session ended while updating profile.")
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Get())
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/validate"
)

// stdin is shared so consecutive prompts do not lose buffered input.
var stdin *bufio.Reader

// readSecret returns the flag value, or reads one line from stdin.
func readSecret(cmd *cobra.Command, flag, prompt string) (string, error) {
	v, _ := cmd.Flags().GetString(flag)
	if v != "" {
		return v, nil
	}
	if stdin == nil {
		stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// userError prefers the clinic API's message for display.
func userError(err error, fallback string) error {
	var verr *validate.Error
	if errors.As(err, &verr) {
		return verr
	}
	return errors.New(api.Message(err, fallback+": "+err.Error()))
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			email, _ := cmd.Flags().GetString("email")
			password, err := readSecret(cmd, "password", "Password: ")
			if err != nil {
				return err
			}
			form := validate.Login{Email: strings.TrimSpace(email), Password: password}
			if err := validate.Struct(form); err != nil {
				return err
			}

			d, err := openDesk(ctx, true)
			if err != nil {
				return err
			}
			defer d.Close()

			sess, err := d.Sessions.Login(ctx, form.Email, form.Password)
			if err != nil {
				return userError(err, "login failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", displayName(sess.Name, sess.Email), sess.Role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prompted when empty)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()
			d, err := openDesk(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Sessions.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the restored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()
			d, err := openDesk(ctx, true)
			if err != nil {
				return err
			}
			defer d.Close()

			sess := d.Sessions.Get()
			if sess == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", displayName(sess.Name, sess.Email), sess.Email)
			fmt.Fprintf(out, "role:    %s\n", sess.Role)
			if sess.ClinicName != "" {
				fmt.Fprintf(out, "clinic:  %s, %s\n", sess.ClinicName, sess.ClinicAddress)
			}
			payment := sess.PaymentStatus
			if payment == "" {
				payment = "unknown"
			}
			fmt.Fprintf(out, "license: %s\n", payment)
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a clinic account",
	}

	doctor := &cobra.Command{
		Use:   "doctor",
		Short: "Register the clinic's doctor account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			confirmation, _ := cmd.Flags().GetString("confirmation-id")
			password, err := readSecret(cmd, "password", "Password: ")
			if err != nil {
				return err
			}
			form := validate.DoctorSignup{
				Name:            strings.TrimSpace(name),
				Email:           strings.TrimSpace(email),
				Password:        password,
				ConfirmPassword: password,
				ConfirmationID:  confirmation,
			}
			if err := validate.Struct(form); err != nil {
				return err
			}

			d, err := openDesk(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			err = d.Client.RegisterDoctor(ctx, api.DoctorRegistration{
				Name:           form.Name,
				Email:          form.Email,
				Password:       form.Password,
				ConfirmationID: form.ConfirmationID,
			})
			if err != nil {
				return userError(err, "registration failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Doctor account registered; log in to continue")
			return nil
		},
	}
	doctor.Flags().String("name", "", "doctor's name")
	doctor.Flags().String("email", "", "account email")
	doctor.Flags().String("password", "", "account password (prompted when empty)")
	doctor.Flags().String("confirmation-id", "", "license payment confirmation id")

	counter := &cobra.Command{
		Use:   "counter",
		Short: "Register a counter staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, err := readSecret(cmd, "password", "Password: ")
			if err != nil {
				return err
			}
			form := validate.CounterSignup{
				Name:            strings.TrimSpace(name),
				Email:           strings.TrimSpace(email),
				Password:        password,
				ConfirmPassword: password,
			}
			if err := validate.Struct(form); err != nil {
				return err
			}

			d, err := openDesk(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			err = d.Client.RegisterCounter(ctx, api.CounterRegistration{
				Name:     form.Name,
				Email:    form.Email,
				Password: form.Password,
			})
			if err != nil {
				return userError(err, "registration failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Counter account registered")
			return nil
		},
	}
	counter.Flags().String("name", "", "staff member's name")
	counter.Flags().String("email", "", "account email")
	counter.Flags().String("password", "", "account password (prompted when empty)")

	cmd.AddCommand(doctor, counter)
	return cmd
}

func passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change or recover the account password",
	}

	change := &cobra.Command{
		Use:   "change",
		Short: "Change the logged-in account's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			oldPassword, err := readSecret(cmd, "old", "Current password: ")
			if err != nil {
				return err
			}
			newPassword, err := readSecret(cmd, "new", "New password: ")
			if err != nil {
				return err
			}
			confirm, err := readSecret(cmd, "confirm", "Confirm new password: ")
			if err != nil {
				return err
			}
			form := validate.PasswordChange{OldPassword: oldPassword, NewPassword: newPassword, ConfirmPassword: confirm}
			if err := validate.Struct(form); err != nil {
				return err
			}

			d, err := openDesk(ctx, true)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := requireSession(d); err != nil {
				return err
			}

			if err := d.Client.ChangePassword(ctx, form.OldPassword, form.NewPassword); err != nil {
				return userError(err, "password change failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return nil
		},
	}
	change.Flags().String("old", "", "current password")
	change.Flags().String("new", "", "new password")
	change.Flags().String("confirm", "", "new password again")

	forgot := &cobra.Command{
		Use:   "forgot",
		Short: "Email a one-time code for resetting the password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			email, _ := cmd.Flags().GetString("email")
			form := validate.ForgotPassword{Email: strings.TrimSpace(email)}
			if err := validate.Struct(form); err != nil {
				return err
			}
			d, err := openDesk(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Client.SendForgotPasswordOTP(ctx, form.Email); err != nil {
				return userError(err, "could not send code")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Code sent; run `clinicdesk password reset` with it")
			return nil
		},
	}
	forgot.Flags().String("email", "", "account email")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset the password with an emailed code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			email, _ := cmd.Flags().GetString("email")
			otp, _ := cmd.Flags().GetString("otp")
			newPassword, err := readSecret(cmd, "new", "New password: ")
			if err != nil {
				return err
			}
			confirm, err := readSecret(cmd, "confirm", "Confirm new password: ")
			if err != nil {
				return err
			}
			form := validate.PasswordReset{
				Email:           strings.TrimSpace(email),
				OTP:             strings.TrimSpace(otp),
				NewPassword:     newPassword,
				ConfirmPassword: confirm,
			}
			if err := validate.Struct(form); err != nil {
				return err
			}

			d, err := openDesk(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Client.ResetPassword(ctx, form.Email, form.OTP, form.NewPassword); err != nil {
				return userError(err, "password reset failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset; log in with the new password")
			return nil
		},
	}
	reset.Flags().String("email", "", "account email")
	reset.Flags().String("otp", "", "4-digit code from the email")
	reset.Flags().String("new", "", "new password")
	reset.Flags().String("confirm", "", "new password again")

	cmd.AddCommand(change, forgot, reset)
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the account profile",
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Update name, clinic details and profile image",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			d, err := openDesk(ctx, true)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := requireSession(d); err != nil {
				return err
			}
			cur := d.Sessions.Get()

			p := api.ProfileUpdate{
				Name:          cur.Name,
				ClinicName:    cur.ClinicName,
				ClinicAddress: cur.ClinicAddress,
			}
			if cmd.Flags().Changed("name") {
				p.Name, _ = cmd.Flags().GetString("name")
			}
			if cmd.Flags().Changed("clinic-name") {
				p.ClinicName, _ = cmd.Flags().GetString("clinic-name")
			}
			if cmd.Flags().Changed("clinic-address") {
				p.ClinicAddress, _ = cmd.Flags().GetString("clinic-address")
			}
			if strings.TrimSpace(p.Name) == "" {
				return &validate.Error{Field: "name", Message: "Name is required"}
			}
			if path, _ := cmd.Flags().GetString("image"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open image: %w", err)
				}
				defer f.Close()
				p.Image = f
				p.ImageName = filepath.Base(path)
			}

			id, err := d.Client.UpdateProfile(ctx, p)
			if err != nil {
				return userError(err, "profile update failed")
			}
			if err := d.Sessions.ApplyProfile(id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile updated")
			return nil
		},
	}
	update.Flags().String("name", "", "display name")
	update.Flags().String("clinic-name", "", "clinic name")
	update.Flags().String("clinic-address", "", "clinic address")
	update.Flags().String("image", "", "path to a profile image")

	cmd.AddCommand(update)
	return cmd
}

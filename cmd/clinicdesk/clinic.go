package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/clinicdesk/internal/handler"
	"github.com/dukerupert/clinicdesk/internal/logging"
	"github.com/dukerupert/clinicdesk/internal/model"
	"github.com/dukerupert/clinicdesk/internal/payment"
	"github.com/dukerupert/clinicdesk/internal/queue"
	"github.com/dukerupert/clinicdesk/internal/validate"
)

func visitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Register and look up patient visits",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Register a patient for today's queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			name, _ := cmd.Flags().GetString("name")
			phone, _ := cmd.Flags().GetString("phone")
			form := validate.Patient{PatientName: strings.TrimSpace(name), Phone: strings.TrimSpace(phone)}
			if cmd.Flags().Changed("age") {
				age, _ := cmd.Flags().GetInt("age")
				form.Age = &age
			}
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

			v, err := d.Client.CreateVisit(ctx, model.NewVisit{PatientName: form.PatientName, Age: *form.Age, Phone: form.Phone})
			if err != nil {
				return userError(err, "registration failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, appointment #%d\n", form.PatientName, v.AppointmentNumber)
			return nil
		},
	}
	create.Flags().String("name", "", "patient name")
	create.Flags().Int("age", 0, "patient age in years")
	create.Flags().String("phone", "", "contact phone number, digits only")

	today := &cobra.Command{
		Use:   "today",
		Short: "List today's visits",
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

			visits, err := d.Client.TodayVisits(ctx)
			if err != nil {
				return userError(err, "could not load visits")
			}
			printVisits(cmd.OutOrStdout(), visits)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <visit-id>",
		Short: "Show one visit",
		Args:  cobra.ExactArgs(1),
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

			v, err := d.Client.VisitDetails(ctx, args[0])
			if err != nil {
				return userError(err, "could not load visit")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "#%d %s (%d) %s\n", v.AppointmentNumber, v.PatientName, v.Age, v.Phone)
			fmt.Fprintf(out, "status:       %s\n", v.Status)
			if v.Diagnosis != "" {
				fmt.Fprintf(out, "diagnosis:    %s\n", v.Diagnosis)
			}
			if v.Prescription != "" {
				fmt.Fprintf(out, "prescription: %s\n", v.Prescription)
			}
			return nil
		},
	}

	cmd.AddCommand(create, today, show)
	return cmd
}

func printVisits(w io.Writer, visits []model.Visit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NO\tPATIENT\tAGE\tPHONE\tSTATUS")
	for _, v := range visits {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", v.AppointmentNumber, v.PatientName, v.Age, v.Phone, v.Status)
	}
	tw.Flush()
}

func printSnapshot(w io.Writer, snap model.QueueSnapshot) {
	current := "none"
	if snap.CurrentPatient != nil {
		current = fmt.Sprintf("#%d %s", snap.CurrentPatient.AppointmentNumber, snap.CurrentPatient.PatientName)
	}
	fmt.Fprintf(w, "now seeing: %s | completed: %d | today: %d\n", current, len(snap.CompletedList), snap.TotalToday)
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the clinic queue",
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

			watch, _ := cmd.Flags().GetBool("watch")
			if !watch {
				snap, err := d.Client.QueueStatus(ctx)
				if err != nil {
					return userError(err, "could not load queue")
				}
				printSnapshot(cmd.OutOrStdout(), snap)
				return nil
			}

			p := queue.NewPoller(d.Client, queue.Config{
				Interval:   d.Config.PollInterval,
				MinVisible: d.Config.RefreshMinVisible,
			}, logging.Component(d.Logger, "queue"))
			p.OnUpdate(func(snap model.QueueSnapshot) {
				printSnapshot(cmd.OutOrStdout(), snap)
			})
			// a 401 clears the session; stop watching then
			unsubscribe := d.Sessions.Subscribe(func(sess *model.Session) {
				if sess == nil {
					cancel()
				}
			})
			defer unsubscribe()

			p.Start(ctx)
			<-ctx.Done()
			p.Stop()
			p.Wait()
			if d.Sessions.Get() == nil {
				return errors.New("session ended; log in again")
			}
			return nil
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "keep polling until interrupted")
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage prescription templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved templates",
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

			templates, err := d.Client.ListTemplates(ctx)
			if err != nil {
				return userError(err, "could not load templates")
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tIMAGE")
			for _, t := range templates {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Name, t.ImageURL)
			}
			return tw.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Save a new template",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()

			name, _ := cmd.Flags().GetString("name")
			image, _ := cmd.Flags().GetString("image-url")
			form := validate.Template{Name: strings.TrimSpace(name), ImageURL: strings.TrimSpace(image)}
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

			t, err := d.Client.CreateTemplate(ctx, form.Name, form.ImageURL)
			if err != nil {
				return userError(err, "could not save template")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved template %s (%s)\n", t.Name, t.ID)
			return nil
		},
	}
	add.Flags().String("name", "", "template name")
	add.Flags().String("image-url", "", "optional reference image URL")

	del := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
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

			if err := d.Client.DeleteTemplate(ctx, args[0]); err != nil {
				return userError(err, "could not delete template")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted")
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func payCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Buy the clinic license",
		Long: "Starts a license payment and waits for the checkout widget to report " +
			"its result to a local callback address, then verifies the payment.",
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

			addr, _ := cmd.Flags().GetString("callback-addr")
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen for payment callback: %w", err)
			}
			callbacks := handler.NewPaymentHandler(d.Payments, ctx, logging.Component(d.Logger, "payment"))
			mux := http.NewServeMux()
			mux.HandleFunc("GET /payment/callback", callbacks.Callback)
			srv := &http.Server{Handler: mux}
			go srv.Serve(ln)
			defer srv.Shutdown(context.Background())

			out := cmd.OutOrStdout()
			outcome, err := d.Payments.Pay(ctx, func(o model.PaymentOrder) {
				fmt.Fprintf(out, "Order %s: %s %s (checkout key %s)\n", o.OrderID, o.Amount, o.Currency, o.Key)
				fmt.Fprintf(out, "Checkout callback: http://%s/payment/callback?order_id=%s&status=success\n",
					ln.Addr(), url.QueryEscape(o.OrderID))
				fmt.Fprintln(out, "Waiting for the payment to complete...")
			})
			switch {
			case errors.Is(err, payment.ErrCancelled):
				fmt.Fprintln(out, "Payment cancelled")
				return nil
			case err != nil:
				return userError(err, "payment failed")
			}
			fmt.Fprintf(out, "Payment %s; license is now %s\n", outcome, licenseStatus(d.Sessions.Get()))
			return nil
		},
	}
	cmd.Flags().String("callback-addr", "127.0.0.1:0", "local address for the checkout callback")
	return cmd
}

func licenseStatus(sess *model.Session) string {
	if sess.Paid() {
		return "active"
	}
	return "pending"
}

func themeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark]",
		Short:     "Show or set the desk theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{model.ThemeLight, model.ThemeDark},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible()
			defer cancel()
			d, err := openDesk(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			if len(args) == 1 {
				if err := d.Settings.SetTheme(args[0]); err != nil {
					return err
				}
			}
			theme, err := d.Settings.Theme()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme)
			return nil
		},
	}
}

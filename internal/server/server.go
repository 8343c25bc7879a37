package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/desk"
	"github.com/dukerupert/clinicdesk/internal/handler"
	"github.com/dukerupert/clinicdesk/internal/logging"
	"github.com/dukerupert/clinicdesk/internal/middleware"
	"github.com/dukerupert/clinicdesk/internal/model"
	ws "github.com/dukerupert/clinicdesk/internal/websocket"
)

const (
	loginRateLimit      = 10
	loginRateWindow     = time.Minute
	rateCleanupInterval = 5 * time.Minute
)

type Server struct {
	desk        *desk.Desk
	hub         *ws.Hub
	authH       *handler.AuthHandler
	visitH      *handler.VisitHandler
	templateH   *handler.TemplateHandler
	paymentH    *handler.PaymentHandler
	settingsH   *handler.SettingsHandler
	rateLimiter *middleware.RateLimiter
	base        context.Context
	logger      zerolog.Logger

	syncMu sync.Mutex
}

// New builds the desk HTTP server. base bounds background work the server
// starts: session restore, queue polling and pending payments.
func New(base context.Context, d *desk.Desk, logger zerolog.Logger) *Server {
	hub := ws.NewHub(logging.Component(logger, "websocket"))

	s := &Server{
		desk:        d,
		hub:         hub,
		authH:       handler.NewAuthHandler(d.Sessions, d.Client, logging.Component(logger, "auth")),
		visitH:      handler.NewVisitHandler(d.Client, d.Queue, logging.Component(logger, "visit")),
		templateH:   handler.NewTemplateHandler(d.Client, logging.Component(logger, "template")),
		paymentH:    handler.NewPaymentHandler(d.Payments, base, logging.Component(logger, "payment")),
		settingsH:   handler.NewSettingsHandler(d.Settings, hub, logging.Component(logger, "settings")),
		rateLimiter: middleware.NewRateLimiter(),
		base:        base,
		logger:      logger,
	}

	d.Queue.OnUpdate(func(snap model.QueueSnapshot) {
		hub.Broadcast(ws.QueueUpdated(snap))
	})
	d.Sessions.Subscribe(func(*model.Session) {
		s.syncSession()
	})
	return s
}

// Start restores the session in the background and runs housekeeping until
// base is done. Guarded routes answer 503 until the restore finishes.
func (s *Server) Start() {
	go func() {
		if err := s.desk.Sessions.Initialize(s.base); err != nil {
			s.logger.Warn().Err(err).Msg("session restore")
		}
		s.syncQueue()
		sess := s.desk.Sessions.Get()
		evt := s.logger.Info().Bool("logged_in", sess != nil)
		if sess != nil {
			evt = evt.Str("role", string(sess.Role))
		}
		evt.Msg("session restored")
	}()
	go s.rateLimiter.Run(s.base, rateCleanupInterval)
}

// syncQueue polls the queue exactly while someone is signed in. Session
// notifications may arrive out of order, so the current session is read
// rather than trusting the notification.
func (s *Server) syncQueue() {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.syncQueueLocked(s.desk.Sessions.Get())
}

// syncSession pushes the current session to screens and matches polling to
// it. Notifications can arrive out of order, so it reads the store rather
// than trusting the notified value.
func (s *Server) syncSession() {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	sess := s.desk.Sessions.Get()
	s.hub.Broadcast(ws.SessionChanged(sess))
	s.syncQueueLocked(sess)
}

func (s *Server) syncQueueLocked(sess *model.Session) {
	owner := ""
	if sess != nil {
		owner = sess.ID + "|" + sess.AccessToken
	}
	s.desk.Queue.Sync(s.base, owner)
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /login", s.authH.LoginPage)
	outerMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /register/doctor", s.rateLimitedHandler(s.authH.RegisterDoctor))
	outerMux.HandleFunc("POST /register/counter", s.rateLimitedHandler(s.authH.RegisterCounter))
	outerMux.HandleFunc("POST /password/forgot", s.rateLimitedHandler(s.authH.ForgotPassword))
	outerMux.HandleFunc("POST /password/reset", s.rateLimitedHandler(s.authH.ResetPassword))
	outerMux.HandleFunc("GET /api/session", s.authH.Session)
	outerMux.HandleFunc("GET /payment/callback", s.paymentH.Callback)
	outerMux.HandleFunc("GET /api/settings/theme", s.settingsH.GetTheme)

	signedIn := middleware.RequireRole(s.desk.Sessions)
	doctor := middleware.RequireRole(s.desk.Sessions, model.RoleDoctor)
	counter := middleware.RequireRole(s.desk.Sessions, model.RoleCounter)
	staff := middleware.RequireRole(s.desk.Sessions, model.RoleDoctor, model.RoleCounter)

	outerMux.Handle("GET /{$}", signedIn(http.HandlerFunc(s.authH.Home)))
	outerMux.Handle("POST /logout", signedIn(http.HandlerFunc(s.authH.Logout)))
	outerMux.Handle("GET /counter-dashboard", counter(s.visitH.Dashboard("counter")))
	outerMux.Handle("GET /doctor-dashboard", doctor(s.visitH.Dashboard("doctor")))

	outerMux.Handle("GET /api/queue", staff(http.HandlerFunc(s.visitH.Queue)))
	outerMux.Handle("POST /api/queue/refresh", staff(http.HandlerFunc(s.visitH.RefreshQueue)))
	outerMux.Handle("POST /api/visits", counter(http.HandlerFunc(s.visitH.Create)))
	outerMux.Handle("GET /api/visits/today", staff(http.HandlerFunc(s.visitH.Today)))
	outerMux.Handle("GET /api/visits/{id}", staff(http.HandlerFunc(s.visitH.Show)))

	outerMux.Handle("GET /api/templates", doctor(http.HandlerFunc(s.templateH.List)))
	outerMux.Handle("POST /api/templates", doctor(http.HandlerFunc(s.templateH.Create)))
	outerMux.Handle("DELETE /api/templates/{id}", doctor(http.HandlerFunc(s.templateH.Delete)))

	outerMux.Handle("PUT /api/password", signedIn(http.HandlerFunc(s.authH.ChangePassword)))
	outerMux.Handle("PUT /api/profile", signedIn(http.HandlerFunc(s.authH.UpdateProfile)))
	outerMux.Handle("POST /api/payment", doctor(http.HandlerFunc(s.paymentH.Start)))
	outerMux.Handle("PUT /api/settings/theme", signedIn(http.HandlerFunc(s.settingsH.UpdateTheme)))

	outerMux.Handle("GET /ws", signedIn(ws.HandleWebSocket(s.hub, logging.Component(s.logger, "websocket"))))

	var h http.Handler = outerMux
	h = middleware.RequestLogger(logging.Component(s.logger, "http"))(h)
	h = middleware.Recovery(s.logger)(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"loading":   s.desk.Sessions.Loading(),
		"ws_client": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	key := func(r *http.Request) string {
		return r.URL.Path + "|" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, key, loginRateLimit, loginRateWindow)
	return rl(h).ServeHTTP
}

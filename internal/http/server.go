package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"spendwise/internal/auth"
	"spendwise/internal/ledger"
	"spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/realtime"
	"spendwise/internal/store"
	appweb "spendwise/web"
)

const (
	pathSignIn  = "/signin"
	pathSignUp  = "/signup"
	pathList    = "/"
	pathEntry   = "/expenses/new"
	pathCreated = pathSignIn + "?created=1"
)

// Deps are the services the screens call.
type Deps struct {
	Accounts auth.Service
	Sessions *auth.Sessions
	Ledger   *ledger.Ledger
	Reader   store.Reader
	Listener *realtime.Listener
	// Pinger backs the readiness probe; usually the document store.
	Pinger interface {
		Ping(ctx context.Context) error
	}
	Limiter *ratelimit.Limiter
	Logger  *log.Logger
}

// Options tune the HTTP surface.
type Options struct {
	Addr               string
	Location           *time.Location
	SecureCookies      bool
	CORSAllowedOrigins []string
	// Heartbeat is the idle interval between event-stream keepalives.
	Heartbeat time.Duration
}

type Server struct {
	http.Server
	templates *template.Template
	deps      Deps
	opts      Options
	logger    *log.Logger
	detector  *security.Detector
	tracer    *trace.Middleware

	started      time.Time
	streams      atomic.Int64
	closing      chan struct{}
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and mounts every route.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 25 * time.Second
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	s := &Server{
		templates: t,
		deps:      deps,
		opts:      opts,
		logger:    deps.Logger.WithComponent(log.ComponentHTTP),
		detector:  detector,
		tracer:    trace.NewMiddleware(detector.ClientIP),
		started:   time.Now(),
		closing:   make(chan struct{}),
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.Server.RegisterOnShutdown(func() { close(s.closing) })
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(s.deps.Logger))
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	if len(s.opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "HX-Request", "HX-Current-URL", "HX-Target", "HX-Trigger"},
			ExposedHeaders:   []string{"HX-Redirect", "HX-Trigger"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(auth.Middleware(s.deps.Sessions))
	r.Use(log.ComponentMiddleware(log.ComponentHTTP))
	r.MethodNotAllowed(s.handleMethodNotAllowed(r))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	limited := s.deps.Limiter.Middleware(s.detector.ClientIP, s.handleRateLimited)

	r.Get(pathSignIn, s.handleSignInPage)
	r.Get(pathSignUp, s.handleSignUpPage)
	r.With(limited).Post(pathSignIn, s.handleSignIn)
	r.With(limited).Post(pathSignUp, s.handleSignUp)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(pathSignIn))

		r.Get(pathList, s.handleList)
		r.Get(pathEntry, s.handleEntryPage)
		r.Get("/events", s.handleEvents)

		r.With(limited).Post("/signout", s.handleSignOut)
		r.With(limited).Post("/expenses", s.handleCreateExpense)
		r.With(limited).Delete("/expenses/{id}", s.handleDeleteExpense)
	})

	return r
}

// routedMethods are the methods any route registers.
var routedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete}

// handleMethodNotAllowed answers 405 with the methods the path does accept.
func (s *Server) handleMethodNotAllowed(routes chi.Routes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed := make([]string, 0, len(routedMethods))
		for _, m := range routedMethods {
			if routes.Match(chi.NewRouteContext(), m, r.URL.Path) {
				allowed = append(allowed, m)
			}
		}
		log.FromContext(r.Context()).DebugContext(r.Context(), "Method not allowed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		MethodNotAllowedError(strings.Join(allowed, ", ")).Write(w)
	}
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	DialogResponse(http.StatusTooManyRequests, TitleError, "Rate limit exceeded. Please try again later.").Write(w)
}

// render executes a full page or partial template.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", name)
	}
}

// Shutdown stops accepting requests and waits for in-flight ones. Open event
// streams are told to finish so they do not hold the shutdown open.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// ListenAndServe serves until Shutdown; http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

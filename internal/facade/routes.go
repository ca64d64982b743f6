package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sk8tingusmc/forge/internal/event"
	"github.com/sk8tingusmc/forge/internal/supervisor"
)

// Config holds the facade's HTTP server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default facade configuration.
func DefaultConfig() Config {
	return Config{
		Port:         4096,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: /events is a long-lived SSE stream
	}
}

// Facade is the HTTP/SSE binding over the Supervisor's command surface.
type Facade struct {
	config  Config
	router  *chi.Mux
	httpSrv *http.Server
	sup     *supervisor.Supervisor
	bus     *event.Bus
	log     zerolog.Logger
}

// New builds a Facade wired to sup and bus, with routes and middleware
// already mounted.
func New(cfg Config, sup *supervisor.Supervisor, bus *event.Bus, log zerolog.Logger) *Facade {
	f := &Facade{
		config: cfg,
		router: chi.NewRouter(),
		sup:    sup,
		bus:    bus,
		log:    log,
	}
	f.setupMiddleware()
	f.setupRoutes()
	return f
}

func (f *Facade) setupMiddleware() {
	f.router.Use(middleware.RequestID)
	f.router.Use(middleware.Recoverer)
	f.router.Use(middleware.RealIP)
	if f.config.EnableCORS {
		f.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (f *Facade) setupRoutes() {
	f.router.Route("/command", func(r chi.Router) {
		r.Post("/{name}", f.executeCommand)
	})
	f.router.Get("/events", f.events)
}

// executeCommand dispatches POST /command/{name} through the fixed
// command table, matching every name in the command surface.
func (f *Facade) executeCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	handler, ok := commands[name]
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown command %q", name))
		return
	}

	var body json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	result, err := handler(r.Context(), f.sup, body)
	if err != nil {
		status := statusFor(err)
		code := ErrCodeInvalidRequest
		switch status {
		case http.StatusNotFound:
			code = ErrCodeNotFound
		case http.StatusNotImplemented:
			code = ErrCodeInternalError
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Start begins serving HTTP. It blocks until the server stops.
func (f *Facade) Start() error {
	f.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", f.config.Port),
		Handler:      f.router,
		ReadTimeout:  f.config.ReadTimeout,
		WriteTimeout: f.config.WriteTimeout,
	}
	return f.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (f *Facade) Shutdown(ctx context.Context) error {
	if f.httpSrv == nil {
		return nil
	}
	return f.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (f *Facade) Router() *chi.Mux {
	return f.router
}

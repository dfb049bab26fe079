// Package api exposes the studio over JSON HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/digkill/hydrastudio/internal/generation"
	"github.com/digkill/hydrastudio/internal/identity"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/service"
	"github.com/digkill/hydrastudio/internal/state"
	"github.com/digkill/hydrastudio/internal/storage"
)

type Options struct {
	Addr           string
	AllowedOrigins []string
	SiteURL        string
}

type Deps struct {
	State      *state.AppState
	Identity   identity.Provider
	History    *service.History
	Checkout   *service.Checkout
	Profiles   *service.Profiles
	Branding   *service.Branding
	Packages   *service.Packages
	Generators []*generation.Orchestrator
	// Blobs is set when video artifacts are kept in process.
	Blobs *storage.Blobs
}

type Server struct {
	opts       Options
	deps       Deps
	generators map[models.Kind]*generation.Orchestrator
	log        *slog.Logger
	router     *chi.Mux
	root       context.Context
}

func NewServer(opts Options, deps Deps, log *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		opts:       opts,
		deps:       deps,
		generators: make(map[models.Kind]*generation.Orchestrator),
		log:        log,
		router:     r,
		root:       context.Background(),
	}
	for _, g := range deps.Generators {
		s.generators[g.Kind()] = g
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Put("/view", s.handleSetView)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signin", s.handleSignIn)
		r.Post("/signup", s.handleSignUp)
		r.Post("/signout", s.handleSignOut)
		r.Get("/google", s.handleGoogle)
		r.Get("/callback", s.handleCallback)
		r.Post("/prompt", s.handleShowAuth)
		r.Delete("/prompt", s.handleHideAuth)
	})

	r.Get("/packages", s.handleListPackages)
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", s.handleSelectPackage)
		r.Post("/pay", s.handlePay)
		r.Delete("/", s.handleCancelCheckout)
	})
	r.Get("/payments", s.handleListPayments)

	r.Put("/profile", s.handleUpdateProfile)
	r.Post("/profile/prompt", s.handleShowProfile)
	r.Delete("/profile/prompt", s.handleHideProfile)

	r.Route("/generate/{kind}", func(r chi.Router) {
		r.Post("/", s.handleGenerate)
		r.Get("/", s.handleGenerationStatus)
		r.Post("/commit", s.handleCommit)
		r.Delete("/", s.handleDiscard)
		r.Post("/cancel", s.handleCancelGeneration)
	})
	r.Get("/history", s.handleHistory)
	r.Post("/brand-logo", s.handleBrandLogo)
	if deps.Blobs != nil {
		r.Get("/blobs/{id}", s.handleBlob)
	}
	return s
}

// Handler is the router wrapped with CORS for the configured front-end origins.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Run serves until ctx is cancelled. Background generations are bound to ctx.
func (s *Server) Run(ctx context.Context) error {
	s.root = ctx
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("studio api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("api handler error", "err", err)
		msg = "internal error"
	}
	s.writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "BAD_REQUEST"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func classify(err error) (int, string) {
	var authErr *identity.Error
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		return http.StatusUnauthorized, "AUTH_REQUIRED"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, identity.CodeInvalidCredentials
	case errors.Is(err, service.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, identity.CodeEmailTaken
	case errors.Is(err, generation.ErrBusy), errors.Is(err, service.ErrLogoBusy):
		return http.StatusConflict, "BUSY"
	case errors.Is(err, service.ErrCreditConflict):
		return http.StatusConflict, "CREDIT_CONFLICT"
	case errors.Is(err, service.ErrLogoLocked):
		return http.StatusConflict, "LOGO_LOCKED"
	case errors.Is(err, generation.ErrNothingStaged):
		return http.StatusConflict, "NOTHING_STAGED"
	case errors.Is(err, generation.ErrEmptyPrompt),
		errors.Is(err, generation.ErrInvalidAspect),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrNoSelection),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, identity.ErrInvalidInput):
		return http.StatusBadRequest, identity.CodeAuth
	case errors.Is(err, identity.ErrOAuthDisabled):
		return http.StatusServiceUnavailable, identity.CodeOAuthInit
	case errors.As(err, &authErr) && authErr.Code == identity.CodeOAuthExchange:
		return http.StatusBadRequest, authErr.Code
	case errors.As(err, &authErr):
		return http.StatusInternalServerError, authErr.Code
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

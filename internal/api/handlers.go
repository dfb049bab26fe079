package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/digkill/hydrastudio/internal/generation"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/service"
	"github.com/digkill/hydrastudio/internal/state"
)

const oauthStateCookie = "hydra_oauth_state"

type stateResponse struct {
	state.Snapshot
	Generators   []generation.Status `json:"generators"`
	HistoryCount int                 `json:"history_count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() stateResponse {
	resp := stateResponse{Snapshot: s.deps.State.Snapshot()}
	for _, kind := range []models.Kind{models.KindImage, models.KindVideo} {
		if g, ok := s.generators[kind]; ok {
			resp.Generators = append(resp.Generators, g.Status())
		}
	}
	if s.deps.History != nil {
		resp.HistoryCount = s.deps.History.Len()
	}
	return resp
}

type viewRequest struct {
	View models.View `json:"view"`
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	switch req.View {
	case models.ViewLanding:
	case models.ViewDashboard:
		if s.deps.State.User() == nil {
			s.deps.State.RequestAuth()
			s.writeError(w, service.ErrAuthRequired)
			return
		}
	default:
		s.badRequest(w, "unknown view")
		return
	}
	s.deps.State.SetView(req.View)
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if _, err := s.deps.Identity.SignIn(r.Context(), req.Email, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if _, err := s.deps.Identity.SignUp(r.Context(), req.Email, req.Password); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.snapshot())
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Identity.SignOut(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	nonce := uuid.NewString()
	target, err := s.deps.Identity.OAuthURL(nonce)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    nonce,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// handleCallback finishes third-party sign-in and sends the browser back to the site.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/auth", MaxAge: -1})

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		s.redirectAuthResult(w, r, "OAUTH_STATE_MISMATCH")
		return
	}
	if msg := r.URL.Query().Get("error"); msg != "" {
		s.log.Info("oauth denied", "error", msg)
		s.redirectAuthResult(w, r, "OAUTH_DENIED")
		return
	}
	if _, err := s.deps.Identity.CompleteOAuth(r.Context(), r.URL.Query().Get("code")); err != nil {
		_, code := classify(err)
		s.log.Error("oauth callback", "err", err)
		s.redirectAuthResult(w, r, code)
		return
	}
	s.redirectAuthResult(w, r, "")
}

func (s *Server) redirectAuthResult(w http.ResponseWriter, r *http.Request, code string) {
	q := url.Values{}
	if code == "" {
		q.Set("auth", "ok")
	} else {
		q.Set("auth", "error")
		q.Set("code", code)
	}
	http.Redirect(w, r, s.opts.SiteURL+"/?"+q.Encode(), http.StatusFound)
}

func (s *Server) handleShowAuth(w http.ResponseWriter, _ *http.Request) {
	s.deps.State.RequestAuth()
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHideAuth(w http.ResponseWriter, _ *http.Request) {
	s.deps.State.DismissAuth()
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.deps.Packages.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packages)
}

type selectRequest struct {
	PackageID int64  `json:"package_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Credits   int    `json:"credits"`
}

func (s *Server) handleSelectPackage(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}

	var sel models.PlanSelection
	if req.PackageID != 0 {
		pkg, err := s.deps.Packages.Get(r.Context(), req.PackageID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if pkg == nil || !pkg.IsActive {
			s.writeJSON(w, http.StatusNotFound, errorBody{Error: "package not found", Code: "NOT_FOUND"})
			return
		}
		sel = pkg.Selection()
	} else {
		if strings.TrimSpace(req.Name) == "" {
			s.badRequest(w, "package_id or name required")
			return
		}
		sel = models.PlanSelection{Name: req.Name, Price: req.Price, Credits: req.Credits}
	}

	if err := s.deps.Checkout.Select(sel); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

type payRequest struct {
	CardName string `json:"card_name"`
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.badRequest(w, err.Error())
			return
		}
	}
	payment, err := s.deps.Checkout.Pay(r.Context(), req.CardName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"payment": payment,
		"state":   s.snapshot(),
	})
}

func (s *Server) handleCancelCheckout(w http.ResponseWriter, _ *http.Request) {
	s.deps.Checkout.Cancel()
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.deps.Checkout.Payments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

type profileRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if _, err := s.deps.Profiles.UpdateEmail(r.Context(), req.Email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleShowProfile(w http.ResponseWriter, _ *http.Request) {
	if s.deps.State.User() == nil {
		s.deps.State.RequestAuth()
		s.writeError(w, service.ErrAuthRequired)
		return
	}
	s.deps.State.SetShowProfile(true)
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHideProfile(w http.ResponseWriter, _ *http.Request) {
	s.deps.State.SetShowProfile(false)
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) generator(w http.ResponseWriter, r *http.Request) (*generation.Orchestrator, bool) {
	kind := models.Kind(chi.URLParam(r, "kind"))
	g, ok := s.generators[kind]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown generation kind", Code: "NOT_FOUND"})
		return nil, false
	}
	return g, true
}

// handleGenerate charges and submits synchronously, then the job finishes in the background.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	g, ok := s.generator(w, r)
	if !ok {
		return
	}
	var req generation.Request
	if err := decodeJSON(r, &req); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if err := g.Start(s.root, req); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, g.Status())
}

func (s *Server) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	g, ok := s.generator(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, g.Status())
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	g, ok := s.generator(w, r)
	if !ok {
		return
	}
	record, err := g.Commit(r.Context())
	switch {
	case errors.Is(err, generation.ErrHistoryNotSaved):
		// The result left the stage either way; the client keeps the record and learns it will not survive a restart.
		s.log.Warn("commit returned unsaved record", "id", record.ID, "err", err)
		s.writeJSON(w, http.StatusCreated, commitResponse{Generation: record, Code: "HISTORY_NOT_SAVED"})
	case err != nil:
		s.writeError(w, err)
	default:
		s.writeJSON(w, http.StatusCreated, commitResponse{Generation: record, Persisted: true})
	}
}

type commitResponse struct {
	models.Generation
	Persisted bool   `json:"persisted"`
	Code      string `json:"code,omitempty"`
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	g, ok := s.generator(w, r)
	if !ok {
		return
	}
	if !g.Discard() {
		s.writeError(w, generation.ErrNothingStaged)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelGeneration(w http.ResponseWriter, r *http.Request) {
	g, ok := s.generator(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": g.Cancel()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	items := s.deps.History.List()
	if raw := r.URL.Query().Get("type"); raw != "" {
		kind := models.Kind(raw)
		if !kind.Valid() {
			s.badRequest(w, "unknown type")
			return
		}
		filtered := items[:0]
		for _, item := range items {
			if item.Kind == kind {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.badRequest(w, "invalid limit")
			return
		}
		if limit < len(items) {
			items = items[:limit]
		}
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleBrandLogo(w http.ResponseWriter, r *http.Request) {
	logo, err := s.deps.Branding.Generate(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": logo})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := s.deps.Blobs.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(data); err != nil {
		s.log.Debug("write blob", "err", err)
	}
}

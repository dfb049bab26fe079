// Package state holds the single application state every studio component shares.
package state

import (
	"sync"

	"github.com/digkill/hydrastudio/internal/models"
)

// Snapshot is a point-in-time copy of the application state.
type Snapshot struct {
	User        *models.User          `json:"user"`
	View        models.View           `json:"view"`
	ShowAuth    bool                  `json:"show_auth"`
	ShowProfile bool                  `json:"show_profile"`
	Checkout    *models.PlanSelection `json:"checkout"`
	BrandLogo   string                `json:"brand_logo,omitempty"`
	Revision    uint64                `json:"revision"`
}

type AppState struct {
	mu          sync.RWMutex
	user        *models.User
	view        models.View
	showAuth    bool
	showProfile bool
	checkout    *models.PlanSelection
	brandLogo   string
	revision    uint64
}

func New() *AppState {
	return &AppState{view: models.ViewLanding}
}

func (s *AppState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		User:        copyUser(s.user),
		View:        s.view,
		ShowAuth:    s.showAuth,
		ShowProfile: s.showProfile,
		Checkout:    copySelection(s.checkout),
		BrandLogo:   s.brandLogo,
		Revision:    s.revision,
	}
}

// User returns a copy of the current user, or nil when signed out.
func (s *AppState) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

func (s *AppState) SetUser(u *models.User) {
	s.mu.Lock()
	s.user = copyUser(u)
	s.revision++
	s.mu.Unlock()
}

// SetCredits updates the balance only if userID is still the signed-in user.
func (s *AppState) SetCredits(userID string, credits int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != userID {
		return false
	}
	s.user.Credits = credits
	s.revision++
	return true
}

// SetEmail updates the display address only if userID is still the signed-in user.
// The admin flag is left as it is.
func (s *AppState) SetEmail(userID, email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != userID {
		return false
	}
	s.user.Email = email
	s.revision++
	return true
}

// SignOut clears the user and returns to the landing view.
func (s *AppState) SignOut() {
	s.mu.Lock()
	s.user = nil
	s.view = models.ViewLanding
	s.showProfile = false
	s.checkout = nil
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) View() models.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *AppState) SetView(v models.View) {
	s.mu.Lock()
	s.view = v
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) RequestAuth() {
	s.mu.Lock()
	s.showAuth = true
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) DismissAuth() {
	s.mu.Lock()
	s.showAuth = false
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) SetShowProfile(show bool) {
	s.mu.Lock()
	s.showProfile = show
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) Checkout() *models.PlanSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySelection(s.checkout)
}

func (s *AppState) OpenCheckout(sel models.PlanSelection) {
	s.mu.Lock()
	s.checkout = &sel
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) CloseCheckout() {
	s.mu.Lock()
	s.checkout = nil
	s.revision++
	s.mu.Unlock()
}

func (s *AppState) BrandLogo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brandLogo
}

func (s *AppState) SetBrandLogo(url string) {
	s.mu.Lock()
	s.brandLogo = url
	s.revision++
	s.mu.Unlock()
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func copySelection(sel *models.PlanSelection) *models.PlanSelection {
	if sel == nil {
		return nil
	}
	cp := *sel
	return &cp
}

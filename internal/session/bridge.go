// Package session keeps the application's user in step with the identity provider.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/digkill/hydrastudio/internal/identity"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/repository"
	"github.com/digkill/hydrastudio/internal/state"
)

// ProfileStore is the remote profile table as the bridge sees it.
// FindByID returns repository.ErrProfileNotFound when no row exists.
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) (*models.Profile, error)
}

type Options struct {
	SignupCredits int
	Admin         models.AdminRule
}

type Bridge struct {
	provider identity.Provider
	profiles ProfileStore
	state    *state.AppState
	opts     Options
	log      *slog.Logger

	mu          sync.Mutex
	stopped     bool
	unsubscribe func()
}

func NewBridge(provider identity.Provider, profiles ProfileStore, st *state.AppState, opts Options, log *slog.Logger) *Bridge {
	if opts.SignupCredits <= 0 {
		opts.SignupCredits = 5
	}
	return &Bridge{
		provider: provider,
		profiles: profiles,
		state:    st,
		opts:     opts,
		log:      log,
	}
}

// Start resolves any existing session and then follows session changes until Stop.
func (b *Bridge) Start(ctx context.Context) error {
	current, err := b.provider.Session(ctx)
	if err != nil {
		b.log.Error("read initial session", "err", err)
	} else if current != nil {
		b.resolve(ctx, current)
	}

	unsubscribe := b.provider.Subscribe(b.handle)
	b.mu.Lock()
	b.stopped = false
	b.unsubscribe = unsubscribe
	b.mu.Unlock()
	return nil
}

// Stop ends the subscription. No event is handled after Stop returns.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.stopped = true
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (b *Bridge) handle(ctx context.Context, ev identity.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}

	if ev.Session == nil {
		b.state.SignOut()
		b.log.Info("session ended", "event", string(ev.Kind))
		return
	}

	b.resolve(ctx, ev.Session)
	if ev.Kind == identity.EventSignedIn || ev.Kind == identity.EventUserUpdated {
		b.state.DismissAuth()
	}
}

// resolve loads or creates the profile for s and installs it as the current user.
// Failures are logged and leave the current user untouched.
func (b *Bridge) resolve(ctx context.Context, s *identity.Session) {
	profile, err := b.profiles.FindByID(ctx, s.UserID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		profile, err = b.profiles.Create(ctx, &models.Profile{
			ID:      s.UserID,
			Email:   s.Email,
			Credits: b.opts.SignupCredits,
			Plan:    models.PlanFree,
		})
		if err != nil {
			b.log.Error("create profile", "user_id", s.UserID, "err", err)
			return
		}
		b.log.Info("profile created", "user_id", s.UserID, "credits", profile.Credits)
	} else if err != nil {
		b.log.Error("fetch profile", "user_id", s.UserID, "err", err)
		return
	}

	// The profile address is user-editable; admin follows the signed-in credential only.
	email := profile.Email
	if email == "" {
		email = s.Email
	}
	b.state.SetUser(&models.User{
		ID:      profile.ID,
		Email:   email,
		Credits: profile.Credits,
		Plan:    profile.Plan,
		IsAdmin: b.opts.Admin.Match(s.Email),
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/state"
)

var ErrInvalidEmail = errors.New("invalid email address")

type EmailStore interface {
	UpdateEmail(ctx context.Context, id, email string) error
}

type Profiles struct {
	state *state.AppState
	store EmailStore
}

func NewProfiles(st *state.AppState, store EmailStore) *Profiles {
	return &Profiles{state: st, store: store}
}

// UpdateEmail changes the contact address on the profile. The address is unverified, so
// admin status stays tied to the signed-in credential and never follows this edit.
func (s *Profiles) UpdateEmail(ctx context.Context, email string) (*models.User, error) {
	user := s.state.User()
	if user == nil {
		s.state.RequestAuth()
		return nil, ErrAuthRequired
	}
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if err := s.store.UpdateEmail(ctx, user.ID, email); err != nil {
		return nil, fmt.Errorf("update email: %w", err)
	}
	s.state.SetEmail(user.ID, email)
	return s.state.User(), nil
}

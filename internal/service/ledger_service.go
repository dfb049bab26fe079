package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/state"
)

var (
	ErrAuthRequired        = errors.New("sign-in required")
	ErrInsufficientCredits = errors.New("insufficient credits, payment required")
	ErrCreditConflict      = errors.New("credit balance changed concurrently")
	ErrInvalidAmount       = errors.New("credit amount must be positive")
)

// CreditStore is the remote balance. SwapCredits writes next only while the stored value equals expected.
type CreditStore interface {
	SwapCredits(ctx context.Context, id string, expected, next int) (bool, error)
}

// Ledger gates every credit change on the signed-in user's balance.
type Ledger struct {
	state *state.AppState
	store CreditStore
	log   *slog.Logger
	mu    sync.Mutex
}

func NewLedger(st *state.AppState, store CreditStore, log *slog.Logger) *Ledger {
	return &Ledger{state: st, store: store, log: log}
}

// Grant adds amount to the balance. Local state changes only after the remote write succeeds.
func (l *Ledger) Grant(ctx context.Context, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	user := l.state.User()
	if user == nil {
		return ErrAuthRequired
	}
	next := user.Credits + amount
	if err := l.swap(ctx, user, next); err != nil {
		return fmt.Errorf("grant credits: %w", err)
	}
	l.log.Info("credits granted", "user_id", user.ID, "amount", amount, "balance", next)
	return nil
}

// Spend deducts amount. Without a user it raises the auth prompt; admins are never charged;
// a short balance opens checkout with the default refill package.
func (l *Ledger) Spend(ctx context.Context, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	user := l.state.User()
	if user == nil {
		l.state.RequestAuth()
		return ErrAuthRequired
	}
	if user.IsAdmin {
		return nil
	}
	if user.Credits < amount {
		l.state.OpenCheckout(models.DefaultRefill)
		return ErrInsufficientCredits
	}
	next := user.Credits - amount
	if err := l.swap(ctx, user, next); err != nil {
		return fmt.Errorf("spend credits: %w", err)
	}
	l.log.Info("credits spent", "user_id", user.ID, "amount", amount, "balance", next)
	return nil
}

func (l *Ledger) swap(ctx context.Context, user *models.User, next int) error {
	ok, err := l.store.SwapCredits(ctx, user.ID, user.Credits, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCreditConflict
	}
	l.state.SetCredits(user.ID, next)
	return nil
}

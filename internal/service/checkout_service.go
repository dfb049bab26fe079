package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/state"
)

var ErrNoSelection = errors.New("no package selected")

const (
	fallbackCheckoutCredits = 10
	simulatedProvider       = "simulated"
)

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	ListByUser(ctx context.Context, userID string) ([]models.Payment, error)
}

// Checkout runs the simulated purchase flow: select a package, pay, receive credits.
// No money moves; the plan tier is left as it was.
type Checkout struct {
	state    *state.AppState
	ledger   *Ledger
	payments PaymentStore
	delay    time.Duration
	log      *slog.Logger
}

func NewCheckout(st *state.AppState, ledger *Ledger, payments PaymentStore, delay time.Duration, log *slog.Logger) *Checkout {
	return &Checkout{state: st, ledger: ledger, payments: payments, delay: delay, log: log}
}

// Select opens checkout for sel. Signed-out callers get the auth prompt instead.
func (c *Checkout) Select(sel models.PlanSelection) error {
	if c.state.User() == nil {
		c.state.RequestAuth()
		return ErrAuthRequired
	}
	c.state.OpenCheckout(sel)
	return nil
}

func (c *Checkout) Cancel() {
	c.state.CloseCheckout()
}

// Pay completes the open selection after the processing delay.
func (c *Checkout) Pay(ctx context.Context, cardName string) (*models.Payment, error) {
	sel := c.state.Checkout()
	if sel == nil {
		return nil, ErrNoSelection
	}
	user := c.state.User()
	if user == nil {
		c.state.RequestAuth()
		return nil, ErrAuthRequired
	}

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	credits := sel.Credits
	if credits <= 0 {
		credits = fallbackCheckoutCredits
	}
	if err := c.ledger.Grant(ctx, credits); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	payment := &models.Payment{
		UserID:   user.ID,
		Provider: simulatedProvider,
		Package:  sel.Name,
		Price:    sel.Price,
		Credits:  credits,
		Status:   "paid",
		CardName: strings.TrimSpace(cardName),
	}
	if err := c.payments.Create(ctx, payment); err != nil {
		c.log.Error("record payment", "user_id", user.ID, "package", sel.Name, "err", err)
	}
	c.state.CloseCheckout()
	c.log.Info("checkout completed", "user_id", user.ID, "package", sel.Name, "credits", credits)
	return payment, nil
}

// Payments lists the signed-in user's completed checkouts, newest first.
func (c *Checkout) Payments(ctx context.Context) ([]models.Payment, error) {
	user := c.state.User()
	if user == nil {
		return nil, ErrAuthRequired
	}
	return c.payments.ListByUser(ctx, user.ID)
}

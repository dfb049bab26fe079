package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/state"
)

func TestCheckoutGrantsPackageCredits(t *testing.T) {
	st, store := signedIn(2, false)
	payments := &fakePayments{}
	checkout := NewCheckout(st, NewLedger(st, store, testLog), payments, 0, testLog)

	if err := checkout.Select(models.PlanSelection{Name: "Producer", Price: "39", Credits: 150}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	payment, err := checkout.Pay(context.Background(), "  Jane Doe ")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if st.User().Credits != 152 || store.balance("u1") != 152 {
		t.Fatalf("credits = %d", st.User().Credits)
	}
	if st.Checkout() != nil {
		t.Fatal("selection should be cleared")
	}
	if st.User().Plan != models.PlanFree {
		t.Fatal("plan tier must not change")
	}
	if payment.Provider != "simulated" || payment.CardName != "Jane Doe" || payment.Credits != 150 {
		t.Fatalf("payment = %+v", payment)
	}
	listed, err := checkout.Payments(context.Background())
	if err != nil || len(listed) != 1 {
		t.Fatalf("Payments = %v, %v", listed, err)
	}
}

func TestCheckoutZeroCreditsFallsBack(t *testing.T) {
	st, store := signedIn(0, false)
	checkout := NewCheckout(st, NewLedger(st, store, testLog), &fakePayments{}, 0, testLog)
	_ = checkout.Select(models.PlanSelection{Name: "Custom", Price: "5"})

	if _, err := checkout.Pay(context.Background(), ""); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if st.User().Credits != 10 {
		t.Fatalf("credits = %d, want 10", st.User().Credits)
	}
}

func TestCheckoutSelectRequiresUser(t *testing.T) {
	st := state.New()
	checkout := NewCheckout(st, NewLedger(st, newFakeCredits(), testLog), &fakePayments{}, 0, testLog)

	if err := checkout.Select(models.DefaultRefill); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	snap := st.Snapshot()
	if !snap.ShowAuth || snap.Checkout != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCheckoutPayWithoutSelection(t *testing.T) {
	st, store := signedIn(0, false)
	checkout := NewCheckout(st, NewLedger(st, store, testLog), &fakePayments{}, 0, testLog)
	if _, err := checkout.Pay(context.Background(), ""); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
}

func TestCheckoutPayHonoursCancellation(t *testing.T) {
	st, store := signedIn(0, false)
	checkout := NewCheckout(st, NewLedger(st, store, testLog), &fakePayments{}, time.Minute, testLog)
	_ = checkout.Select(models.DefaultRefill)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := checkout.Pay(ctx, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.User().Credits != 0 || st.Checkout() == nil {
		t.Fatal("cancelled payment changed state")
	}
}

func TestCheckoutCancelClearsSelection(t *testing.T) {
	st, store := signedIn(0, false)
	checkout := NewCheckout(st, NewLedger(st, store, testLog), &fakePayments{}, 0, testLog)
	_ = checkout.Select(models.DefaultRefill)
	checkout.Cancel()
	if st.Checkout() != nil {
		t.Fatal("selection not cleared")
	}
}

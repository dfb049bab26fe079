package service

import (
	"context"
	"errors"
	"sync"

	"github.com/digkill/hydrastudio/internal/gemini"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/state"
	"github.com/digkill/hydrastudio/pkg/logger"
)

type fakeCredits struct {
	mu       sync.Mutex
	balances map[string]int
	err      error
	calls    int
}

func newFakeCredits() *fakeCredits {
	return &fakeCredits{balances: make(map[string]int)}
}

func (f *fakeCredits) SwapCredits(_ context.Context, id string, expected, next int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.balances[id] != expected {
		return false, nil
	}
	f.balances[id] = next
	return true, nil
}

func (f *fakeCredits) balance(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[id]
}

type fakeHistoryRecords struct {
	mu      sync.Mutex
	items   []models.Generation
	loadErr error
	saveErr error
	saves   int
}

func (f *fakeHistoryRecords) LoadHistory(context.Context) ([]models.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]models.Generation(nil), f.items...), nil
}

func (f *fakeHistoryRecords) SaveHistory(_ context.Context, items []models.Generation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.items = append([]models.Generation(nil), items...)
	return nil
}

type fakePayments struct {
	mu   sync.Mutex
	rows []models.Payment
}

func (f *fakePayments) Create(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *p)
	return nil
}

func (f *fakePayments) ListByUser(_ context.Context, userID string) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

type fakePackages struct {
	mu   sync.Mutex
	rows []models.CreditPackage
}

func (f *fakePackages) ListActive(context.Context) ([]models.CreditPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditPackage
	for _, p := range f.rows {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePackages) GetByID(_ context.Context, id int64) (*models.CreditPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePackages) GetByName(_ context.Context, name string) (*models.CreditPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.Name == name {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePackages) Create(_ context.Context, pkg *models.CreditPackage) (*models.CreditPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *pkg)
	cp := *pkg
	return &cp, nil
}

type fakeEmails struct {
	mu     sync.Mutex
	emails map[string]string
	err    error
}

func (f *fakeEmails) UpdateEmail(_ context.Context, id, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.emails == nil {
		f.emails = make(map[string]string)
	}
	f.emails[id] = email
	return nil
}

type fakeImages struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt, aspectRatio string) (*gemini.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt+"|"+aspectRatio)
	if f.err != nil {
		return nil, f.err
	}
	return &gemini.Image{MIMEType: "image/png", Data: []byte("logo")}, nil
}

type fakeLogo struct {
	mu  sync.Mutex
	url string
}

func (f *fakeLogo) LoadBrandLogo(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeLogo) SaveBrandLogo(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	return nil
}

var errRemote = errors.New("remote unavailable")

func signedIn(credits int, admin bool) (*state.AppState, *fakeCredits) {
	st := state.New()
	st.SetUser(&models.User{ID: "u1", Email: "fan@example.com", Credits: credits, Plan: models.PlanFree, IsAdmin: admin})
	store := newFakeCredits()
	store.balances["u1"] = credits
	return st, store
}

var testLog = logger.Discard()

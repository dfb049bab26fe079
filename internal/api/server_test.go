package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/digkill/hydrastudio/internal/gemini"
	"github.com/digkill/hydrastudio/internal/generation"
	"github.com/digkill/hydrastudio/internal/identity"
	"github.com/digkill/hydrastudio/internal/localstore"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/repository"
	"github.com/digkill/hydrastudio/internal/service"
	"github.com/digkill/hydrastudio/internal/session"
	"github.com/digkill/hydrastudio/internal/state"
	"github.com/digkill/hydrastudio/internal/storage"
	"github.com/digkill/hydrastudio/pkg/logger"
)

type memAccounts struct {
	mu    sync.Mutex
	items map[string]identity.Account
}

func (m *memAccounts) Create(_ context.Context, a *identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.Email]; ok {
		return identity.ErrEmailTaken
	}
	m.items[a.Email] = *a
	return nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memAccounts) FindByID(_ context.Context, id string) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.items {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

// memProfiles stands in for the profiles table.
type memProfiles struct {
	mu    sync.Mutex
	items map[string]models.Profile
}

func (m *memProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	return &p, nil
}

func (m *memProfiles) Create(_ context.Context, p *models.Profile) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ID] = *p
	cp := *p
	return &cp, nil
}

func (m *memProfiles) SwapCredits(_ context.Context, id string, expected, next int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || p.Credits != expected {
		return false, nil
	}
	p.Credits = next
	m.items[id] = p
	return true, nil
}

func (m *memProfiles) UpdateEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.items[id]
	p.Email = email
	m.items[id] = p
	return nil
}

type memPackages struct{}

func (memPackages) ListActive(context.Context) ([]models.CreditPackage, error) {
	out := make([]models.CreditPackage, len(service.DefaultPackages))
	for i, p := range service.DefaultPackages {
		p.ID = int64(i + 1)
		out[i] = p
	}
	return out, nil
}

func (m memPackages) GetByID(ctx context.Context, id int64) (*models.CreditPackage, error) {
	all, _ := m.ListActive(ctx)
	for _, p := range all {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

func (memPackages) GetByName(context.Context, string) (*models.CreditPackage, error) {
	return nil, nil
}

func (memPackages) Create(_ context.Context, p *models.CreditPackage) (*models.CreditPackage, error) {
	return p, nil
}

type memPayments struct {
	mu    sync.Mutex
	items []models.Payment
}

func (m *memPayments) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = int64(len(m.items) + 1)
	m.items = append(m.items, *p)
	return nil
}

func (m *memPayments) ListByUser(_ context.Context, userID string) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.items {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubImages struct{}

func (stubImages) GenerateImage(context.Context, string, string) (*gemini.Image, error) {
	return &gemini.Image{MIMEType: "image/png", Data: []byte("png")}, nil
}

// failingKV is the in-memory KV whose writes can be switched off mid-test.
type failingKV struct {
	*localstore.Memory
	mu      sync.Mutex
	failSet bool
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *failingKV) breakWrites() {
	f.mu.Lock()
	f.failSet = true
	f.mu.Unlock()
}

type harness struct {
	srv      *httptest.Server
	state    *state.AppState
	profiles *memProfiles
	blobs    *storage.Blobs
	kv       *failingKV
}

func newHarness(t *testing.T, signupCredits int) *harness {
	t.Helper()
	log := logger.Discard()
	ctx := context.Background()

	st := state.New()
	kv := &failingKV{Memory: localstore.NewMemory()}
	records := localstore.NewRecords(kv)
	profiles := &memProfiles{items: make(map[string]models.Profile)}
	provider := identity.NewLocal(identity.LocalConfig{Secret: []byte("test-secret")},
		&memAccounts{items: make(map[string]identity.Account)}, records, log)

	bridge := session.NewBridge(provider, profiles, st, session.Options{
		SignupCredits: signupCredits,
		Admin:         models.DefaultAdminRule,
	}, log)
	if err := bridge.Start(ctx); err != nil {
		t.Fatalf("bridge start: %v", err)
	}
	t.Cleanup(bridge.Stop)

	ledger := service.NewLedger(st, profiles, log)
	history := service.NewHistory(records, log)
	history.Load(ctx)
	blobs := storage.NewBlobs("/blobs")

	images := generation.NewOrchestrator(generation.NewImageStrategy(stubImages{}), ledger, history, st, generation.Options{}, log)

	server := NewServer(Options{SiteURL: "http://site.test"}, Deps{
		State:      st,
		Identity:   provider,
		History:    history,
		Checkout:   service.NewCheckout(st, ledger, &memPayments{}, 0, log),
		Profiles:   service.NewProfiles(st, profiles),
		Branding:   service.NewBranding(st, stubImages{}, records, log),
		Packages:   service.NewPackages(memPackages{}),
		Generators: []*generation.Orchestrator{images},
		Blobs:      blobs,
	}, log)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, state: st, profiles: profiles, blobs: blobs, kv: kv}
}

func (h *harness) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func (h *harness) expect(t *testing.T, method, path string, body any, status int) []byte {
	t.Helper()
	resp, data := h.do(t, method, path, body)
	if resp.StatusCode != status {
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, status, data)
	}
	return data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("decode error body %s: %v", data, err)
	}
	return body.Code
}

func (h *harness) signUp(t *testing.T, email string) {
	t.Helper()
	h.expect(t, http.MethodPost, "/auth/signup", credentialsRequest{Email: email, Password: "secret123"}, http.StatusCreated)
}

func (h *harness) waitStaged(t *testing.T, kind models.Kind) generation.Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var st generation.Status
		data := h.expect(t, http.MethodGet, "/generate/"+string(kind), nil, http.StatusOK)
		if err := json.Unmarshal(data, &st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if st.Phase == generation.PhaseStaged {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s generation never staged", kind)
	return generation.Status{}
}

func TestDashboardRequiresSignIn(t *testing.T) {
	h := newHarness(t, 5)

	data := h.expect(t, http.MethodPut, "/view", viewRequest{View: models.ViewDashboard}, http.StatusUnauthorized)
	if code := errorCode(t, data); code != "AUTH_REQUIRED" {
		t.Fatalf("code = %s", code)
	}
	snap := h.state.Snapshot()
	if !snap.ShowAuth || snap.View != models.ViewLanding {
		t.Fatalf("snapshot = %+v", snap)
	}

	h.signUp(t, "fan@example.com")
	h.expect(t, http.MethodPut, "/view", viewRequest{View: models.ViewDashboard}, http.StatusOK)
	if snap := h.state.Snapshot(); snap.ShowAuth || snap.View != models.ViewDashboard {
		t.Fatalf("after sign-in snapshot = %+v", snap)
	}
}

func TestSignUpAndSignInErrors(t *testing.T) {
	h := newHarness(t, 5)

	var resp stateResponse
	data := h.expect(t, http.MethodPost, "/auth/signup", credentialsRequest{Email: "Fan@Example.com", Password: "secret123"}, http.StatusCreated)
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User == nil || resp.User.Email != "fan@example.com" || resp.User.Credits != 5 || resp.User.Plan != models.PlanFree {
		t.Fatalf("user = %+v", resp.User)
	}

	h.expect(t, http.MethodPost, "/auth/signout", nil, http.StatusNoContent)
	if h.state.User() != nil {
		t.Fatal("user kept after sign-out")
	}

	cases := []struct {
		path   string
		req    credentialsRequest
		status int
		code   string
	}{
		{"/auth/signup", credentialsRequest{Email: "fan@example.com", Password: "secret123"}, http.StatusConflict, identity.CodeEmailTaken},
		{"/auth/signup", credentialsRequest{Email: "new@example.com", Password: "123"}, http.StatusBadRequest, identity.CodeAuth},
		{"/auth/signin", credentialsRequest{Email: "fan@example.com", Password: "wrong-pass"}, http.StatusUnauthorized, identity.CodeInvalidCredentials},
	}
	for _, tc := range cases {
		data := h.expect(t, http.MethodPost, tc.path, tc.req, tc.status)
		if code := errorCode(t, data); code != tc.code {
			t.Fatalf("%s %+v: code = %s, want %s", tc.path, tc.req, code, tc.code)
		}
	}

	h.expect(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "fan@example.com", Password: "secret123"}, http.StatusOK)
	if u := h.state.User(); u == nil || u.Credits != 5 {
		t.Fatalf("signed-in user = %+v", u)
	}
}

func TestImageGenerationCommitFlow(t *testing.T) {
	h := newHarness(t, 5)
	h.signUp(t, "fan@example.com")

	h.expect(t, http.MethodPost, "/generate/image", generation.Request{Prompt: "neon rain", AspectRatio: "9:16"}, http.StatusAccepted)
	st := h.waitStaged(t, models.KindImage)
	if st.Staged == nil || !strings.HasPrefix(st.Staged.URL, "data:image/png;base64,") {
		t.Fatalf("staged = %+v", st.Staged)
	}
	if u := h.state.User(); u.Credits != 4 {
		t.Fatalf("credits = %d, want 4", u.Credits)
	}

	var record commitResponse
	data := h.expect(t, http.MethodPost, "/generate/image/commit", nil, http.StatusCreated)
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Kind != models.KindImage || record.Prompt != "neon rain" || !record.Persisted || record.Code != "" {
		t.Fatalf("record = %+v", record)
	}

	var items []models.Generation
	data = h.expect(t, http.MethodGet, "/history?type=image&limit=5", nil, http.StatusOK)
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ID != record.ID {
		t.Fatalf("history = %+v", items)
	}

	data = h.expect(t, http.MethodDelete, "/generate/image", nil, http.StatusConflict)
	if code := errorCode(t, data); code != "NOTHING_STAGED" {
		t.Fatalf("code = %s", code)
	}
	h.expect(t, http.MethodPost, "/generate/video", generation.Request{Prompt: "p"}, http.StatusNotFound)
	h.expect(t, http.MethodPost, "/generate/image", generation.Request{Prompt: "  "}, http.StatusBadRequest)
}

func TestCommitReportsUnsavedHistory(t *testing.T) {
	h := newHarness(t, 5)
	h.signUp(t, "fan@example.com")

	h.expect(t, http.MethodPost, "/generate/image", generation.Request{Prompt: "neon rain"}, http.StatusAccepted)
	h.waitStaged(t, models.KindImage)
	h.kv.breakWrites()

	var record commitResponse
	data := h.expect(t, http.MethodPost, "/generate/image/commit", nil, http.StatusCreated)
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.ID == "" || record.Persisted || record.Code != "HISTORY_NOT_SAVED" {
		t.Fatalf("record = %+v", record)
	}
	h.expect(t, http.MethodPost, "/generate/image/commit", nil, http.StatusConflict)
}

func TestGenerateWithoutSessionPromptsSignIn(t *testing.T) {
	h := newHarness(t, 5)
	data := h.expect(t, http.MethodPost, "/generate/image", generation.Request{Prompt: "p"}, http.StatusUnauthorized)
	if code := errorCode(t, data); code != "AUTH_REQUIRED" {
		t.Fatalf("code = %s", code)
	}
	if !h.state.Snapshot().ShowAuth {
		t.Fatal("auth prompt not raised")
	}
}

func TestShortBalanceOpensRefillCheckout(t *testing.T) {
	h := newHarness(t, 1)
	h.signUp(t, "fan@example.com")

	h.expect(t, http.MethodPost, "/generate/image", generation.Request{Prompt: "first"}, http.StatusAccepted)
	h.waitStaged(t, models.KindImage)

	data := h.expect(t, http.MethodPost, "/generate/image", generation.Request{Prompt: "second"}, http.StatusPaymentRequired)
	if code := errorCode(t, data); code != "INSUFFICIENT_CREDITS" {
		t.Fatalf("code = %s", code)
	}
	sel := h.state.Checkout()
	if sel == nil || *sel != models.DefaultRefill {
		t.Fatalf("checkout = %+v", sel)
	}

	h.expect(t, http.MethodPost, "/checkout/pay", payRequest{CardName: "Fan"}, http.StatusOK)
	if u := h.state.User(); u.Credits != models.DefaultRefill.Credits {
		t.Fatalf("credits = %d", u.Credits)
	}
	if h.state.Checkout() != nil {
		t.Fatal("checkout left open")
	}

	var payments []models.Payment
	data = h.expect(t, http.MethodGet, "/payments", nil, http.StatusOK)
	if err := json.Unmarshal(data, &payments); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payments) != 1 || payments[0].Package != "Refill" || payments[0].Status != "paid" {
		t.Fatalf("payments = %+v", payments)
	}
}

func TestSelectCataloguePackage(t *testing.T) {
	h := newHarness(t, 5)

	data := h.expect(t, http.MethodPost, "/checkout/", selectRequest{PackageID: 2}, http.StatusUnauthorized)
	if code := errorCode(t, data); code != "AUTH_REQUIRED" {
		t.Fatalf("code = %s", code)
	}

	h.signUp(t, "fan@example.com")
	h.expect(t, http.MethodPost, "/checkout/", selectRequest{PackageID: 99}, http.StatusNotFound)
	h.expect(t, http.MethodPost, "/checkout/", selectRequest{PackageID: 2}, http.StatusOK)
	if sel := h.state.Checkout(); sel == nil || sel.Name != "Producer" || sel.Credits != 150 {
		t.Fatalf("checkout = %+v", sel)
	}
	h.expect(t, http.MethodDelete, "/checkout/", nil, http.StatusOK)
	if h.state.Checkout() != nil {
		t.Fatal("checkout not cancelled")
	}
	data = h.expect(t, http.MethodPost, "/checkout/pay", payRequest{}, http.StatusBadRequest)
	if code := errorCode(t, data); code != "BAD_REQUEST" {
		t.Fatalf("code = %s", code)
	}
}

func TestProfileEmailChangeDoesNotGrantAdmin(t *testing.T) {
	h := newHarness(t, 5)
	h.signUp(t, "fan@example.com")

	h.expect(t, http.MethodPut, "/profile", profileRequest{Email: "Boss@Hydra.ai"}, http.StatusOK)
	u := h.state.User()
	if u.Email != "boss@hydra.ai" || u.IsAdmin {
		t.Fatalf("user = %+v", u)
	}

	h.expect(t, http.MethodPost, "/auth/signout", nil, http.StatusNoContent)
	h.expect(t, http.MethodPost, "/auth/signin", credentialsRequest{Email: "fan@example.com", Password: "secret123"}, http.StatusOK)
	if u := h.state.User(); u == nil || u.IsAdmin || u.Email != "boss@hydra.ai" {
		t.Fatalf("after new session user = %+v", u)
	}
	h.expect(t, http.MethodPut, "/profile", profileRequest{Email: "not-an-email"}, http.StatusBadRequest)
}

func TestBrandLogoLockedAfterFirstRender(t *testing.T) {
	h := newHarness(t, 5)
	h.expect(t, http.MethodPost, "/brand-logo", nil, http.StatusOK)
	if h.state.BrandLogo() == "" {
		t.Fatal("logo not stored")
	}
	data := h.expect(t, http.MethodPost, "/brand-logo", nil, http.StatusConflict)
	if code := errorCode(t, data); code != "LOGO_LOCKED" {
		t.Fatalf("code = %s", code)
	}
}

func TestGoogleSignInWithoutConfig(t *testing.T) {
	h := newHarness(t, 5)
	data := h.expect(t, http.MethodGet, "/auth/google", nil, http.StatusServiceUnavailable)
	if code := errorCode(t, data); code != identity.CodeOAuthInit {
		t.Fatalf("code = %s", code)
	}

	resp, _ := h.do(t, http.MethodGet, "/auth/callback?state=x&code=y", nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.Host != "site.test" || loc.Query().Get("auth") != "error" || loc.Query().Get("code") != "OAUTH_STATE_MISMATCH" {
		t.Fatalf("redirect = %s", loc)
	}
}

func TestServesStoredBlobs(t *testing.T) {
	h := newHarness(t, 5)
	ref, err := h.blobs.Store(context.Background(), []byte("mp4-bytes"), "video/mp4")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	resp, data := h.do(t, http.MethodGet, ref, nil)
	if resp.StatusCode != http.StatusOK || string(data) != "mp4-bytes" || resp.Header.Get("Content-Type") != "video/mp4" {
		t.Fatalf("status=%d type=%s body=%q", resp.StatusCode, resp.Header.Get("Content-Type"), data)
	}
	h.expect(t, http.MethodGet, "/blobs/missing", nil, http.StatusNotFound)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("spend: %w", service.ErrInsufficientCredits), http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"},
		{generation.ErrBusy, http.StatusConflict, "BUSY"},
		{service.ErrCreditConflict, http.StatusConflict, "CREDIT_CONFLICT"},
		{generation.ErrInvalidAspect, http.StatusBadRequest, "BAD_REQUEST"},
		{&identity.Error{Code: identity.CodeOAuthExchange, Err: errors.New("bad code")}, http.StatusBadRequest, identity.CodeOAuthExchange},
		{&identity.Error{Code: identity.CodeAuth, Err: errors.New("db down")}, http.StatusInternalServerError, identity.CodeAuth},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("classify(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

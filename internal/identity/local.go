package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type LocalConfig struct {
	Secret      []byte
	TTL         time.Duration
	OAuth       *oauth2.Config
	UserInfoURL string
	HTTPClient  *http.Client
}

// GoogleOAuth builds the third-party sign-in config. It returns nil when clientID is empty.
func GoogleOAuth(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

// Local issues HS256 session tokens for accounts kept in an AccountStore.
// It holds one current session, like a single browser profile.
type Local struct {
	cfg      LocalConfig
	accounts AccountStore
	tokens   TokenStore
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	current   *Session
	listeners map[int]Listener
	nextID    int
}

var _ Provider = (*Local)(nil)

func NewLocal(cfg LocalConfig, accounts AccountStore, tokens TokenStore, log *slog.Logger) *Local {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Local{
		cfg:       cfg,
		accounts:  accounts,
		tokens:    tokens,
		log:       log,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Session returns the current session, restoring it from the token store on first use.
func (p *Local) Session(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current != nil {
		if current.ExpiresAt.After(p.now()) {
			cp := *current
			return &cp, nil
		}
		p.clear(ctx)
		return nil, nil
	}

	if p.tokens == nil {
		return nil, nil
	}
	token, err := p.tokens.LoadToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session token: %w", err)
	}
	if token == "" {
		return nil, nil
	}
	session, err := p.parse(token)
	if err != nil {
		p.log.Info("stored session discarded", "err", err)
		if saveErr := p.tokens.SaveToken(ctx, ""); saveErr != nil {
			p.log.Error("clear stored session", "err", saveErr)
		}
		return nil, nil
	}
	p.mu.Lock()
	p.current = session
	p.mu.Unlock()
	cp := *session
	return &cp, nil
}

func (p *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, authError(CodeAuth, "account lookup failed", err)
	}
	if account == nil || account.PasswordHash == "" {
		return nil, authError(CodeInvalidCredentials, "invalid email or password", ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, authError(CodeInvalidCredentials, "invalid email or password", ErrInvalidCredentials)
	}
	return p.establish(ctx, account, EventSignedIn)
}

// SignUp registers a password account and signs it in straight away.
func (p *Local) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, authError(CodeAuth, "invalid email address", ErrInvalidInput)
	}
	if len(password) < 6 {
		return nil, authError(CodeAuth, "password must be at least 6 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, authError(CodeAuth, "hash password", err)
	}
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     "password",
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, authError(CodeEmailTaken, "email already registered", err)
		}
		return nil, authError(CodeAuth, "create account", err)
	}
	return p.establish(ctx, account, EventSignedIn)
}

func (p *Local) OAuthURL(state string) (string, error) {
	if p.cfg.OAuth == nil {
		return "", authError(CodeOAuthInit, "uplink interrupted", ErrOAuthDisabled)
	}
	return p.cfg.OAuth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

func (p *Local) CompleteOAuth(ctx context.Context, code string) (*Session, error) {
	if p.cfg.OAuth == nil {
		return nil, authError(CodeOAuthInit, "uplink interrupted", ErrOAuthDisabled)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.cfg.HTTPClient)
	token, err := p.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, authError(CodeOAuthExchange, "token exchange failed", err)
	}
	email, err := p.fetchEmail(ctx, token)
	if err != nil {
		return nil, authError(CodeOAuthExchange, "fetch user info", err)
	}

	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, authError(CodeAuth, "account lookup failed", err)
	}
	if account == nil {
		account = &Account{ID: uuid.NewString(), Email: email, Provider: "google"}
		if err := p.accounts.Create(ctx, account); err != nil {
			return nil, authError(CodeAuth, "create account", err)
		}
	}
	return p.establish(ctx, account, EventSignedIn)
}

func (p *Local) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := p.cfg.OAuth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get userinfo: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("userinfo status=%d", resp.StatusCode)
	}
	var info struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" || !info.EmailVerified {
		return "", fmt.Errorf("userinfo has no verified email")
	}
	return normalizeEmail(info.Email), nil
}

func (p *Local) SignOut(ctx context.Context) error {
	p.clear(ctx)
	return nil
}

// Refresh reissues the current token and notifies listeners. Without a session it is a no-op.
func (p *Local) Refresh(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return nil
	}
	if !current.ExpiresAt.After(p.now()) {
		p.clear(ctx)
		return nil
	}
	account := &Account{ID: current.UserID, Email: current.Email}
	_, err := p.establish(ctx, account, EventTokenRefreshed)
	return err
}

// RunRefresher refreshes the session every interval until ctx ends.
func (p *Local) RunRefresher(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.log.Error("refresh session", "err", err)
			}
		}
	}
}

func (p *Local) Subscribe(fn Listener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Local) establish(ctx context.Context, account *Account, kind EventKind) (*Session, error) {
	expires := p.now().Add(p.cfg.TTL)
	token, err := p.issue(account, expires)
	if err != nil {
		return nil, authError(CodeAuth, "issue session token", err)
	}
	session := &Session{
		UserID:      account.ID,
		Email:       account.Email,
		AccessToken: token,
		ExpiresAt:   expires,
	}

	p.mu.Lock()
	p.current = session
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.SaveToken(ctx, token); err != nil {
			p.log.Error("persist session token", "err", err)
		}
	}

	cp := *session
	p.emit(ctx, Event{Kind: kind, Session: &cp})
	out := *session
	return &out, nil
}

func (p *Local) clear(ctx context.Context) {
	p.mu.Lock()
	had := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.SaveToken(ctx, ""); err != nil {
			p.log.Error("clear session token", "err", err)
		}
	}
	if had {
		p.emit(ctx, Event{Kind: EventSignedOut})
	}
}

func (p *Local) emit(ctx context.Context, ev Event) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	p.log.Info("auth event", "event", string(ev.Kind))
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}

func (p *Local) issue(account *Account, expires time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(p.now()),
			ID:        uuid.NewString(),
		},
		Email: account.Email,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(p.cfg.Secret)
}

func (p *Local) parse(token string) (*Session, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Subject == "" || c.ExpiresAt == nil {
		return nil, errors.New("token missing subject or expiry")
	}
	return &Session{
		UserID:      c.Subject,
		Email:       c.Email,
		AccessToken: token,
		ExpiresAt:   c.ExpiresAt.Time,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

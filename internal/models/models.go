package models

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanProducer Plan = "producer"
	PlanArtist   Plan = "artist"
)

// ParsePlan maps a stored plan name onto the known tiers. Unknown or empty values fall back to free.
func ParsePlan(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanStarter:
		return PlanStarter
	case PlanProducer:
		return PlanProducer
	case PlanArtist:
		return PlanArtist
	default:
		return PlanFree
	}
}

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

type View string

const (
	ViewLanding   View = "landing"
	ViewDashboard View = "dashboard"
)

// User is the signed-in identity together with its credit and plan state.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Credits int    `json:"credits"`
	Plan    Plan   `json:"plan"`
	IsAdmin bool   `json:"is_admin"`
}

// Profile is the remote record backing a User.
type Profile struct {
	ID        string
	Email     string
	Credits   int
	Plan      Plan
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Generation is a committed artifact. Field names follow the persisted history format.
type Generation struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"type"`
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	Timestamp int64  `json:"timestamp"`
}

// Staged is a produced artifact waiting for an explicit commit.
type Staged struct {
	Kind   Kind   `json:"type"`
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// PlanSelection is the credit package chosen on the pricing surface and handed to checkout.
type PlanSelection struct {
	Name    string `json:"name"`
	Price   string `json:"price"`
	Credits int    `json:"credits"`
	Tagline string `json:"tagline,omitempty"`
}

// DefaultRefill is offered when a spend fails for lack of credits.
var DefaultRefill = PlanSelection{Name: "Refill", Price: "9", Credits: 20}

type CreditPackage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Tagline   string    `json:"tagline"`
	Price     string    `json:"price"`
	Credits   int       `json:"credits"`
	Plan      Plan      `json:"plan"`
	IsPopular bool      `json:"is_popular"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Selection converts a catalogue entry into a checkout selection.
func (p CreditPackage) Selection() PlanSelection {
	return PlanSelection{Name: p.Name, Price: p.Price, Credits: p.Credits, Tagline: p.Tagline}
}

type Payment struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	Package   string    `json:"package"`
	Price     string    `json:"price"`
	Credits   int       `json:"credits"`
	Status    string    `json:"status"`
	CardName  string    `json:"card_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminRule decides whether an email belongs to a privileged account.
type AdminRule struct {
	Suffix    string
	AllowList []string
}

// DefaultAdminRule matches the product's own domain and its fixed owner accounts.
var DefaultAdminRule = AdminRule{
	Suffix:    "@hydra.ai",
	AllowList: []string{"admin@hydra.ai", "nathan@onemoreshot.ai"},
}

func (r AdminRule) Match(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if r.Suffix != "" && strings.HasSuffix(email, strings.ToLower(r.Suffix)) {
		return true
	}
	for _, allowed := range r.AllowList {
		if email == strings.ToLower(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

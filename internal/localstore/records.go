package localstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/digkill/hydrastudio/internal/models"
)

// Fixed record names shared with the browser build.
const (
	HistoryKey   = "hydra_history"
	BrandLogoKey = "hydra_brand_logo"
	SessionKey   = "hydra_session"
)

// Records reads and writes the studio's named records on top of a KV.
type Records struct {
	kv KV
}

func NewRecords(kv KV) *Records {
	return &Records{kv: kv}
}

// LoadHistory returns the stored list, or nil when nothing was saved.
// A payload that does not decode is reported as an error.
func (r *Records) LoadHistory(ctx context.Context) ([]models.Generation, error) {
	raw, ok, err := r.kv.Get(ctx, HistoryKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var items []models.Generation
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", HistoryKey, err)
	}
	return items, nil
}

// SaveHistory overwrites the stored list with items in order.
func (r *Records) SaveHistory(ctx context.Context, items []models.Generation) error {
	if items == nil {
		items = []models.Generation{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", HistoryKey, err)
	}
	return r.kv.Set(ctx, HistoryKey, string(payload))
}

func (r *Records) LoadBrandLogo(ctx context.Context) (string, error) {
	v, _, err := r.kv.Get(ctx, BrandLogoKey)
	return v, err
}

func (r *Records) SaveBrandLogo(ctx context.Context, url string) error {
	return r.kv.Set(ctx, BrandLogoKey, url)
}

// LoadToken and SaveToken let Records back an identity.TokenStore.
func (r *Records) LoadToken(ctx context.Context) (string, error) {
	v, _, err := r.kv.Get(ctx, SessionKey)
	return v, err
}

func (r *Records) SaveToken(ctx context.Context, token string) error {
	return r.kv.Set(ctx, SessionKey, token)
}

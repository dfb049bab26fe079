package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/hydrastudio/internal/models"
)

// HistoryRecords persists the whole generation list at once.
type HistoryRecords interface {
	LoadHistory(ctx context.Context) ([]models.Generation, error)
	SaveHistory(ctx context.Context, items []models.Generation) error
}

// History is the newest-first list of committed generations.
type History struct {
	records HistoryRecords
	log     *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	items []models.Generation
}

func NewHistory(records HistoryRecords, log *slog.Logger) *History {
	return &History{records: records, log: log, now: time.Now}
}

// Load replaces the in-memory list with the persisted one. An unreadable payload yields an empty list.
func (h *History) Load(ctx context.Context) {
	items, err := h.records.LoadHistory(ctx)
	if err != nil {
		h.log.Error("load history", "err", err)
		items = nil
	}
	h.mu.Lock()
	h.items = items
	h.mu.Unlock()
	h.log.Info("history loaded", "count", len(items))
}

// Add prepends a new record and writes the full list. The record is kept in memory even
// when the write fails; the write error is returned.
func (h *History) Add(ctx context.Context, kind models.Kind, url, prompt string) (models.Generation, error) {
	record := models.Generation{
		ID:        uuid.NewString(),
		Kind:      kind,
		URL:       url,
		Prompt:    prompt,
		Timestamp: h.now().UnixMilli(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	items := make([]models.Generation, 0, len(h.items)+1)
	items = append(items, record)
	items = append(items, h.items...)
	h.items = items

	if err := h.records.SaveHistory(ctx, items); err != nil {
		return record, fmt.Errorf("persist history: %w", err)
	}
	return record, nil
}

func (h *History) List() []models.Generation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.Generation{}, h.items...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

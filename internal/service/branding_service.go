package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/digkill/hydrastudio/internal/gemini"
	"github.com/digkill/hydrastudio/internal/state"
)

var (
	ErrLogoLocked = errors.New("brand logo already generated")
	ErrLogoBusy   = errors.New("brand logo generation in progress")
)

const logoPrompt = "Modern minimalist high-tech logo for 'Hydra Music Video Gen'. Featuring a stylized three-headed dragon symbol, neon purple and cyan glow, vector art style, dark background, cinematic lighting, sleek professional branding."

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*gemini.Image, error)
}

type LogoRecords interface {
	LoadBrandLogo(ctx context.Context) (string, error)
	SaveBrandLogo(ctx context.Context, url string) error
}

// Branding produces the studio's brand logo. Once one exists only admins may replace it.
type Branding struct {
	state   *state.AppState
	images  ImageGenerator
	records LogoRecords
	log     *slog.Logger
	running atomic.Bool
}

func NewBranding(st *state.AppState, images ImageGenerator, records LogoRecords, log *slog.Logger) *Branding {
	return &Branding{state: st, images: images, records: records, log: log}
}

func (b *Branding) Load(ctx context.Context) {
	url, err := b.records.LoadBrandLogo(ctx)
	if err != nil {
		b.log.Error("load brand logo", "err", err)
		return
	}
	if url != "" {
		b.state.SetBrandLogo(url)
	}
}

func (b *Branding) Generate(ctx context.Context) (string, error) {
	if b.state.BrandLogo() != "" {
		user := b.state.User()
		if user == nil || !user.IsAdmin {
			return "", ErrLogoLocked
		}
	}
	if !b.running.CompareAndSwap(false, true) {
		return "", ErrLogoBusy
	}
	defer b.running.Store(false)

	img, err := b.images.GenerateImage(ctx, logoPrompt, "1:1")
	if err != nil {
		return "", fmt.Errorf("generate logo: %w", err)
	}
	url := img.DataURL()
	b.state.SetBrandLogo(url)
	if err := b.records.SaveBrandLogo(ctx, url); err != nil {
		b.log.Error("persist brand logo", "err", err)
	}
	return url, nil
}

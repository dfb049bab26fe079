// Package gemini talks to the Gemini generative API: image synthesis through the Go SDK and
// long-running video synthesis through the REST operations endpoints.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/digkill/hydrastudio/internal/config"
)

var ErrNoImage = errors.New("response contained no image data")

// imageModel is the part of *genai.GenerativeModel the client uses.
type imageModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	apiKey     string
	baseURL    string
	videoModel string
	httpClient *http.Client
	limiter    *rate.Limiter
	images     imageModel
	sdk        *genai.Client
	log        *slog.Logger
}

// NewClient opens an SDK client for image calls and prepares the REST client for video calls.
func NewClient(ctx context.Context, cfg config.Config, log *slog.Logger) (*Client, error) {
	sdk, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c := newClient(cfg, sdk.GenerativeModel(cfg.ImageModel), log)
	c.sdk = sdk
	return c, nil
}

func newClient(cfg config.Config, images imageModel, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Client{
		apiKey:     cfg.GeminiAPIKey,
		baseURL:    strings.TrimRight(cfg.GeminiBaseURL, "/"),
		videoModel: cfg.VideoModel,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(rpm)/60), 1+rpm/10),
		images:     images,
		log:        log,
	}
}

func (c *Client) Close() error {
	if c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

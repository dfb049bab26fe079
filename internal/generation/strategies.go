package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/hydrastudio/internal/gemini"
	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/storage"
)

const (
	imageCost = 1
	videoCost = 5

	imagePromptTemplate = "A cinematic background for a professional music video: %s. Highly detailed, 4k, artistic."
	videoPromptTemplate = "Production Grade Music Video: %s. Strobe lighting, heavy motion blur, beat-reactive camera shake. Cinema 4D quality. Aspect ratio %s."
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*gemini.Image, error)
}

type ImageStrategy struct {
	images ImageGenerator
}

func NewImageStrategy(images ImageGenerator) *ImageStrategy {
	return &ImageStrategy{images: images}
}

func (s *ImageStrategy) Kind() models.Kind { return models.KindImage }
func (s *ImageStrategy) Cost() int         { return imageCost }

func (s *ImageStrategy) Run(ctx context.Context, req Request, _ func(Phase)) (string, error) {
	img, err := s.images.GenerateImage(ctx, fmt.Sprintf(imagePromptTemplate, req.Prompt), req.AspectRatio)
	if errors.Is(err, gemini.ErrNoImage) {
		return "", ErrNoArtifact
	}
	if err != nil {
		return "", err
	}
	return img.DataURL(), nil
}

type VideoClient interface {
	StartVideo(ctx context.Context, req gemini.VideoRequest) (*gemini.Operation, error)
	VideoStatus(ctx context.Context, name string) (*gemini.Operation, error)
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

// PollPolicy bounds the wait for a long-running job. The interval doubles after each
// poll up to Max.
type PollPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Initial <= 0 {
		p.Initial = 8 * time.Second
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 90
	}
	return p
}

type VideoStrategy struct {
	client     VideoClient
	store      storage.Materializer
	resolution string
	poll       PollPolicy
	log        *slog.Logger
}

func NewVideoStrategy(client VideoClient, store storage.Materializer, resolution string, poll PollPolicy, log *slog.Logger) *VideoStrategy {
	if resolution == "" {
		resolution = "720p"
	}
	return &VideoStrategy{
		client:     client,
		store:      store,
		resolution: resolution,
		poll:       poll.withDefaults(),
		log:        log,
	}
}

func (s *VideoStrategy) Kind() models.Kind { return models.KindVideo }
func (s *VideoStrategy) Cost() int         { return videoCost }

func (s *VideoStrategy) Run(ctx context.Context, req Request, progress func(Phase)) (string, error) {
	apiAspect := req.AspectRatio
	// the video model has no square output
	if apiAspect == "1:1" {
		apiAspect = "16:9"
	}

	op, err := s.client.StartVideo(ctx, gemini.VideoRequest{
		Prompt:      fmt.Sprintf(videoPromptTemplate, req.Prompt, req.AspectRatio),
		AspectRatio: apiAspect,
		Resolution:  s.resolution,
	})
	if err != nil {
		return "", err
	}
	progress(PhasePolling)

	op, err = s.await(ctx, op)
	if err != nil {
		return "", err
	}
	if op.Error != "" {
		return "", fmt.Errorf("video job failed: %s", op.Error)
	}
	if op.VideoURI == "" {
		return "", ErrNoArtifact
	}

	data, contentType, err := s.client.Download(ctx, op.VideoURI)
	if err != nil {
		return "", err
	}
	url, err := s.store.Store(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store video: %w", err)
	}
	return url, nil
}

func (s *VideoStrategy) await(ctx context.Context, op *gemini.Operation) (*gemini.Operation, error) {
	interval := s.poll.Initial
	for attempt := 0; !op.Done; attempt++ {
		if attempt >= s.poll.MaxAttempts {
			return nil, fmt.Errorf("%w: %d polls of %s", ErrPollTimeout, attempt, op.Name)
		}
		if attempt%10 == 0 {
			s.log.Info("video job waiting", "operation", op.Name, "attempt", attempt+1, "max_attempts", s.poll.MaxAttempts)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		next, err := s.client.VideoStatus(ctx, op.Name)
		if err != nil {
			return nil, err
		}
		if next.Name == "" {
			next.Name = op.Name
		}
		op = next
		if interval *= 2; interval > s.poll.Max {
			interval = s.poll.Max
		}
	}
	return op, nil
}

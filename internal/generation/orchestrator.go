// Package generation runs paid image and video generations from prompt to staged result.
//
// An Orchestrator owns one generation slot. A run moves through
// idle → credit_check → submitted → (polling) → staged, and a staged result
// waits until it is committed to history or discarded.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/digkill/hydrastudio/internal/models"
	"github.com/digkill/hydrastudio/internal/notify"
	"github.com/digkill/hydrastudio/internal/state"
)

var (
	ErrBusy          = errors.New("a generation is already running")
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrInvalidAspect = errors.New("unsupported aspect ratio")
	ErrNoArtifact    = errors.New("generation finished without an artifact")
	ErrPollTimeout   = errors.New("generation did not finish in time")
	ErrNothingStaged = errors.New("no staged result")

	// ErrHistoryNotSaved is returned by Commit together with the record when the history write failed.
	ErrHistoryNotSaved = errors.New("history not saved")
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCreditCheck Phase = "credit_check"
	PhaseSubmitted   Phase = "submitted"
	PhasePolling     Phase = "polling"
	PhaseStaged      Phase = "staged"
)

var aspectRatios = map[string]bool{"16:9": true, "9:16": true, "1:1": true}

const defaultAspectRatio = "16:9"

type Request struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// Strategy produces one kind of artifact and returns a URL for it.
type Strategy interface {
	Kind() models.Kind
	Cost() int
	Run(ctx context.Context, req Request, progress func(Phase)) (string, error)
}

// Credits is the ledger as the orchestrator uses it.
type Credits interface {
	Spend(ctx context.Context, amount int) error
	Grant(ctx context.Context, amount int) error
}

// Recorder appends committed results to history.
type Recorder interface {
	Add(ctx context.Context, kind models.Kind, url, prompt string) (models.Generation, error)
}

type Options struct {
	RefundOnFailure bool
	Notifier        notify.Notifier
}

// Status is a snapshot of an orchestrator.
type Status struct {
	Kind        models.Kind    `json:"kind"`
	Phase       Phase          `json:"phase"`
	Prompt      string         `json:"prompt,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Staged      *models.Staged `json:"staged,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
}

type Orchestrator struct {
	strategy Strategy
	credits  Credits
	history  Recorder
	state    *state.AppState
	opts     Options
	log      *slog.Logger

	mu        sync.Mutex
	phase     Phase
	req       Request
	staged    *models.Staged
	lastErr   string
	startedAt time.Time
	cancel    context.CancelFunc
}

func NewOrchestrator(strategy Strategy, credits Credits, history Recorder, st *state.AppState, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	return &Orchestrator{
		strategy: strategy,
		credits:  credits,
		history:  history,
		state:    st,
		opts:     opts,
		log:      log.With("kind", string(strategy.Kind())),
		phase:    PhaseIdle,
	}
}

func (o *Orchestrator) Kind() models.Kind {
	return o.strategy.Kind()
}

// Generate runs a whole generation and returns the staged result.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*models.Staged, error) {
	runCtx, req, err := o.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.run(runCtx, req)
}

// Start validates and charges synchronously, then finishes the run in the background under ctx.
func (o *Orchestrator) Start(ctx context.Context, req Request) error {
	runCtx, req, err := o.begin(ctx, req)
	if err != nil {
		return err
	}
	go func() {
		_, _ = o.run(runCtx, req)
	}()
	return nil
}

func (o *Orchestrator) begin(ctx context.Context, req Request) (context.Context, Request, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, req, ErrEmptyPrompt
	}
	req.AspectRatio = strings.TrimSpace(req.AspectRatio)
	if req.AspectRatio == "" {
		req.AspectRatio = defaultAspectRatio
	}
	if !aspectRatios[req.AspectRatio] {
		return nil, req, fmt.Errorf("%w: %s", ErrInvalidAspect, req.AspectRatio)
	}

	o.mu.Lock()
	if o.phase != PhaseIdle && o.phase != PhaseStaged {
		o.mu.Unlock()
		return nil, req, ErrBusy
	}
	prevPhase, prevReq, prevStarted := o.phase, o.req, o.startedAt
	o.phase = PhaseCreditCheck
	o.req = req
	o.lastErr = ""
	o.startedAt = time.Now()
	o.mu.Unlock()

	if err := o.credits.Spend(ctx, o.strategy.Cost()); err != nil {
		// An uncharged attempt keeps whatever result was already staged.
		o.mu.Lock()
		o.phase = PhaseIdle
		if prevPhase == PhaseStaged && o.staged != nil {
			o.phase = PhaseStaged
			o.req = prevReq
			o.startedAt = prevStarted
		}
		o.lastErr = err.Error()
		o.mu.Unlock()
		o.log.Info("generation not charged", "err", err)
		return nil, req, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.staged != nil {
		o.log.Info("discarding staged result", "prompt", o.staged.Prompt)
		o.staged = nil
	}
	o.phase = PhaseSubmitted
	o.cancel = cancel
	o.mu.Unlock()
	o.log.Info("generation submitted", "prompt", req.Prompt, "aspect_ratio", req.AspectRatio, "cost", o.strategy.Cost())
	return runCtx, req, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*models.Staged, error) {
	url, err := o.strategy.Run(ctx, req, o.progress)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if err != nil {
		o.phase = PhaseIdle
		o.lastErr = err.Error()
		o.mu.Unlock()
		o.log.Error("generation failed", "err", err)
		o.refund(ctx)
		return nil, err
	}
	staged := &models.Staged{Kind: o.strategy.Kind(), URL: url, Prompt: req.Prompt}
	o.staged = staged
	o.phase = PhaseStaged
	o.mu.Unlock()

	o.log.Info("generation staged", "elapsed", time.Since(o.startedAt).Round(time.Millisecond).String())
	o.announce(ctx, staged)
	cp := *staged
	return &cp, nil
}

func (o *Orchestrator) progress(p Phase) {
	o.mu.Lock()
	if o.phase == PhaseSubmitted || o.phase == PhasePolling {
		o.phase = p
	}
	o.mu.Unlock()
}

func (o *Orchestrator) refund(ctx context.Context) {
	if !o.opts.RefundOnFailure {
		return
	}
	if err := o.credits.Grant(context.WithoutCancel(ctx), o.strategy.Cost()); err != nil {
		o.log.Error("refund failed", "err", err)
		return
	}
	o.log.Info("generation refunded", "amount", o.strategy.Cost())
}

func (o *Orchestrator) announce(ctx context.Context, staged *models.Staged) {
	n := notify.Notice{Kind: staged.Kind, URL: staged.URL, Prompt: staged.Prompt}
	if user := o.state.User(); user != nil {
		n.Email = user.Email
	}
	if err := o.opts.Notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		o.log.Error("completion notice failed", "err", err)
	}
}

// Cancel stops an in-flight run. It reports whether there was one.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Commit moves the staged result into history.
func (o *Orchestrator) Commit(ctx context.Context) (models.Generation, error) {
	o.mu.Lock()
	if o.phase != PhaseStaged || o.staged == nil {
		o.mu.Unlock()
		return models.Generation{}, ErrNothingStaged
	}
	staged := o.staged
	o.staged = nil
	o.phase = PhaseIdle
	o.mu.Unlock()

	record, err := o.history.Add(ctx, staged.Kind, staged.URL, staged.Prompt)
	if err != nil {
		o.log.Error("history write failed", "id", record.ID, "err", err)
		return record, fmt.Errorf("%w: %v", ErrHistoryNotSaved, err)
	}
	o.log.Info("generation committed", "id", record.ID)
	return record, nil
}

// Discard drops the staged result. It reports whether one was staged.
func (o *Orchestrator) Discard() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseStaged {
		return false
	}
	o.staged = nil
	o.phase = PhaseIdle
	return true
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{
		Kind:      o.strategy.Kind(),
		Phase:     o.phase,
		LastError: o.lastErr,
	}
	if o.phase != PhaseIdle || o.staged != nil {
		s.Prompt = o.req.Prompt
		s.AspectRatio = o.req.AspectRatio
	}
	if o.staged != nil {
		cp := *o.staged
		s.Staged = &cp
	}
	if !o.startedAt.IsZero() && o.phase != PhaseIdle {
		t := o.startedAt
		s.StartedAt = &t
	}
	return s
}

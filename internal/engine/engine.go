// Package engine owns the lifetime of the local inference context and
// executes completions against it.
//
// The native runtime is treated as an opaque capability behind the
// Runtime and Context interfaces; the production implementation drives
// a llama.cpp server process (see llamacpp.go) and tests substitute a
// fake.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsage-ai/medsage/internal/asset"
	"github.com/medsage-ai/medsage/internal/errors"
	"github.com/medsage-ai/medsage/internal/status"
)

// ErrNotReady is returned when a completion is requested before the
// engine context exists. Compare with errors.Is.
var ErrNotReady = errors.User(errors.CodeEngineNotReady, "model not ready")

// ContextParams configure construction of the main inference context.
type ContextParams struct {
	ModelPath   string
	ContextSize int
	GPULayers   int
	Threads     int
}

// SamplingParams bound one completion. Low temperature and high top-p
// favor clinical consistency over variety.
type SamplingParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
}

// DefaultSampling returns the fixed sampling parameters used for
// clinical assessments.
func DefaultSampling() SamplingParams {
	return SamplingParams{
		MaxTokens:   512,
		Temperature: 0.3,
		TopP:        0.9,
		TopK:        40,
	}
}

// CompletionParams describe one single-turn, non-streaming completion.
type CompletionParams struct {
	Prompt    string
	Stop      []string
	ImagePath string // optional; empty means text-only
	Sampling  SamplingParams
}

// Completion is the raw result of one engine round trip.
type Completion struct {
	Text    string
	Elapsed time.Duration
}

// Runtime constructs inference contexts from model assets on disk.
type Runtime interface {
	NewContext(ctx context.Context, params ContextParams) (Context, error)
}

// Context is a live handle to the native engine: loaded weights plus
// accelerator bindings. It is not safe for concurrent Complete calls;
// callers must serialize.
type Context interface {
	// AttachProjector enables multimodal input using the visual
	// projection weights at the given path.
	AttachProjector(ctx context.Context, projectorPath string, accelerated bool) error

	// Complete runs one bounded completion.
	Complete(ctx context.Context, params CompletionParams) (Completion, error)

	// Release frees the context. Safe to call more than once.
	Release() error
}

// Adapter owns exactly one engine context and the policy around its
// construction, readiness and release.
type Adapter struct {
	runtime  Runtime
	tracker  *status.Tracker
	log      zerolog.Logger
	main     asset.Asset
	proj     asset.Asset
	params   ContextParams
	sampling SamplingParams

	mu     sync.Mutex
	handle Context
}

// NewAdapter wires a runtime to the two model assets.
func NewAdapter(runtime Runtime, tracker *status.Tracker, main, proj asset.Asset, params ContextParams, sampling SamplingParams, log zerolog.Logger) *Adapter {
	return &Adapter{
		runtime:  runtime,
		tracker:  tracker,
		log:      log.With().Str("component", "engine").Logger(),
		main:     main,
		proj:     proj,
		params:   params,
		sampling: sampling,
	}
}

// Initialize constructs the inference context and attaches multimodal
// support. Calling it when a context already exists is a no-op.
// Attachment is tried with hardware acceleration first and retried
// once without before initialization is declared failed; a failed
// attach releases the half-built context so a later attempt starts
// clean.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle != nil {
		a.log.Debug().Msg("engine already initialized")
		return nil
	}

	// Re-verify assets rather than trusting the caller's sequencing.
	for _, as := range []asset.Asset{a.main, a.proj} {
		if _, err := os.Stat(as.Path); err != nil {
			return errors.NewBuilder(errors.CodeFileNotFound,
				fmt.Sprintf("%s asset missing at %s", as.Label, as.Path)).
				Permanent().
				WithSuggestion("Download the model assets first").
				Build()
		}
	}

	a.tracker.Initializing(a.main.Label, 10)
	a.log.Info().Str("model", a.params.ModelPath).Msg("constructing inference context")

	handle, err := a.runtime.NewContext(ctx, a.params)
	if err != nil {
		return errors.Wrap(err, errors.CodeEngineInitFailed,
			"failed to construct inference context", errors.CategorySystem)
	}

	a.tracker.Initializing(a.proj.Label, 60)

	if err := a.attachProjector(ctx, handle); err != nil {
		// Do not leak a half-initialized context.
		if relErr := handle.Release(); relErr != nil {
			a.log.Warn().Err(relErr).Msg("release after failed attach")
		}
		return err
	}

	a.tracker.Initializing(a.proj.Label, 90)
	a.handle = handle
	a.tracker.Ready()
	a.log.Info().Msg("engine initialized")
	return nil
}

// attachProjector tries accelerated attachment, then falls back to a
// single non-accelerated attempt. The fallback changes a parameter, it
// is not a blind retry.
func (a *Adapter) attachProjector(ctx context.Context, handle Context) error {
	err := handle.AttachProjector(ctx, a.proj.Path, true)
	if err == nil {
		return nil
	}

	a.log.Warn().Err(err).Msg("accelerated projector attach failed, retrying without acceleration")
	if err := handle.AttachProjector(ctx, a.proj.Path, false); err != nil {
		return errors.Wrap(err, errors.CodeEngineInitFailed,
			fmt.Sprintf("failed to attach %s projector", a.proj.Label), errors.CategorySystem)
	}
	return nil
}

// IsReady reports whether inference may be invoked. The conjunction
// with the live handle guards against a stale ready status surviving a
// release.
func (a *Adapter) IsReady() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.Current().Phase == status.PhaseReady && a.handle != nil
}

// RunCompletion executes one completion. A single failed inference
// does not invalidate a working context, so the lifecycle phase is
// never touched here.
func (a *Adapter) RunCompletion(ctx context.Context, prompt string, stop []string, imagePath string) (Completion, error) {
	a.mu.Lock()
	handle := a.handle
	ready := a.tracker.Current().Phase == status.PhaseReady && handle != nil
	a.mu.Unlock()

	if !ready {
		return Completion{}, errors.NewBuilder(errors.CodeEngineNotReady,
			"model not ready").
			User().
			WithSuggestion("Call Initialize before requesting a completion").
			Build()
	}

	start := time.Now()
	comp, err := handle.Complete(ctx, CompletionParams{
		Prompt:    prompt,
		Stop:      stop,
		ImagePath: imagePath,
		Sampling:  a.sampling,
	})
	if err != nil {
		return Completion{}, errors.Wrap(err, errors.CodeInferenceFailed,
			"completion failed", errors.CategoryTemporary)
	}

	comp.Elapsed = time.Since(start)
	return comp, nil
}

// Release idempotently frees the context handle. IsReady returns false
// afterwards even though the last status snapshot may still read ready.
func (a *Adapter) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle == nil {
		return nil
	}

	err := a.handle.Release()
	a.handle = nil
	if err != nil {
		return errors.Wrap(err, errors.CodeEngineUnavailable, "failed to release engine context", errors.CategorySystem)
	}
	return nil
}

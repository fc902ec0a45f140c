// Package service orchestrates the on-device triage pipeline: asset
// acquisition, engine initialization, inference and interpretation,
// with one shared lifecycle status.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsage-ai/medsage/internal/asset"
	"github.com/medsage-ai/medsage/internal/config"
	"github.com/medsage-ai/medsage/internal/engine"
	"github.com/medsage-ai/medsage/internal/errors"
	"github.com/medsage-ai/medsage/internal/history"
	"github.com/medsage-ai/medsage/internal/status"
	"github.com/medsage-ai/medsage/internal/triage"
)

// simulatedLatency is the fixed pause before a canned assessment is
// returned, so simulation exercises the same async paths as inference.
const simulatedLatency = 150 * time.Millisecond

// Service is the orchestration facade. One instance owns the status
// tracker, the asset fetcher, the engine adapter and the history store.
type Service struct {
	cfg     *config.Config
	log     zerolog.Logger
	tracker *status.Tracker
	fetcher *asset.Fetcher
	adapter *engine.Adapter
	store   *history.Store

	// inferMu serializes inference; the engine context is single-slot.
	inferMu sync.Mutex
}

// New builds a service from configuration. The history store is opened
// eagerly so storage problems surface at startup, not mid-assessment.
func New(cfg *config.Config, log zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log = log.With().Str("component", "service").Logger()
	triage.SetLogger(log)

	tracker := status.NewTracker(cfg.Simulated)

	runtime := engine.NewLlamaRuntime(engine.ServerConfig{
		Binary:         cfg.Engine.Binary,
		Host:           cfg.Engine.Host,
		Port:           cfg.Engine.Port,
		StartupTimeout: time.Duration(cfg.Engine.StartupTimeoutSeconds) * time.Second,
	}, log)

	return newWithRuntime(cfg, log, tracker, runtime)
}

// newWithRuntime finishes construction with an explicit runtime.
// Tests use it to substitute a fake engine.
func newWithRuntime(cfg *config.Config, log zerolog.Logger, tracker *status.Tracker, runtime engine.Runtime) (*Service, error) {
	mainAsset := asset.Asset{
		Label: cfg.Model.Main.Label,
		URL:   cfg.Model.Main.URL,
		Path:  cfg.MainAssetPath(),
		Size:  cfg.Model.Main.Size,
	}
	projAsset := asset.Asset{
		Label: cfg.Model.Projector.Label,
		URL:   cfg.Model.Projector.URL,
		Path:  cfg.ProjectorAssetPath(),
		Size:  cfg.Model.Projector.Size,
	}

	adapter := engine.NewAdapter(runtime, tracker, mainAsset, projAsset,
		engine.ContextParams{
			ModelPath:   mainAsset.Path,
			ContextSize: cfg.Model.ContextSize,
			GPULayers:   cfg.Model.GPULayers,
			Threads:     cfg.Model.Threads,
		},
		engine.SamplingParams{
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
			TopK:        cfg.Model.TopK,
		},
		log)

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:     cfg,
		log:     log,
		tracker: tracker,
		fetcher: asset.NewFetcher(tracker, log),
		adapter: adapter,
		store:   store,
	}, nil
}

// DownloadModel ensures both model assets are present and verified.
// In simulation mode no bytes move and the service is immediately
// ready. A failure moves the lifecycle to the error phase and is
// returned to the caller.
func (s *Service) DownloadModel(ctx context.Context) error {
	if s.cfg.Simulated {
		s.log.Info().Msg("simulation mode, skipping asset download")
		// Walk the same phase path a real download takes so observers
		// see a valid lifecycle sequence.
		s.tracker.Downloading(s.cfg.Model.Main.Label, 100)
		s.tracker.Ready()
		return nil
	}

	assets := []asset.Asset{
		{
			Label: s.cfg.Model.Main.Label,
			URL:   s.cfg.Model.Main.URL,
			Path:  s.cfg.MainAssetPath(),
			Size:  s.cfg.Model.Main.Size,
		},
		{
			Label: s.cfg.Model.Projector.Label,
			URL:   s.cfg.Model.Projector.URL,
			Path:  s.cfg.ProjectorAssetPath(),
			Size:  s.cfg.Model.Projector.Size,
		},
	}

	if err := s.fetcher.EnsureAll(ctx, assets); err != nil {
		s.tracker.Fail(err.Error())
		return err
	}
	return nil
}

// InitializeModel constructs the inference context from the downloaded
// assets. In simulation mode there is no engine to build; DownloadModel
// already declared the service ready.
func (s *Service) InitializeModel(ctx context.Context) error {
	if s.cfg.Simulated {
		return nil
	}

	if err := s.adapter.Initialize(ctx); err != nil {
		s.tracker.Fail(err.Error())
		return err
	}
	return nil
}

// IsReady reports whether InferSymptoms may be called.
func (s *Service) IsReady() bool {
	if s.cfg.Simulated {
		return s.tracker.Current().Phase == status.PhaseReady
	}
	return s.adapter.IsReady()
}

// InferSymptoms runs one triage assessment over the symptom query and
// an optional image path. The result is always a fully populated
// analysis; a completed assessment is recorded to history best-effort.
func (s *Service) InferSymptoms(ctx context.Context, query, imagePath string) (*triage.Analysis, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.User(errors.CodeInferenceFailed, "symptom description is empty")
	}

	hasImage := imagePath != ""

	if s.cfg.Simulated {
		return s.inferSimulated(ctx, query, hasImage)
	}

	s.inferMu.Lock()
	defer s.inferMu.Unlock()

	prompt := triage.BuildPrompt(query, hasImage)
	comp, err := s.adapter.RunCompletion(ctx, prompt, triage.StopSequences, imagePath)
	if err != nil {
		return nil, err
	}

	analysis := triage.Parse(comp.Text, comp.Elapsed)
	s.record(ctx, query, hasImage, analysis)
	return analysis, nil
}

// inferSimulated returns the deterministic canned assessment after a
// fixed latency, still honoring cancellation.
func (s *Service) inferSimulated(ctx context.Context, query string, hasImage bool) (*triage.Analysis, error) {
	if !s.IsReady() {
		return nil, errors.NewBuilder(errors.CodeEngineNotReady, "model not ready").
			User().
			WithSuggestion("Call DownloadModel before requesting an assessment").
			Build()
	}

	start := time.Now()
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CodeInferenceFailed, "assessment canceled", errors.CategoryTemporary)
	case <-time.After(simulatedLatency):
	}

	analysis := triage.CannedAnalysis(query, hasImage)
	analysis.InferenceTimeMs = time.Since(start).Milliseconds()
	s.record(ctx, query, hasImage, analysis)
	return analysis, nil
}

// record persists an assessment. Storage trouble never fails the
// assessment that produced it.
func (s *Service) record(ctx context.Context, query string, hasImage bool, a *triage.Analysis) {
	if s.store == nil {
		return
	}
	if _, err := s.store.Record(ctx, query, hasImage, s.cfg.Simulated, a); err != nil {
		s.log.Warn().Err(err).Msg("failed to record assessment history")
	}
}

// History returns the most recent recorded assessments.
func (s *Service) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.store == nil {
		return nil, errors.User(errors.CodeHistoryStoreFailed, "history store is closed")
	}
	return s.store.Recent(ctx, limit)
}

// Status returns the current lifecycle snapshot.
func (s *Service) Status() status.Status {
	return s.tracker.Current()
}

// OnStatusChange registers an observer for lifecycle updates.
func (s *Service) OnStatusChange(fn status.Observer) {
	s.tracker.Subscribe(fn)
}

// Cleanup releases the engine context and closes storage, returning
// the lifecycle to idle. Safe to call repeatedly.
func (s *Service) Cleanup() error {
	var firstErr error

	if err := s.adapter.Release(); err != nil {
		firstErr = err
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.CodeHistoryStoreFailed, "failed to close history store", errors.CategorySystem)
		}
		s.store = nil
	}

	s.tracker.Idle()
	return firstErr
}

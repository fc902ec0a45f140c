package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medsage-ai/medsage/internal/asset"
	"github.com/medsage-ai/medsage/internal/errors"
	"github.com/medsage-ai/medsage/internal/status"
)

// fakeRuntime returns a scripted context, or an error.
type fakeRuntime struct {
	ctx      *fakeContext
	err      error
	newCalls int
}

func (r *fakeRuntime) NewContext(_ context.Context, _ ContextParams) (Context, error) {
	r.newCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.ctx, nil
}

// fakeContext records calls and fails attachment per the script.
type fakeContext struct {
	failAcceleratedAttach bool
	failAllAttach         bool
	completeText          string
	completeErr           error

	attachCalls  []bool // accelerated flag per call
	releaseCalls int
}

func (c *fakeContext) AttachProjector(_ context.Context, _ string, accelerated bool) error {
	c.attachCalls = append(c.attachCalls, accelerated)
	if c.failAllAttach {
		return errors.System(errors.CodeEngineInitFailed, "attach failed")
	}
	if c.failAcceleratedAttach && accelerated {
		return errors.System(errors.CodeEngineInitFailed, "no accelerator")
	}
	return nil
}

func (c *fakeContext) Complete(_ context.Context, _ CompletionParams) (Completion, error) {
	if c.completeErr != nil {
		return Completion{}, c.completeErr
	}
	return Completion{Text: c.completeText}, nil
}

func (c *fakeContext) Release() error {
	c.releaseCalls++
	return nil
}

func newTestAdapter(t *testing.T, rt Runtime) (*Adapter, *status.Tracker) {
	t.Helper()
	dir := t.TempDir()

	main := asset.Asset{Label: "main", Path: filepath.Join(dir, "main.gguf"), Size: 4}
	proj := asset.Asset{Label: "projector", Path: filepath.Join(dir, "proj.gguf"), Size: 4}
	require.NoError(t, os.WriteFile(main.Path, []byte("mmmm"), 0644))
	require.NoError(t, os.WriteFile(proj.Path, []byte("pppp"), 0644))

	tracker := status.NewTracker(false)
	return NewAdapter(rt, tracker, main, proj,
		ContextParams{ModelPath: main.Path, ContextSize: 2048, Threads: 4},
		DefaultSampling(), zerolog.Nop()), tracker
}

func TestInitializeHappyPath(t *testing.T) {
	fc := &fakeContext{completeText: "ok"}
	rt := &fakeRuntime{ctx: fc}
	a, tracker := newTestAdapter(t, rt)

	require.NoError(t, a.Initialize(context.Background()))

	assert.True(t, a.IsReady())
	assert.Equal(t, status.PhaseReady, tracker.Current().Phase)
	assert.Equal(t, []bool{true}, fc.attachCalls)
	assert.Zero(t, fc.releaseCalls)
}

func TestInitializeIsIdempotent(t *testing.T) {
	rt := &fakeRuntime{ctx: &fakeContext{}}
	a, _ := newTestAdapter(t, rt)

	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, a.Initialize(context.Background()))
	assert.Equal(t, 1, rt.newCalls)
}

func TestInitializeFailsWhenAssetsMissing(t *testing.T) {
	rt := &fakeRuntime{ctx: &fakeContext{}}
	dir := t.TempDir()

	tracker := status.NewTracker(false)
	a := NewAdapter(rt, tracker,
		asset.Asset{Label: "main", Path: filepath.Join(dir, "absent.gguf")},
		asset.Asset{Label: "projector", Path: filepath.Join(dir, "absent2.gguf")},
		ContextParams{}, DefaultSampling(), zerolog.Nop())

	err := a.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFileNotFound))
	assert.Zero(t, rt.newCalls, "the runtime must not be touched with assets missing")
	assert.False(t, a.IsReady())
}

func TestInitializeFallsBackToUnacceleratedAttach(t *testing.T) {
	fc := &fakeContext{failAcceleratedAttach: true}
	a, tracker := newTestAdapter(t, &fakeRuntime{ctx: fc})

	require.NoError(t, a.Initialize(context.Background()))

	assert.Equal(t, []bool{true, false}, fc.attachCalls)
	assert.True(t, a.IsReady())
	assert.Equal(t, status.PhaseReady, tracker.Current().Phase)
}

func TestInitializeReleasesContextWhenAttachFails(t *testing.T) {
	fc := &fakeContext{failAllAttach: true}
	a, tracker := newTestAdapter(t, &fakeRuntime{ctx: fc})

	err := a.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeEngineInitFailed))

	assert.Equal(t, []bool{true, false}, fc.attachCalls, "one accelerated attempt, one fallback")
	assert.Equal(t, 1, fc.releaseCalls, "a half-built context must be released")
	assert.False(t, a.IsReady())
	assert.NotEqual(t, status.PhaseReady, tracker.Current().Phase)
}

func TestRunCompletionRequiresReadiness(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeRuntime{ctx: &fakeContext{}})

	_, err := a.RunCompletion(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeEngineNotReady))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRunCompletionMeasuresElapsed(t *testing.T) {
	fc := &fakeContext{completeText: "Severity: mild"}
	a, _ := newTestAdapter(t, &fakeRuntime{ctx: fc})
	require.NoError(t, a.Initialize(context.Background()))

	comp, err := a.RunCompletion(context.Background(), "prompt", []string{"</s>"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Severity: mild", comp.Text)
	assert.GreaterOrEqual(t, comp.Elapsed.Nanoseconds(), int64(0))
}

func TestRunCompletionFailureKeepsPhase(t *testing.T) {
	fc := &fakeContext{completeErr: errors.Temporary(errors.CodeInferenceFailed, "engine hiccup")}
	a, tracker := newTestAdapter(t, &fakeRuntime{ctx: fc})
	require.NoError(t, a.Initialize(context.Background()))

	_, err := a.RunCompletion(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInferenceFailed))

	// One failed inference does not invalidate the context.
	assert.Equal(t, status.PhaseReady, tracker.Current().Phase)
	assert.True(t, a.IsReady())
}

func TestReleaseIsIdempotentAndDisablesReadiness(t *testing.T) {
	fc := &fakeContext{}
	a, _ := newTestAdapter(t, &fakeRuntime{ctx: fc})
	require.NoError(t, a.Initialize(context.Background()))
	require.True(t, a.IsReady())

	require.NoError(t, a.Release())
	assert.False(t, a.IsReady(), "readiness is the conjunction of phase and live handle")
	assert.Equal(t, 1, fc.releaseCalls)

	require.NoError(t, a.Release())
	assert.Equal(t, 1, fc.releaseCalls)
}

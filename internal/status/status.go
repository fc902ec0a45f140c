// Package status tracks the model orchestration lifecycle and fans
// snapshots out to observers.
package status

import "sync"

// Phase is the lifecycle phase of the orchestration service.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDownloading  Phase = "downloading"
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseError        Phase = "error"
)

// Status is a point-in-time snapshot of orchestration progress.
// Progress and CurrentAsset are only meaningful while Phase is
// downloading or initializing; Err is only set in the error phase.
type Status struct {
	Phase        Phase  `json:"phase"`
	Progress     int    `json:"progress"`
	CurrentAsset string `json:"current_asset,omitempty"`
	Err          string `json:"error,omitempty"`
	Simulated    bool   `json:"simulated"`
}

// Observer receives a full snapshot on every status change.
type Observer func(Status)

// Tracker is the single source of truth for lifecycle state.
// It is mutated only by the orchestration service; observers and
// callers always receive copies, never references to internal state.
type Tracker struct {
	mu        sync.Mutex
	current   Status
	observers []Observer
}

// NewTracker returns a tracker in the idle phase.
func NewTracker(simulated bool) *Tracker {
	return &Tracker{
		current: Status{
			Phase:     PhaseIdle,
			Simulated: simulated,
		},
	}
}

// Current returns a copy of the current status.
func (t *Tracker) Current() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Subscribe registers an observer notified synchronously on every
// update. Observers accumulate; an earlier subscriber is never
// silently dropped by a later registration.
func (t *Tracker) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Patch describes a partial status update. Nil fields are left as-is.
type Patch struct {
	Phase        *Phase
	Progress     *int
	CurrentAsset *string
	Err          *string
}

// Update merges the patch into the current status and notifies every
// observer with the resulting snapshot. Observers are invoked outside
// the tracker lock so they may call Current without deadlocking.
func (t *Tracker) Update(p Patch) {
	t.mu.Lock()
	if p.Phase != nil {
		t.current.Phase = *p.Phase
	}
	if p.Progress != nil {
		t.current.Progress = *p.Progress
	}
	if p.CurrentAsset != nil {
		t.current.CurrentAsset = *p.CurrentAsset
	}
	if p.Err != nil {
		t.current.Err = *p.Err
	}
	snapshot := t.current
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}

// Downloading moves to the downloading phase with the given asset
// label and integer progress percentage.
func (t *Tracker) Downloading(assetLabel string, progress int) {
	phase := PhaseDownloading
	empty := ""
	t.Update(Patch{Phase: &phase, Progress: &progress, CurrentAsset: &assetLabel, Err: &empty})
}

// Initializing moves to the initializing phase at a progress milestone.
func (t *Tracker) Initializing(assetLabel string, progress int) {
	phase := PhaseInitializing
	empty := ""
	t.Update(Patch{Phase: &phase, Progress: &progress, CurrentAsset: &assetLabel, Err: &empty})
}

// Ready moves to the ready phase, clearing progress context.
func (t *Tracker) Ready() {
	phase := PhaseReady
	progress := 100
	empty := ""
	t.Update(Patch{Phase: &phase, Progress: &progress, CurrentAsset: &empty, Err: &empty})
}

// Idle returns to the idle phase, clearing all progress context.
func (t *Tracker) Idle() {
	phase := PhaseIdle
	progress := 0
	empty := ""
	t.Update(Patch{Phase: &phase, Progress: &progress, CurrentAsset: &empty, Err: &empty})
}

// Fail moves to the error phase with a human-readable message.
func (t *Tracker) Fail(msg string) {
	phase := PhaseError
	progress := 0
	empty := ""
	t.Update(Patch{Phase: &phase, Progress: &progress, CurrentAsset: &empty, Err: &msg})
}

// Package ledger tracks the per-chapter working record of a generation run:
// stage outputs, reviewer verdicts and token usage per operation.
package ledger

import (
	"fmt"
	"slices"
	"sync"

	apperrors "github.com/pario-ai/scribe/pkg/errors"
	"github.com/pario-ai/scribe/pkg/models"
)

// State is the lifecycle position of a chapter.
type State string

const (
	StatePending     State = "pending"
	StateResearching State = "researching"
	StateDrafting    State = "drafting"
	StateReviewing   State = "reviewing"
	StateAccepted    State = "accepted"
	StateRejected    State = "rejected"
	StateSaved       State = "saved"
)

// Stage is one of the three per-chapter LLM stages.
type Stage string

const (
	StageResearch Stage = "research"
	StageDraft    Stage = "draft"
	StageReview   Stage = "review"
)

// Operation key roots.
const (
	OpResearcher = "researcher"
	OpWriter     = "writer"
	OpReviewer   = "reviewer"
)

// stageEntry lists the states a stage may be entered from.
var stageEntry = map[Stage][]State{
	StageResearch: {StatePending, StateRejected},
	StageDraft:    {StateResearching},
	StageReview:   {StateDrafting},
}

var stageState = map[Stage]State{
	StageResearch: StateResearching,
	StageDraft:    StateDrafting,
	StageReview:   StateReviewing,
}

// Entry is the working record of one chapter. Values handed out by the
// Ledger are copies; mutation goes through Ledger methods only.
type Entry struct {
	Spec           models.ChapterSpec
	State          State
	ResearchText   string
	DraftText      string
	ReviewFeedback string
	ReviewDecision models.ReviewDecision
	ForcedAccept   bool

	ResearchAttempts int
	WriterAttempts   int
	ReviewAttempts   int

	usage  map[string]models.TokenUsage
	order  []string
	sealed bool
}

// Usage returns a copy of the operation usage map.
func (e *Entry) Usage() map[string]models.TokenUsage {
	out := make(map[string]models.TokenUsage, len(e.usage))
	for k, v := range e.usage {
		out[k] = v
	}
	return out
}

// Operations returns operation keys in first-recorded order.
func (e *Entry) Operations() []string {
	return slices.Clone(e.order)
}

// Summary is the elementwise sum of every operation usage.
func (e *Entry) Summary() models.TokenUsage {
	var total models.TokenUsage
	for _, k := range e.order {
		total = total.Add(e.usage[k])
	}
	return total
}

// Sealed reports whether the chapter has been saved.
func (e *Entry) Sealed() bool {
	return e.sealed
}

func (e *Entry) clone() Entry {
	c := *e
	c.usage = e.Usage()
	c.order = e.Operations()
	return c
}

func (e *Entry) record(key string, u models.TokenUsage) {
	if prev, ok := e.usage[key]; ok {
		e.usage[key] = prev.Add(u)
		return
	}
	e.usage[key] = u
	e.order = append(e.order, key)
}

// ResearchKey names the n-th research pass.
func ResearchKey(n int) string {
	if n <= 1 {
		return OpResearcher
	}
	return OpResearcher + "_rewrite"
}

// WriterKey names the n-th writer pass.
func WriterKey(n int) string {
	if n <= 1 {
		return OpWriter
	}
	return OpWriter + "_rewrite"
}

// ReviewerKey names the n-th review pass.
func ReviewerKey(n int) string {
	if n <= 1 {
		return OpReviewer
	}
	return fmt.Sprintf("%s_%d", OpReviewer, n)
}

// Ledger holds every chapter entry of a run. Only the active chapter can be
// mutated.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	active  string
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Activate makes the given chapter active, creating its entry on first visit.
func (l *Ledger) Activate(spec models.ChapterSpec) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[spec.ID]
	if !ok {
		e = &Entry{
			Spec:  spec,
			State: StatePending,
			usage: make(map[string]models.TokenUsage),
		}
		l.entries[spec.ID] = e
		l.order = append(l.order, spec.ID)
	}
	if e.sealed {
		return Entry{}, apperrors.Invariantf("chapter %s is already saved", spec.ID)
	}
	l.active = spec.ID
	return e.clone(), nil
}

// ActiveID returns the active chapter id, or "".
func (l *Ledger) ActiveID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Get returns a copy of the entry for id.
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// mutable returns the entry for id if it may be modified. Callers hold l.mu.
func (l *Ledger) mutable(id string) (*Entry, error) {
	e, ok := l.entries[id]
	if !ok {
		return nil, apperrors.Invariantf("chapter %s has no ledger entry", id)
	}
	if id != l.active {
		return nil, apperrors.Invariantf("chapter %s is not the active chapter (active %q)", id, l.active)
	}
	if e.sealed {
		return nil, apperrors.Invariantf("chapter %s is sealed", id)
	}
	return e, nil
}

func (l *Ledger) expect(e *Entry, want State) error {
	if e.State != want {
		return apperrors.Invariantf("chapter %s: expected state %s, got %s", e.Spec.ID, want, e.State)
	}
	return nil
}

// BeginStage moves the active chapter into stage and advances the stage's
// attempt counter. It returns the updated attempt number.
func (l *Ledger) BeginStage(id string, stage Stage) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.mutable(id)
	if err != nil {
		return 0, err
	}
	from, ok := stageEntry[stage]
	if !ok {
		return 0, apperrors.Invariantf("unknown stage %q", stage)
	}
	if !slices.Contains(from, e.State) {
		return 0, apperrors.Invariantf("chapter %s: cannot enter %s from %s", id, stage, e.State)
	}
	e.State = stageState[stage]

	switch stage {
	case StageResearch:
		e.ResearchAttempts++
		return e.ResearchAttempts, nil
	case StageDraft:
		e.WriterAttempts++
		return e.WriterAttempts, nil
	default:
		e.ReviewAttempts++
		return e.ReviewAttempts, nil
	}
}

// CompleteResearch stores research output and usage. It returns the
// operation key the usage was recorded under.
func (l *Ledger) CompleteResearch(id, text string, u models.TokenUsage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.mutable(id)
	if err != nil {
		return "", err
	}
	if err := l.expect(e, StateResearching); err != nil {
		return "", err
	}
	key := ResearchKey(e.ResearchAttempts)
	e.ResearchText = text
	e.record(key, u)
	return key, nil
}

// CompleteDraft stores the draft text and usage.
func (l *Ledger) CompleteDraft(id, text string, u models.TokenUsage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.mutable(id)
	if err != nil {
		return "", err
	}
	if err := l.expect(e, StateDrafting); err != nil {
		return "", err
	}
	key := WriterKey(e.WriterAttempts)
	e.DraftText = text
	e.record(key, u)
	return key, nil
}

// CompleteReview stores the verdict and moves the chapter to accepted or
// rejected.
func (l *Ledger) CompleteReview(id string, decision models.ReviewDecision, feedback string, u models.TokenUsage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.mutable(id)
	if err != nil {
		return "", err
	}
	if err := l.expect(e, StateReviewing); err != nil {
		return "", err
	}
	if decision != models.DecisionAccept && decision != models.DecisionReject {
		return "", apperrors.Invariantf("chapter %s: invalid review decision %q", id, decision)
	}
	key := ReviewerKey(e.ReviewAttempts)
	e.ReviewDecision = decision
	e.ReviewFeedback = feedback
	e.record(key, u)
	if decision == models.DecisionAccept {
		e.State = StateAccepted
	} else {
		e.State = StateRejected
	}
	return key, nil
}

// ForceAccept accepts a rejected chapter whose revision budget is spent.
// The last reviewer feedback is kept.
func (l *Ledger) ForceAccept(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.mutable(id)
	if err != nil {
		return err
	}
	if err := l.expect(e, StateRejected); err != nil {
		return err
	}
	e.ReviewDecision = models.DecisionAccept
	e.ForcedAccept = true
	e.State = StateAccepted
	return nil
}

// Complete seals an accepted chapter and returns its frozen copy. Saving a
// chapter whose decision is not accept is an invariant violation.
func (l *Ledger) Complete(id string) (models.CompletedChapter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.mutable(id)
	if err != nil {
		return models.CompletedChapter{}, err
	}
	if e.ReviewDecision != models.DecisionAccept {
		return models.CompletedChapter{}, apperrors.Invariantf(
			"chapter %s saved with review decision %q", id, e.ReviewDecision)
	}
	if err := l.expect(e, StateAccepted); err != nil {
		return models.CompletedChapter{}, err
	}

	e.State = StateSaved
	e.sealed = true
	l.active = ""

	return models.CompletedChapter{
		Spec:         e.Spec,
		DraftText:    e.DraftText,
		Usage:        e.Usage(),
		Operations:   e.Operations(),
		TokenSummary: e.Summary(),
		Reviews:      e.ReviewAttempts,
		ForcedAccept: e.ForcedAccept,
	}, nil
}

// EachUsage calls fn for every recorded operation, chapters in first-visit
// order and operations in first-recorded order.
func (l *Ledger) EachUsage(fn func(chapterID, operation string, u models.TokenUsage)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, id := range l.order {
		e := l.entries[id]
		for _, op := range e.order {
			fn(id, op, e.usage[op])
		}
	}
}

// ChapterTotal returns the summed usage of one chapter.
func (l *Ledger) ChapterTotal(id string) models.TokenUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if e, ok := l.entries[id]; ok {
		return e.Summary()
	}
	return models.TokenUsage{}
}

// GrandTotal sums every chapter's usage.
func (l *Ledger) GrandTotal() models.TokenUsage {
	var total models.TokenUsage
	l.EachUsage(func(_, _ string, u models.TokenUsage) {
		total = total.Add(u)
	})
	return total
}

// Entries returns copies of every entry in first-visit order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id].clone())
	}
	return out
}

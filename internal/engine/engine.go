// Package engine drives a student through an assessment: it picks the next
// question around the oracle's recommended difficulty, grades answers,
// seals attempts and samples fixed forms.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	"github.com/mind-engage/mindengage-adaptive/internal/metrics"
	"github.com/mind-engage/mindengage-adaptive/internal/oracle"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

// DefaultSessionFloor bounds adaptive sessions whose assessment sets no
// question count.
const DefaultSessionFloor = 15

type Engine struct {
	store  assessment.Store
	oracle oracle.Client

	log     *zap.Logger
	metrics *metrics.Metrics
	events  syncx.Log
	now     func() time.Time
	floor   int

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithLogger(l *zap.Logger) Option       { return func(e *Engine) { e.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithEvents(l syncx.Log) Option         { return func(e *Engine) { e.events = l } }
func WithRand(r *rand.Rand) Option          { return func(e *Engine) { e.rng = r } }
func WithSeed(seed1, seed2 uint64) Option   { return WithRand(rand.New(rand.NewPCG(seed1, seed2))) }
func WithSessionFloor(n int) Option         { return func(e *Engine) { e.floor = n } }

func New(store assessment.Store, oc oracle.Client, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		oracle: oc,
		log:    zap.NewNop(),
		now:    time.Now,
		floor:  DefaultSessionFloor,
	}
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if e.floor < 1 {
		e.floor = DefaultSessionFloor
	}
	return e
}

// SessionFloor is the minimum adaptive question limit.
func (e *Engine) SessionFloor() int { return e.floor }

func (e *Engine) intN(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.IntN(n)
}

// withRand runs fn holding the engine's random source.
func (e *Engine) withRand(fn func(r *rand.Rand)) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	fn(e.rng)
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// requireStudent resolves the student record; unknown students are NotFound.
func (e *Engine) requireStudent(ctx context.Context, studentID string) error {
	if studentID == "" {
		return assessment.ErrNotFound
	}
	_, err := e.store.GetStudent(ctx, studentID)
	return err
}

// ensureAttempt lazily opens the attempt for the pair and records the start.
func (e *Engine) ensureAttempt(ctx context.Context, studentID, assessmentID string) (assessment.Attempt, error) {
	att, created, err := e.store.EnsureAttempt(ctx, studentID, assessmentID, e.clock())
	if err != nil {
		return assessment.Attempt{}, err
	}
	if created {
		e.log.Info("attempt started",
			zap.String("attempt_id", att.ID),
			zap.String("student_id", studentID),
			zap.String("assessment_id", assessmentID))
		e.emit(ctx, syncx.TypeAttemptStarted, att.ID, map[string]any{
			"student_id":    studentID,
			"assessment_id": assessmentID,
		})
	}
	return att, nil
}

// emit appends to the event log. Failures are logged only.
func (e *Engine) emit(ctx context.Context, typ, key string, payload map[string]any) {
	if e.events == nil {
		return
	}
	ev, err := syncx.NewEvent(typ, key, payload, e.clock())
	if err == nil {
		err = e.events.Append(ctx, ev)
	}
	if err != nil {
		e.log.Warn("event log append failed", zap.String("type", typ), zap.String("key", key), zap.Error(err))
	}
}

func isNotFound(err error) bool { return errors.Is(err, assessment.ErrNotFound) }

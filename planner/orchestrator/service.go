package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	"github.com/tiles-ai/tiles-planner/pkg/metrics"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/dispatch"
	nodex "github.com/tiles-ai/tiles-planner/planner/nodes"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrInvalidUser    = nodex.ErrInvalidUser
)

// Orchestrator runs the per-turn pipeline: extract, apply, evaluate,
// dispatch, respond. Turns on the same session are serialized; turns on
// different sessions run freely in parallel.
type Orchestrator struct {
	store      statex.Store
	extractor  contractx.LanguageUnderstanding
	evaluator  contractx.ReadinessEvaluator
	dispatcher nodex.GenerationDispatcher
	memory     contractx.MemoryStore
	exporter   contractx.DocumentExporter
	publisher  contractx.Publisher

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	mu    sync.Mutex
	locks map[string]*sessionLock

	now func() time.Time
	log zerolog.Logger
}

func New(
	store statex.Store,
	extractor contractx.LanguageUnderstanding,
	evaluator contractx.ReadinessEvaluator,
	dispatcher nodex.GenerationDispatcher,
	memory contractx.MemoryStore,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if extractor == nil {
		return nil, errors.New("language understanding is required")
	}
	if evaluator == nil {
		return nil, errors.New("readiness evaluator is required")
	}
	if dispatcher == nil {
		return nil, errors.New("generation dispatcher is required")
	}
	if memory == nil {
		memory = noopMemoryStore{}
	}

	o := &Orchestrator{
		store:      store,
		extractor:  extractor,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		memory:     memory,
		publisher:  noopPublisher{},
		locks:      make(map[string]*sessionLock),
		now:        time.Now,
		log:        logx.Component("orchestrator"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Option customizes optional orchestrator dependencies.
type Option func(*Orchestrator)

func WithDocumentExporter(exporter contractx.DocumentExporter) Option {
	return func(o *Orchestrator) { o.exporter = exporter }
}

func WithPublisher(pub contractx.Publisher) Option {
	return func(o *Orchestrator) {
		if pub != nil {
			o.publisher = pub
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// HandleTurn processes one user message and returns the turn's envelope.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userID, text string) (*contractx.GenerationEnvelope, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	start := o.now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
	})
	if err != nil {
		metrics.RecordTurn("error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordTurn("ok", time.Since(start).Seconds())

	env := out.Envelope
	o.afterTurn(env)
	return env, nil
}

// afterTurn publishes the turn event and kicks off the document export when
// the user asked for one. Both are fire-and-forget.
func (o *Orchestrator) afterTurn(env *contractx.GenerationEnvelope) {
	if env == nil {
		return
	}

	ev := contractx.TurnEvent{
		SessionID:      env.SessionID,
		AttemptID:      env.AttemptID,
		RefreshGallery: env.Flags.RefreshGallery,
		CompletedAt:    o.now().UTC(),
	}
	for _, kind := range contractx.AllKinds() {
		switch kind {
		case contractx.KindImage:
			if len(env.Images) > 0 {
				ev.Kinds = append(ev.Kinds, kind)
			}
		case contractx.KindMusic:
			if len(env.Music) > 0 {
				ev.Kinds = append(ev.Kinds, kind)
			}
		case contractx.KindVenue:
			if len(env.Venues) > 0 {
				ev.Kinds = append(ev.Kinds, kind)
			}
		case contractx.KindFood:
			if len(env.Food) > 0 {
				ev.Kinds = append(ev.Kinds, kind)
			}
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.publisher.PublishTurnCompleted(ctx, ev); err != nil {
			o.log.Warn().Err(err).Str("session_id", env.SessionID).Msg("turn event publish failed")
		}
	}()

	if env.Flags.PDFRequested && o.exporter != nil {
		sessionID := env.SessionID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := o.exporter.Render(ctx, sessionID); err != nil {
				o.log.Warn().Err(err).Str("session_id", sessionID).Msg("document export failed")
			}
		}()
	}
}

// Archive permanently closes a session. Subsequent turns are rejected.
func (o *Orchestrator) Archive(ctx context.Context, sessionID string) error {
	unlock := o.lockSession(sessionID)
	defer unlock()

	st, err := o.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := st.Archive(o.now()); err != nil {
		return err
	}
	return o.store.Save(ctx, st)
}

// Memory returns the memory record for a session.
func (o *Orchestrator) Memory(ctx context.Context, userID, sessionID string) (*contractx.MemoryRecord, error) {
	return o.memory.Load(ctx, userID, sessionID)
}

// MemoryHistory returns the user's most recent memory records across all
// their sessions, newest first.
func (o *Orchestrator) MemoryHistory(ctx context.Context, userID string, limit int) ([]contractx.MemoryRecord, error) {
	return o.memory.LoadUser(ctx, userID, limit)
}

// Session returns the persisted state for a session.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*statex.SessionState, error) {
	return o.store.Load(ctx, sessionID)
}

// cacheLateResult persists a provider result that arrived after its turn
// already returned, so the next gallery read can serve it.
func (o *Orchestrator) cacheLateResult(sessionID string, res dispatch.LateResult) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := o.store.Load(ctx, sessionID)
	if err != nil {
		o.log.Warn().Err(err).Str("session_id", sessionID).Msg("late result dropped, state load failed")
		return
	}
	if st.Archived() {
		return
	}

	st.MarkGenerated(string(res.Kind), res.ProfileHash)
	cacheLatePayload(st, res)
	st.Touch(o.now())

	if err := o.store.Save(ctx, st); err != nil {
		o.log.Warn().Err(err).Str("session_id", sessionID).Msg("late result save failed")
		return
	}
	o.log.Info().Str("session_id", sessionID).Str("kind", string(res.Kind)).Msg("late result cached")
}

// sessionLock is one lock-table entry. refs counts holders and waiters so
// the entry can be pruned once the last of them releases it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		o.locks[sessionID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, sessionID)
		}
		o.mu.Unlock()
	}
}

func cacheLatePayload(st *statex.SessionState, res dispatch.LateResult) {
	var v any
	switch res.Kind {
	case contractx.KindImage:
		v = res.Images
	case contractx.KindMusic:
		v = res.Music
	case contractx.KindVenue:
		v = res.Venues
	case contractx.KindFood:
		v = res.Food
	default:
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	st.CacheContent(string(res.Kind), raw)
}

type noopMemoryStore struct{}

func (noopMemoryStore) Load(context.Context, string, string) (*contractx.MemoryRecord, error) {
	return nil, nil
}

func (noopMemoryStore) LoadUser(context.Context, string, int) ([]contractx.MemoryRecord, error) {
	return nil, nil
}

func (noopMemoryStore) Save(context.Context, *contractx.MemoryRecord) error {
	return nil
}

type noopPublisher struct{}

func (noopPublisher) PublishTurnCompleted(context.Context, contractx.TurnEvent) error {
	return nil
}

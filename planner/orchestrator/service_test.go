package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/dispatch"
	memoryx "github.com/tiles-ai/tiles-planner/planner/memory"
	"github.com/tiles-ai/tiles-planner/planner/readiness"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

type fakeExtractor struct {
	mu      sync.Mutex
	results []*contractx.ExtractionResult
	errs    []error
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (*contractx.ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &contractx.ExtractionResult{}, nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
	frag  *dispatch.Fragment
	err   error
	delay time.Duration
}

func (f *fakeDispatcher) Dispatch(
	ctx context.Context,
	profile statex.EventProfile,
	kinds []contractx.GenerationKind,
	onLate func(dispatch.LateResult),
) (*dispatch.Fragment, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.frag != nil {
		return f.frag, nil
	}

	frag := &dispatch.Fragment{
		Generated:   make(map[contractx.GenerationKind]string),
		Unavailable: make(map[contractx.GenerationKind]string),
	}
	for _, kind := range kinds {
		frag.Generated[kind] = readiness.ProfileHash(&profile, kind)
		switch kind {
		case contractx.KindImage:
			frag.Images = append(frag.Images, contractx.ImageItem{ID: "i1", URL: "https://example.com/i1"})
		case contractx.KindMusic:
			frag.Music = append(frag.Music, contractx.MusicItem{ID: "m1", Title: "track"})
		case contractx.KindVenue:
			frag.Venues = append(frag.Venues, contractx.VenueItem{ID: "v1", Name: "hall"})
		case contractx.KindFood:
			frag.Food = append(frag.Food, contractx.FoodItem{ID: "f1", Name: "pad thai"})
		}
	}
	return frag, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingMemory struct {
	memoryx.InMemoryStore
}

func (f *failingMemory) Save(context.Context, *contractx.MemoryRecord) error {
	return contractx.ErrMemoryWrite
}

func newTestOrchestrator(t *testing.T, extractor *fakeExtractor, dispatcher *fakeDispatcher, memory contractx.MemoryStore) (*Orchestrator, statex.Store) {
	t.Helper()
	store := statex.NewMemStore()
	orch, err := New(store, extractor, readiness.New(), dispatcher, memory)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return orch, store
}

func TestHandleTurnCollectsThenGenerates(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{results: []*contractx.ExtractionResult{
		{
			Delta:     statex.ProfileDelta{EventType: "birthday"},
			Questions: []string{"Where will it be?"},
		},
		{
			Delta:             statex.ProfileDelta{Location: "Brooklyn", GuestCount: intPtr(20)},
			ConfirmGeneration: true,
		},
	}}
	dispatcher := &fakeDispatcher{}
	orch, store := newTestOrchestrator(t, extractor, dispatcher, memoryx.NewInMemoryStore())
	ctx := context.Background()

	env1, err := orch.HandleTurn(ctx, "s1", "u1", "planning a birthday")
	if err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if env1.Flags.RefreshGallery || env1.HasContent() {
		t.Fatalf("turn 1 produced content: %+v", env1)
	}
	if env1.Reply == "" {
		t.Fatal("turn 1 has empty reply")
	}
	if dispatcher.callCount() != 0 {
		t.Fatal("dispatcher called before readiness")
	}

	env2, err := orch.HandleTurn(ctx, "s1", "u1", "Brooklyn, 20 people, go ahead")
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if !env2.Flags.RefreshGallery || !env2.HasContent() {
		t.Fatalf("turn 2 flags = %+v content=%v", env2.Flags, env2.ItemCount())
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", dispatcher.callCount())
	}

	st, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Stage != statex.StageIdle {
		t.Fatalf("stage = %s, want idle", st.Stage)
	}
	if len(st.LastGenerated) == 0 {
		t.Fatal("generation marks not persisted")
	}
	if st.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", st.TurnCount)
	}
}

func TestHandleTurnReadyWithoutConfirmationDefers(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{results: []*contractx.ExtractionResult{
		{Delta: statex.ProfileDelta{
			EventType:  "birthday",
			Location:   "Brooklyn",
			GuestCount: intPtr(20),
		}},
	}}
	dispatcher := &fakeDispatcher{}
	orch, _ := newTestOrchestrator(t, extractor, dispatcher, memoryx.NewInMemoryStore())

	env, err := orch.HandleTurn(context.Background(), "s1", "u1", "birthday in Brooklyn for 20")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if dispatcher.callCount() != 0 {
		t.Fatal("dispatcher ran without user confirmation")
	}
	if !env.Flags.ReadyToGenerate {
		t.Fatalf("flags = %+v, want ready_to_generate", env.Flags)
	}
	if env.Flags.GenerationStatus != contractx.GenerationStatusSkipped {
		t.Fatalf("status = %s, want skipped", env.Flags.GenerationStatus)
	}
	if env.Flags.RefreshGallery {
		t.Fatal("refresh_gallery set without content")
	}
}

func TestHandleTurnNoRegenerationOnUnchangedProfile(t *testing.T) {
	t.Parallel()

	confirmAll := &contractx.ExtractionResult{
		Delta: statex.ProfileDelta{
			EventType:  "birthday",
			Location:   "Brooklyn",
			GuestCount: intPtr(20),
		},
		ConfirmGeneration: true,
	}
	extractor := &fakeExtractor{results: []*contractx.ExtractionResult{
		confirmAll,
		{Delta: statex.ProfileDelta{}},
	}}
	dispatcher := &fakeDispatcher{}
	orch, _ := newTestOrchestrator(t, extractor, dispatcher, memoryx.NewInMemoryStore())
	ctx := context.Background()

	if _, err := orch.HandleTurn(ctx, "s1", "u1", "birthday, Brooklyn, 20, go"); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("dispatcher calls = %d", dispatcher.callCount())
	}

	env, err := orch.HandleTurn(ctx, "s1", "u1", "sounds good")
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if dispatcher.callCount() != 1 {
		t.Fatalf("dispatcher re-ran on unchanged profile: calls = %d", dispatcher.callCount())
	}
	if env.Flags.RefreshGallery {
		t.Fatal("refresh_gallery without fresh content")
	}
}

func TestHandleTurnDegradedExtractionStillReplies(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{errs: []error{contractx.ErrDegradedExtraction}}
	dispatcher := &fakeDispatcher{}
	orch, store := newTestOrchestrator(t, extractor, dispatcher, memoryx.NewInMemoryStore())

	env, err := orch.HandleTurn(context.Background(), "s1", "u1", "garbled input")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if env.Reply == "" {
		t.Fatal("degraded turn must still reply")
	}
	if env.Flags.RefreshGallery || env.HasContent() {
		t.Fatalf("degraded turn produced content: %+v", env)
	}

	st, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.TurnCount != 1 {
		t.Fatalf("TurnCount = %d, degraded turn must still count", st.TurnCount)
	}
}

func TestHandleTurnMemoryWriteFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{results: []*contractx.ExtractionResult{
		{Delta: statex.ProfileDelta{EventType: "birthday"}},
	}}
	orch, _ := newTestOrchestrator(t, extractor, &fakeDispatcher{}, &failingMemory{})

	env, err := orch.HandleTurn(context.Background(), "s1", "u1", "a birthday")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if env.Reply == "" {
		t.Fatal("turn failed on memory write")
	}
}

func TestArchiveRejectsFurtherTurns(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{results: []*contractx.ExtractionResult{
		{Delta: statex.ProfileDelta{EventType: "birthday"}},
	}}
	orch, _ := newTestOrchestrator(t, extractor, &fakeDispatcher{}, memoryx.NewInMemoryStore())
	ctx := context.Background()

	if _, err := orch.HandleTurn(ctx, "s1", "u1", "a birthday"); err != nil {
		t.Fatalf("turn error = %v", err)
	}
	if err := orch.Archive(ctx, "s1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	_, err := orch.HandleTurn(ctx, "s1", "u1", "one more thing")
	if !errors.Is(err, statex.ErrSessionArchived) {
		t.Fatalf("turn after archive error = %v, want ErrSessionArchived", err)
	}
}

func TestHandleTurnSerializesSameSession(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	dispatcher := &fakeDispatcher{delay: 20 * time.Millisecond}
	orch, store := newTestOrchestrator(t, extractor, dispatcher, memoryx.NewInMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := orch.HandleTurn(ctx, "s1", "u1", "hello there"); err != nil {
				t.Errorf("concurrent turn error = %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2 serialized turns", st.TurnCount)
	}
}

func TestMemoryHistoryListsUserSessions(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{results: []*contractx.ExtractionResult{
		{Delta: statex.ProfileDelta{EventType: "birthday"}},
		{Delta: statex.ProfileDelta{EventType: "wedding"}},
	}}
	orch, _ := newTestOrchestrator(t, extractor, &fakeDispatcher{}, memoryx.NewInMemoryStore())
	ctx := context.Background()

	if _, err := orch.HandleTurn(ctx, "s1", "u1", "a birthday"); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if _, err := orch.HandleTurn(ctx, "s2", "u1", "a wedding"); err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}

	records, err := orch.MemoryHistory(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("MemoryHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want one per session", len(records))
	}
	sessions := map[string]bool{}
	for _, rec := range records {
		sessions[rec.SessionID] = true
	}
	if !sessions["s1"] || !sessions["s2"] {
		t.Fatalf("sessions = %v, want s1 and s2", sessions)
	}
}

func TestSessionLockTableIsPruned(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	orch, _ := newTestOrchestrator(t, extractor, &fakeDispatcher{}, memoryx.NewInMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, sessionID := range []string{"s1", "s2", "s1"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := orch.HandleTurn(ctx, id, "u1", "hello there"); err != nil {
				t.Errorf("turn error = %v", err)
			}
		}(sessionID)
	}
	wg.Wait()

	orch.mu.Lock()
	entries := len(orch.locks)
	orch.mu.Unlock()
	if entries != 0 {
		t.Fatalf("lock table = %d entries after all turns finished, want 0", entries)
	}
}

func TestHandleTurnValidatesInput(t *testing.T) {
	t.Parallel()

	orch, _ := newTestOrchestrator(t, &fakeExtractor{}, &fakeDispatcher{}, memoryx.NewInMemoryStore())
	ctx := context.Background()

	if _, err := orch.HandleTurn(ctx, "", "u1", "hi"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("error = %v, want ErrInvalidSession", err)
	}
	if _, err := orch.HandleTurn(ctx, "s1", "", "hi"); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("error = %v, want ErrInvalidUser", err)
	}
	if _, err := orch.HandleTurn(ctx, "s1", "u1", "  "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("error = %v, want ErrInvalidMessage", err)
	}
}

func intPtr(n int) *int { return &n }

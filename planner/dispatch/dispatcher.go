package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	"github.com/tiles-ai/tiles-planner/pkg/metrics"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
	"github.com/tiles-ai/tiles-planner/planner/readiness"
	statex "github.com/tiles-ai/tiles-planner/planner/state"
)

// Delivery caps per kind. Providers may return more; the best-scored items
// win and the rest are dropped.
const (
	MaxImages = 8
	MaxMusic  = 4
	MaxVenues = 4
	MaxFood   = 4
)

// Providers bundles the content providers the dispatcher fans out to. A nil
// provider marks its kind permanently unavailable.
type Providers struct {
	Image contractx.ImageProvider
	Music contractx.MusicProvider
	Venue contractx.VenueProvider
	Food  contractx.FoodProvider
}

type Config struct {
	ImageTimeout time.Duration `envconfig:"IMAGE_TIMEOUT" split_words:"true" default:"60s"`
	MusicTimeout time.Duration `envconfig:"MUSIC_TIMEOUT" split_words:"true" default:"15s"`
	VenueTimeout time.Duration `envconfig:"VENUE_TIMEOUT" split_words:"true" default:"15s"`
	FoodTimeout  time.Duration `envconfig:"FOOD_TIMEOUT" split_words:"true" default:"15s"`

	// MaxRetries is per provider call, on top of the first attempt.
	MaxRetries uint `envconfig:"MAX_RETRIES" split_words:"true" default:"2"`

	// JoinTimeout bounds how long one turn waits for all kinds before
	// handing stragglers to the late-result path.
	JoinTimeout time.Duration `envconfig:"JOIN_TIMEOUT" split_words:"true" default:"75s"`
}

func (c Config) timeoutFor(kind contractx.GenerationKind) time.Duration {
	var d time.Duration
	switch kind {
	case contractx.KindImage:
		d = c.ImageTimeout
	case contractx.KindMusic:
		d = c.MusicTimeout
	case contractx.KindVenue:
		d = c.VenueTimeout
	case contractx.KindFood:
		d = c.FoodTimeout
	}
	if d <= 0 {
		d = 15 * time.Second
	}
	return d
}

// Fragment is the joined result of one dispatch: delivered items per kind
// plus the reason each failed kind produced nothing.
type Fragment struct {
	Images []contractx.ImageItem
	Music  []contractx.MusicItem
	Venues []contractx.VenueItem
	Food   []contractx.FoodItem

	// Generated maps each delivered kind to the profile hash it was
	// generated against, ready for SessionState.MarkGenerated.
	Generated map[contractx.GenerationKind]string

	Unavailable map[contractx.GenerationKind]string
}

func (f *Fragment) HasContent() bool {
	return len(f.Images) > 0 || len(f.Music) > 0 || len(f.Venues) > 0 || len(f.Food) > 0
}

// LateResult is one provider result that arrived after the turn gave up
// waiting on it.
type LateResult struct {
	Kind        contractx.GenerationKind
	ProfileHash string
	Images      []contractx.ImageItem
	Music       []contractx.MusicItem
	Venues      []contractx.VenueItem
	Food        []contractx.FoodItem
}

// Dispatcher fans one readiness decision out to the content providers.
type Dispatcher struct {
	providers Providers
	cfg       Config
	log       zerolog.Logger
}

func New(providers Providers, cfg Config) *Dispatcher {
	return &Dispatcher{
		providers: providers,
		cfg:       cfg,
		log:       logx.Component("dispatch"),
	}
}

type kindResult struct {
	kind contractx.GenerationKind
	hash string
	err  error

	images []contractx.ImageItem
	music  []contractx.MusicItem
	venues []contractx.VenueItem
	food   []contractx.FoodItem
}

// Dispatch runs the requested kinds concurrently against a snapshot of the
// profile and joins the results. In-flight provider calls are not cancelled
// when the caller's context dies; results that miss the join window are
// handed to onLate so they can still be cached for the session.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	profile statex.EventProfile,
	kinds []contractx.GenerationKind,
	onLate func(LateResult),
) (*Fragment, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("%w: no kinds requested", contractx.ErrValidation)
	}

	// Provider calls ride a context detached from the request so a caller
	// disconnect cannot waste half-finished generation work.
	base := context.WithoutCancel(ctx)

	results := make(chan kindResult, len(kinds))
	for _, kind := range kinds {
		kind := kind
		hash := readiness.ProfileHash(&profile, kind)
		go func() {
			results <- d.runKind(base, kind, hash, profile)
		}()
	}

	joinTimeout := d.cfg.JoinTimeout
	if joinTimeout <= 0 {
		joinTimeout = 75 * time.Second
	}
	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	frag := &Fragment{
		Generated:   make(map[contractx.GenerationKind]string),
		Unavailable: make(map[contractx.GenerationKind]string),
	}
	pending := len(kinds)

	for pending > 0 {
		select {
		case res := <-results:
			pending--
			d.absorb(frag, res)
		case <-ctx.Done():
			d.flushAbsorbed(frag, onLate)
			d.drainLate(results, pending, onLate)
			return frag, ctx.Err()
		case <-timer.C:
			d.drainLate(results, pending, onLate)
			for _, kind := range kinds {
				if _, ok := frag.Generated[kind]; ok {
					continue
				}
				if _, ok := frag.Unavailable[kind]; !ok {
					frag.Unavailable[kind] = "still generating"
				}
			}
			return frag, nil
		}
	}

	return frag, nil
}

func (d *Dispatcher) absorb(frag *Fragment, res kindResult) {
	if res.err != nil {
		d.log.Warn().Str("kind", string(res.kind)).Err(res.err).Msg("kind failed")
		frag.Unavailable[res.kind] = unavailableReason(res.err)
		return
	}
	frag.Images = append(frag.Images, res.images...)
	frag.Music = append(frag.Music, res.music...)
	frag.Venues = append(frag.Venues, res.venues...)
	frag.Food = append(frag.Food, res.food...)
	frag.Generated[res.kind] = res.hash
}

// flushAbsorbed replays the already-joined kinds through onLate. When the
// join exits on a dead caller context the rest of the turn runs on that same
// context, so its save can no longer be relied on to land; the late path
// persists on a detached context instead.
func (d *Dispatcher) flushAbsorbed(frag *Fragment, onLate func(LateResult)) {
	if onLate == nil {
		return
	}
	for kind, hash := range frag.Generated {
		res := LateResult{Kind: kind, ProfileHash: hash}
		switch kind {
		case contractx.KindImage:
			res.Images = frag.Images
		case contractx.KindMusic:
			res.Music = frag.Music
		case contractx.KindVenue:
			res.Venues = frag.Venues
		case contractx.KindFood:
			res.Food = frag.Food
		}
		onLate(res)
	}
}

// drainLate hands the remaining in-flight results to onLate on a background
// goroutine so the turn can return immediately.
func (d *Dispatcher) drainLate(results <-chan kindResult, pending int, onLate func(LateResult)) {
	if pending <= 0 {
		return
	}
	go func() {
		for i := 0; i < pending; i++ {
			res := <-results
			if res.err != nil {
				d.log.Warn().Str("kind", string(res.kind)).Err(res.err).Msg("late kind failed")
				continue
			}
			d.log.Info().Str("kind", string(res.kind)).Msg("late result arrived")
			if onLate != nil {
				onLate(LateResult{
					Kind:        res.kind,
					ProfileHash: res.hash,
					Images:      res.images,
					Music:       res.music,
					Venues:      res.venues,
					Food:        res.food,
				})
			}
		}
	}()
}

func (d *Dispatcher) runKind(
	base context.Context,
	kind contractx.GenerationKind,
	hash string,
	profile statex.EventProfile,
) kindResult {
	res := kindResult{kind: kind, hash: hash}
	start := time.Now()

	op := func() error {
		ctx, cancel := context.WithTimeout(base, d.cfg.timeoutFor(kind))
		defer cancel()

		var err error
		switch kind {
		case contractx.KindImage:
			res.images, err = d.generateImages(ctx, profile)
		case contractx.KindMusic:
			res.music, err = d.recommendMusic(ctx, profile)
		case contractx.KindVenue:
			res.venues, err = d.recommendVenues(ctx, profile)
		case contractx.KindFood:
			res.food, err = d.recommendFood(ctx, profile)
		default:
			return backoff.Permanent(fmt.Errorf("%w: unknown kind %q", contractx.ErrValidation, kind))
		}
		if err != nil {
			var perr *contractx.ProviderError
			if errors.As(err, &perr) && !perr.Retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.cfg.MaxRetries))
	res.err = backoff.Retry(op, backoff.WithContext(policy, base))

	status := "ok"
	if res.err != nil {
		status = "error"
	}
	items := len(res.images) + len(res.music) + len(res.venues) + len(res.food)
	metrics.RecordProvider(string(kind), status, time.Since(start).Seconds(), items)

	return res
}

func (d *Dispatcher) generateImages(ctx context.Context, profile statex.EventProfile) ([]contractx.ImageItem, error) {
	if d.providers.Image == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: image provider not configured", contractx.ErrProviderUnavailable))
	}
	items, err := d.providers.Image.Generate(ctx, ImagePrompt(profile), MaxImages)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Confidence > items[j].Confidence })
	if len(items) > MaxImages {
		items = items[:MaxImages]
	}
	return items, nil
}

func (d *Dispatcher) recommendMusic(ctx context.Context, profile statex.EventProfile) ([]contractx.MusicItem, error) {
	if d.providers.Music == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: music provider not configured", contractx.ErrProviderUnavailable))
	}
	items, err := d.providers.Music.Recommend(ctx, contractx.MusicSignals{
		EventType: profile.EventType,
		StyleTags: profile.StyleTags,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].MatchScore > items[j].MatchScore })
	if len(items) > MaxMusic {
		items = items[:MaxMusic]
	}
	return items, nil
}

func (d *Dispatcher) recommendVenues(ctx context.Context, profile statex.EventProfile) ([]contractx.VenueItem, error) {
	if d.providers.Venue == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: venue provider not configured", contractx.ErrProviderUnavailable))
	}
	items, err := d.providers.Venue.Recommend(ctx, profile.Location, profile.EventType)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].MatchScore > items[j].MatchScore })
	if len(items) > MaxVenues {
		items = items[:MaxVenues]
	}
	return items, nil
}

func (d *Dispatcher) recommendFood(ctx context.Context, profile statex.EventProfile) ([]contractx.FoodItem, error) {
	if d.providers.Food == nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: food provider not configured", contractx.ErrProviderUnavailable))
	}
	items, err := d.providers.Food.Recommend(ctx, contractx.FoodSignals{
		EventType: profile.EventType,
		Cuisine:   profile.Cuisine,
		Location:  profile.Location,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].MatchScore > items[j].MatchScore })
	if len(items) > MaxFood {
		items = items[:MaxFood]
	}
	return items, nil
}

func unavailableReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, contractx.ErrProviderTimeout):
		return "timed out"
	case errors.Is(err, contractx.ErrProviderUnavailable):
		return "temporarily unavailable"
	default:
		var perr *contractx.ProviderError
		if errors.As(err, &perr) && perr.Reason != "" {
			return perr.Reason
		}
		return "failed"
	}
}

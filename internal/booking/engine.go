package booking

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/iliyamo/queue-token-service/internal/lock"
	"github.com/iliyamo/queue-token-service/internal/model"
)

// allocRetries is how many times a lost allocation race is retried before
// the request is rejected as full.
const allocRetries = 1

// Engine ties the registry, allocator, lifecycle, ledger and estimator
// together over one Store.  It is safe for concurrent use.
type Engine struct {
	Registry *Registry
	Ledger   *Ledger

	store   Store
	locks   lock.Locker
	events  EventPublisher
	metrics *Metrics
	now     func() time.Time
	loc     *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the default in-process slot locker.
func WithLocker(l lock.Locker) Option { return func(e *Engine) { e.locks = l } }

// WithEvents publishes token events after every committed change.
func WithEvents(p EventPublisher) Option { return func(e *Engine) { e.events = p } }

// WithMetrics records allocation and transition outcomes.
func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the zone slot wall-clock times are read in.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithServices restricts the service tags slots may be created with.
func WithServices(services ...model.Service) Option {
	return func(e *Engine) {
		e.Registry.services = make(map[model.Service]bool, len(services))
		for _, s := range services {
			e.Registry.services[s] = true
		}
	}
}

// New returns an Engine over store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		locks: lock.NewLocal(3 * time.Second),
		now:   time.Now,
		loc:   time.UTC,
	}
	e.Registry = &Registry{engine: e, services: map[model.Service]bool{
		model.ServiceLibrary: true,
		model.ServiceCanteen: true,
	}}
	e.Ledger = &Ledger{engine: e}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone slot times are interpreted in.
func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) clock() time.Time { return e.now().UTC() }

// withSlotLock runs fn while holding the slot's lock.
func (e *Engine) withSlotLock(ctx context.Context, slotID uint64, fn func() error) error {
	start := time.Now()
	unlock, err := e.locks.Lock(ctx, slotLockKey(slotID))
	e.metrics.observeLockWait(time.Since(start))
	if err != nil {
		log.Printf("booking: slot %d lock failed: %v", slotID, err)
		return storageErr(err)
	}
	defer unlock()
	return fn()
}

func slotLockKey(id uint64) string {
	return "slot:" + strconv.FormatUint(id, 10)
}

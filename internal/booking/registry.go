package booking

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// Registry owns the set of bookable slots.  Creation and edits are simple
// data entry; the allocator only reads through it.
type Registry struct {
	engine   *Engine
	services map[model.Service]bool
}

// SlotInput carries the fields of a new slot.
type SlotInput struct {
	Service           model.Service
	Date              time.Time
	StartTime         time.Duration
	EndTime           time.Duration
	Capacity          int
	AvgServiceMinutes *int
}

// SlotPatch carries optional edits.  Nil fields are left unchanged.
type SlotPatch struct {
	Date              *time.Time
	StartTime         *time.Duration
	EndTime           *time.Duration
	Capacity          *int
	AvgServiceMinutes *int
}

func (p SlotPatch) onlyCapacity() bool {
	return p.Date == nil && p.StartTime == nil && p.EndTime == nil && p.AvgServiceMinutes == nil
}

// Services returns the accepted service tags.
func (r *Registry) Services() []model.Service {
	out := make([]model.Service, 0, len(r.services))
	for s := range r.services {
		out = append(out, s)
	}
	return out
}

// Get returns the slot with the given id or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id uint64) (model.Slot, error) {
	s, err := r.engine.store.GetSlot(ctx, id)
	return s, storageErr(err)
}

// ListBookable lazily yields slots that can still be booked: not retired,
// dated on or after from and not yet over.  Ordering is (date, start_time)
// ascending.  Ranging twice queries the store twice.
func (r *Registry) ListBookable(ctx context.Context, service model.Service, from time.Time) iter.Seq2[model.Slot, error] {
	return func(yield func(model.Slot, error) bool) {
		now := r.engine.clock()
		for s, err := range r.engine.store.BookableSlots(ctx, SlotFilter{Service: service, From: from}) {
			if err != nil {
				yield(model.Slot{}, storageErr(err))
				return
			}
			if s.HasEnded(now, r.engine.loc) {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// RemainingCapacity is capacity minus the slot's non-terminal tokens.  It
// is advisory; Allocate re-checks under the slot lock.
func (r *Registry) RemainingCapacity(ctx context.Context, s model.Slot) (int, error) {
	held, err := r.engine.store.CountHeld(ctx, s.ID)
	if err != nil {
		return 0, storageErr(err)
	}
	if left := s.Capacity - held; left > 0 {
		return left, nil
	}
	return 0, nil
}

// Create validates and stores a new slot.
func (r *Registry) Create(ctx context.Context, in SlotInput) (model.Slot, error) {
	s := model.Slot{
		Service:           in.Service,
		Date:              in.Date,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Capacity:          in.Capacity,
		AvgServiceMinutes: in.AvgServiceMinutes,
	}
	if err := r.validate(s); err != nil {
		return model.Slot{}, err
	}
	now := r.engine.clock()
	s.CreatedAt, s.UpdatedAt = now, now
	if err := r.engine.store.CreateSlot(ctx, &s); err != nil {
		return model.Slot{}, storageErr(err)
	}
	return s, nil
}

// Update applies a patch.  Once any token references the slot only a
// capacity increase is accepted; anything else fails with ErrSlotLocked.
func (r *Registry) Update(ctx context.Context, id uint64, p SlotPatch) (model.Slot, error) {
	var out model.Slot
	err := r.engine.withSlotLock(ctx, id, func() error {
		return r.engine.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			s, err := tx.LockSlot(ctx, id)
			if err != nil {
				return err
			}
			issued, err := tx.CountTokens(ctx, id)
			if err != nil {
				return err
			}
			if issued > 0 {
				if !p.onlyCapacity() || (p.Capacity != nil && *p.Capacity < s.Capacity) {
					return ErrSlotLocked
				}
			}
			if p.Date != nil {
				s.Date = *p.Date
			}
			if p.StartTime != nil {
				s.StartTime = *p.StartTime
			}
			if p.EndTime != nil {
				s.EndTime = *p.EndTime
			}
			if p.Capacity != nil {
				s.Capacity = *p.Capacity
			}
			if p.AvgServiceMinutes != nil {
				s.AvgServiceMinutes = p.AvgServiceMinutes
			}
			if err := r.validate(s); err != nil {
				return err
			}
			s.UpdatedAt = r.engine.clock()
			if err := tx.UpdateSlot(ctx, s); err != nil {
				return err
			}
			out = s
			return nil
		})
	})
	return out, storageErr(err)
}

// Retire soft-deletes a slot.  Its tokens and history stay intact but no
// new token can be allocated against it.  Retiring twice is a no-op.
func (r *Registry) Retire(ctx context.Context, id uint64) (model.Slot, error) {
	var out model.Slot
	err := r.engine.withSlotLock(ctx, id, func() error {
		return r.engine.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
			s, err := tx.LockSlot(ctx, id)
			if err != nil {
				return err
			}
			out = s
			if s.IsRetired {
				return nil
			}
			s.IsRetired = true
			s.UpdatedAt = r.engine.clock()
			if err := tx.UpdateSlot(ctx, s); err != nil {
				return err
			}
			out = s
			return nil
		})
	})
	return out, storageErr(err)
}

func (r *Registry) validate(s model.Slot) error {
	if s.Service == "" {
		return invalidf("service is required")
	}
	if !r.services[s.Service] {
		return invalidf("unknown service %q", s.Service)
	}
	if s.Date.IsZero() {
		return invalidf("date is required")
	}
	if s.Capacity < 1 {
		return invalidf("capacity must be at least 1")
	}
	if s.StartTime < 0 || s.EndTime > 24*time.Hour {
		return invalidf("times must fall within the day")
	}
	if s.StartTime >= s.EndTime {
		return invalidf("start time must be before end time")
	}
	if s.AvgServiceMinutes != nil && *s.AvgServiceMinutes < 1 {
		return invalidf("avg_service_minutes must be positive")
	}
	return nil
}

// isNotFound is shorthand used by callers mapping store misses.
func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

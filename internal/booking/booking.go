// Package booking arbitrates exclusive control of telescopes across
// time-boxed reservations. The calendar lives in SQLite; the scheduler
// layers the overlap invariant, ownership checks, and the derived
// "current controller" on top of it.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/svartdal/telescoped/internal/metrics"
)

var (
	// ErrOverlap rejects a booking whose interval intersects an existing
	// one for the same telescope. Recoverable: pick another slot.
	ErrOverlap = errors.New("booking overlaps an existing reservation")

	// ErrNotOwner rejects cancellation or control by anyone but the
	// booking's owner / current controller.
	ErrNotOwner = errors.New("not the owner of this booking")

	// ErrNotFound indicates an unknown booking id.
	ErrNotFound = errors.New("booking not found")
)

// Booking is one reservation: [Start, End) grants UserID exclusive
// control of TelescopeID. Intervals are half-open, so touching endpoints
// do not overlap.
type Booking struct {
	ID          int64     `json:"id"`
	TelescopeID string    `json:"telescope_id"`
	UserID      string    `json:"user_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (b Booking) Overlaps(o Booking) bool {
	return b.Start.Before(o.End) && b.End.After(o.Start)
}

// Contains reports whether t falls inside [Start, End).
func (b Booking) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Options configures a Scheduler.
type Options struct {
	// Now is the injected time source so authorization is deterministic
	// under test. Defaults to time.Now.
	Now func() time.Time

	// OpenWhenUnbooked lets any authenticated user control a telescope
	// that has no active booking. Off by default: an unbooked telescope
	// is locked out.
	OpenWhenUnbooked bool

	Logger *log.Logger
}

// Scheduler maintains the reservation calendar and answers "who controls
// telescope X right now". It keeps a read-through cache of bookings per
// telescope, refreshed on every mutation, and serializes the overlap
// check with the write per telescope so there is no lost-update window.
// Different telescopes never contend with each other.
type Scheduler struct {
	store *Store
	log   *log.Logger
	now   func() time.Time
	open  bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string][]Booking
}

// NewScheduler wraps a store.
func NewScheduler(store *Store, opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		store: store,
		log:   logger,
		now:   now,
		open:  opts.OpenWhenUnbooked,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string][]Booking),
	}
}

// telescopeLock returns the mutex scoped to one telescope's booking
// state, creating it on first use.
func (s *Scheduler) telescopeLock(telescopeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[telescopeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[telescopeID] = l
	}
	return l
}

// bookings returns the telescope's bookings, reading through to the
// store on a cache miss. Callers hold the telescope lock when they need
// the result to stay consistent with a following write.
func (s *Scheduler) bookings(ctx context.Context, telescopeID string) ([]Booking, error) {
	s.mu.Lock()
	cached, ok := s.cache[telescopeID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	list, err := s.store.ListTelescope(ctx, telescopeID)
	if err != nil {
		return nil, fmt.Errorf("loading bookings for %s: %w", telescopeID, err)
	}
	s.mu.Lock()
	s.cache[telescopeID] = list
	s.mu.Unlock()
	return list, nil
}

func (s *Scheduler) invalidate(telescopeID string) {
	s.mu.Lock()
	delete(s.cache, telescopeID)
	s.mu.Unlock()
}

// Request reserves [start, end) of telescopeID for userID. The overlap
// check and the insert are atomic relative to other writers for the
// same telescope.
func (s *Scheduler) Request(ctx context.Context, telescopeID, userID string, start, end time.Time) (Booking, error) {
	if !end.After(start) {
		return Booking{}, fmt.Errorf("booking end %v not after start %v", end, start)
	}
	if userID == "" {
		return Booking{}, errors.New("booking requires a user id")
	}

	lock := s.telescopeLock(telescopeID)
	lock.Lock()
	defer lock.Unlock()

	requested := Booking{TelescopeID: telescopeID, UserID: userID, Start: start, End: end}
	existing, err := s.bookings(ctx, telescopeID)
	if err != nil {
		return Booking{}, err
	}
	for _, b := range existing {
		if b.Overlaps(requested) {
			metrics.BookingDecision("overlap")
			return Booking{}, fmt.Errorf("%w: %s holds [%s, %s)", ErrOverlap,
				b.UserID, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
		}
	}

	id, err := s.store.Insert(ctx, requested)
	if err != nil {
		return Booking{}, fmt.Errorf("storing booking: %w", err)
	}
	requested.ID = id
	s.invalidate(telescopeID)
	metrics.BookingDecision("accepted")
	s.log.Printf("booking %d: %s reserved %s [%s, %s)", id, userID, telescopeID,
		start.Format(time.RFC3339), end.Format(time.RFC3339))
	return requested, nil
}

// Cancel removes a booking. Only its owner may cancel it.
func (s *Scheduler) Cancel(ctx context.Context, id int64, requester string) error {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.UserID != requester {
		return fmt.Errorf("%w: booking %d belongs to %s", ErrNotOwner, id, b.UserID)
	}

	lock := s.telescopeLock(b.TelescopeID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(b.TelescopeID)
	s.log.Printf("booking %d cancelled by %s", id, requester)
	return nil
}

// CurrentController returns the user whose booking interval contains the
// injected "now", or ok=false when the telescope is unbooked. It is
// recomputed from the calendar on every call; there is no separately
// mutated "active" flag to go stale.
func (s *Scheduler) CurrentController(ctx context.Context, telescopeID string) (string, bool, error) {
	list, err := s.bookings(ctx, telescopeID)
	if err != nil {
		return "", false, err
	}
	now := s.now()
	for _, b := range list {
		if b.Contains(now) {
			return b.UserID, true, nil
		}
	}
	return "", false, nil
}

// Authorize decides whether userID may command telescopeID right now.
// The controller always may; anyone may when the telescope is unbooked
// and the open policy is enabled.
func (s *Scheduler) Authorize(ctx context.Context, telescopeID, userID string) error {
	controller, booked, err := s.CurrentController(ctx, telescopeID)
	if err != nil {
		return err
	}
	if booked {
		if controller == userID {
			return nil
		}
		metrics.CommandRejected("not_owner")
		return fmt.Errorf("%w: %s is the current controller of %s", ErrNotOwner, controller, telescopeID)
	}
	if s.open {
		return nil
	}
	metrics.CommandRejected("not_owner")
	return fmt.Errorf("%w: %s is unbooked and not open for free use", ErrNotOwner, telescopeID)
}

// List returns all bookings intersecting [from, to), across every
// telescope, sorted by start time. Used for calendar rendering.
func (s *Scheduler) List(ctx context.Context, from, to time.Time) ([]Booking, error) {
	list, err := s.store.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Start.Before(list[j].Start) })
	return list, nil
}

// RemoveUser deletes every booking owned by userID, the cascade for a
// user being removed upstream.
func (s *Scheduler) RemoveUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteUserBookings(ctx, userID)
	if err != nil {
		return 0, err
	}
	// The cascade can touch any telescope; drop the whole cache.
	s.mu.Lock()
	s.cache = make(map[string][]Booking)
	s.mu.Unlock()
	if n > 0 {
		s.log.Printf("removed %d bookings for departed user %s", n, userID)
	}
	return n, nil
}

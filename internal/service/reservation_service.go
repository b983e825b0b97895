// Package service implements the booking protocol on top of the
// repository primitives: advisory search, optimistic reservation with a
// single bounded retry and compensation, and diner-initiated cancellation.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/restriction"
)

// TableStore is the subset of *repository.ReservationRepo the protocol
// needs.  Methods ending in Tx run inside the caller's unit of work.
type TableStore interface {
	DB() *sql.DB
	FindTables(ctx context.Context, s repository.TableSearch) (model.TablesByRestaurant, error)
	FindTablesTx(ctx context.Context, tx *sql.Tx, s repository.TableSearch) (model.TablesByRestaurant, error)
	CreateTx(ctx context.Context, tx *sql.Tx, tableIDs []uint64, capacity uint32, at time.Time) (uint64, bool, error)
	AttachDinersTx(ctx context.Context, tx *sql.Tx, reservationID uint64, dinerIDs []uint64, at time.Time) (int, error)
	ConflictingDinersTx(ctx context.Context, tx *sql.Tx, dinerIDs []uint64, at time.Time, excludeReservationID uint64) ([]uint64, error)
	ForceDeleteTx(ctx context.Context, tx *sql.Tx, reservationID uint64) (bool, error)
	DeleteForDiner(ctx context.Context, reservationID, dinerID uint64, now time.Time) (bool, error)
	ListUpcomingByDiner(ctx context.Context, dinerID uint64, now time.Time) ([]model.Reservation, error)
}

// ProfileStore resolves the merged restriction mask of a set of diners.
type ProfileStore interface {
	FindRestrictionProfile(ctx context.Context, dinerIDs []uint64) (restriction.Mask, error)
}

// Publisher delivers reservation events after commit.
type Publisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// SearchQuery is a validated availability search.  Diners counts every
// attendee; DinerIDs are the platform users among them and
// ExtraRestrictionIDs cover the attendees without an account.
type SearchQuery struct {
	Diners              uint32
	DinerIDs            []uint64
	ExtraRestrictionIDs []int
	Datetime            time.Time
}

// ReserveRequest replays a decoded availability snapshot for one restaurant.
type ReserveRequest struct {
	CallerID     uint64
	RestaurantID uint64
	Snapshot     model.Availability
}

// CancelRequest asks to cancel a reservation on behalf of CallerID.
type CancelRequest struct {
	CallerID      uint64
	ReservationID uint64
}

// ReservationService composes availability search and the reservation
// store.  It holds no locks; correctness rests on the store's
// single-statement check-and-insert operations and on running Reserve in
// one transaction.
type ReservationService struct {
	Tables TableStore
	Diners ProfileStore
	Events Publisher
	Logger *zap.Logger
	Now    func() time.Time
}

// NewReservationService wires the service.  events may be nil to disable
// publishing; now defaults to time.Now.
func NewReservationService(tables TableStore, diners ProfileStore, events Publisher, logger *zap.Logger, now func() time.Time) *ReservationService {
	if tables == nil || diners == nil {
		panic("nil store passed to NewReservationService")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{Tables: tables, Diners: diners, Events: events, Logger: logger, Now: now}
}

func (s *ReservationService) now() time.Time { return s.Now().UTC() }

// Search returns free tables able to seat the whole party at q.Datetime in
// restaurants that honour every restriction of the platform diners plus
// the extra ones.  The result is advisory: nothing is locked.
func (s *ReservationService) Search(ctx context.Context, q SearchQuery) (model.TablesByRestaurant, error) {
	if !q.Datetime.After(s.now()) {
		return nil, ErrDateInPast
	}
	extra, err := restriction.Encode(q.ExtraRestrictionIDs)
	if err != nil {
		return nil, err
	}
	profile, err := s.Diners.FindRestrictionProfile(ctx, q.DinerIDs)
	if err != nil {
		return nil, err
	}
	required := restriction.Union(profile, extra)
	return s.Tables.FindTables(ctx, repository.TableSearch{
		Capacity:     q.Diners,
		Datetime:     q.Datetime,
		Restrictions: &required,
	})
}

// Reserve books a table at req.RestaurantID for the snapshot's party.
//
// The snapshot's candidates are tried first.  If they are all taken the
// restaurant is searched again and the fresh candidates are tried exactly
// once more.  Diners are attached afterwards; if any of them is already
// booked elsewhere inside the buffer window the new reservation is
// deleted again and ErrNotAllDinersAvailable is returned.  Diner conflicts
// are never retried.  Everything runs in one transaction.  A deadlock or
// lock wait timeout aborts that transaction and is reported as the
// conflict of the phase it hit.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (uint64, error) {
	snap := req.Snapshot
	if !snap.Datetime.After(s.now()) {
		return 0, ErrDateInPast
	}
	candidates, ok := snap.Tables[req.RestaurantID]
	if !ok {
		return 0, ErrInvalidRestaurantID
	}

	tx, err := s.Tables.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reservation: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	reservationID, created, err := s.Tables.CreateTx(ctx, tx, candidates, snap.Diners, snap.Datetime)
	if err != nil {
		return 0, s.contended(err, ErrNoTableAvailable)
	}
	if !created {
		fresh, err := s.Tables.FindTablesTx(ctx, tx, repository.TableSearch{
			Capacity:     snap.Diners,
			Datetime:     snap.Datetime,
			RestaurantID: req.RestaurantID,
		})
		if err != nil {
			return 0, s.contended(err, ErrNoTableAvailable)
		}
		if ids := fresh[req.RestaurantID]; len(ids) > 0 {
			reservationID, created, err = s.Tables.CreateTx(ctx, tx, ids, snap.Diners, snap.Datetime)
			if err != nil {
				return 0, s.contended(err, ErrNoTableAvailable)
			}
		}
		if !created {
			return 0, ErrNoTableAvailable
		}
	}

	dinerIDs := distinct(snap.DinerIDs)
	attached, err := s.Tables.AttachDinersTx(ctx, tx, reservationID, dinerIDs, snap.Datetime)
	if err != nil {
		return 0, s.contended(err, &DinersUnavailableError{DinerIDs: []uint64{}})
	}
	if attached < len(dinerIDs) {
		return 0, s.compensate(ctx, tx, reservationID, dinerIDs, snap.Datetime)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reservation: %w", err)
	}
	committed = true

	s.publish(ctx, queue.ReservationEvent{
		Type:          queue.EventConfirmed,
		ReservationID: reservationID,
		RestaurantID:  req.RestaurantID,
		Capacity:      snap.Diners,
		DinerIDs:      dinerIDs,
		ActorID:       req.CallerID,
		Datetime:      snap.Datetime.UTC().Format(time.RFC3339),
	})
	return reservationID, nil
}

// compensate removes a reservation whose diners could not all be attached.
// A missing row is logged, not escalated: its absence is the desired end
// state anyway.
func (s *ReservationService) compensate(ctx context.Context, tx *sql.Tx, reservationID uint64, dinerIDs []uint64, at time.Time) error {
	conflicting, err := s.Tables.ConflictingDinersTx(ctx, tx, dinerIDs, at, reservationID)
	if errors.Is(err, repository.ErrContention) {
		return s.contended(err, &DinersUnavailableError{DinerIDs: []uint64{}})
	}
	if err != nil {
		s.Logger.Warn("could not determine conflicting diners", zap.Uint64("reservation_id", reservationID), zap.Error(err))
		conflicting = nil
	}
	removed, err := s.Tables.ForceDeleteTx(ctx, tx, reservationID)
	if err != nil {
		return s.contended(err, &DinersUnavailableError{DinerIDs: conflicting})
	}
	if !removed {
		s.Logger.Warn("compensation found no reservation to delete", zap.Uint64("reservation_id", reservationID))
	}
	return &DinersUnavailableError{DinerIDs: conflicting}
}

// contended returns outcome when err is a lost lock race and err itself
// otherwise.  InnoDB has already rolled back the transaction in the first
// case, so nothing written in it survives.
func (s *ReservationService) contended(err, outcome error) error {
	if !errors.Is(err, repository.ErrContention) {
		return err
	}
	s.Logger.Info("reservation lost a lock race", zap.Error(err))
	return outcome
}

// Cancel deletes the reservation if the caller attends it and it has not
// started yet.  Any attendee may cancel for the whole party.
func (s *ReservationService) Cancel(ctx context.Context, req CancelRequest) (bool, error) {
	removed, err := s.Tables.DeleteForDiner(ctx, req.ReservationID, req.CallerID, s.now())
	if err != nil {
		return false, err
	}
	if removed {
		s.publish(ctx, queue.ReservationEvent{
			Type:          queue.EventCancelled,
			ReservationID: req.ReservationID,
			ActorID:       req.CallerID,
		})
	}
	return removed, nil
}

// Upcoming lists the caller's reservations that have not started yet.
func (s *ReservationService) Upcoming(ctx context.Context, dinerID uint64) ([]model.Reservation, error) {
	return s.Tables.ListUpcomingByDiner(ctx, dinerID, s.now())
}

func (s *ReservationService) publish(ctx context.Context, ev queue.ReservationEvent) {
	if s.Events == nil {
		return
	}
	ev.OccurredAt = s.now().Format(time.RFC3339)
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Logger.Warn("reservation event not published",
			zap.String("type", ev.Type), zap.Uint64("reservation_id", ev.ReservationID), zap.Error(err))
	}
}

func distinct(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/restriction"
)

var (
	testNow  = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	dinnerAt = time.Date(2024, 8, 5, 20, 0, 0, 0, time.UTC)
)

type createCall struct {
	tableIDs []uint64
	capacity uint32
}

// fakeTables scripts the store responses.  Every create call consumes the
// next entry in created; an exhausted script means "no table".
type fakeTables struct {
	db *sql.DB

	searches   []repository.TableSearch
	found      model.TablesByRestaurant
	refreshed  model.TablesByRestaurant
	refreshErr error

	creates   []createCall
	created   []uint64
	createErr error
	attached  int
	attachErr error

	conflicting    []uint64
	conflictingErr error
	forceDeleted   []uint64
	forceFound     bool

	deleteResult bool
	upcoming     []model.Reservation
}

func (f *fakeTables) DB() *sql.DB { return f.db }

func (f *fakeTables) FindTables(_ context.Context, s repository.TableSearch) (model.TablesByRestaurant, error) {
	f.searches = append(f.searches, s)
	return f.found, nil
}

func (f *fakeTables) FindTablesTx(_ context.Context, _ *sql.Tx, s repository.TableSearch) (model.TablesByRestaurant, error) {
	f.searches = append(f.searches, s)
	return f.refreshed, f.refreshErr
}

func (f *fakeTables) CreateTx(_ context.Context, _ *sql.Tx, tableIDs []uint64, capacity uint32, _ time.Time) (uint64, bool, error) {
	f.creates = append(f.creates, createCall{tableIDs: tableIDs, capacity: capacity})
	if f.createErr != nil {
		return 0, false, f.createErr
	}
	if len(f.created) == 0 {
		return 0, false, nil
	}
	id := f.created[0]
	f.created = f.created[1:]
	return id, id != 0, nil
}

func (f *fakeTables) AttachDinersTx(_ context.Context, _ *sql.Tx, _ uint64, dinerIDs []uint64, _ time.Time) (int, error) {
	if f.attachErr != nil {
		return 0, f.attachErr
	}
	if f.attached < 0 {
		return len(dinerIDs), nil
	}
	return f.attached, nil
}

func (f *fakeTables) ConflictingDinersTx(_ context.Context, _ *sql.Tx, _ []uint64, _ time.Time, _ uint64) ([]uint64, error) {
	return f.conflicting, f.conflictingErr
}

func (f *fakeTables) ForceDeleteTx(_ context.Context, _ *sql.Tx, id uint64) (bool, error) {
	f.forceDeleted = append(f.forceDeleted, id)
	return f.forceFound, nil
}

func (f *fakeTables) DeleteForDiner(_ context.Context, _, _ uint64, _ time.Time) (bool, error) {
	return f.deleteResult, nil
}

func (f *fakeTables) ListUpcomingByDiner(_ context.Context, _ uint64, _ time.Time) ([]model.Reservation, error) {
	return f.upcoming, nil
}

type fakeProfiles struct {
	mask restriction.Mask
	err  error
	got  []uint64
}

func (f *fakeProfiles) FindRestrictionProfile(_ context.Context, ids []uint64) (restriction.Mask, error) {
	f.got = ids
	return f.mask, f.err
}

type recordingPublisher struct {
	events []queue.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func newService(t *testing.T, tables *fakeTables, logger *zap.Logger) (*ReservationService, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	tables.db = db
	pub := &recordingPublisher{}
	svc := NewReservationService(tables, &fakeProfiles{}, pub, logger, func() time.Time { return testNow })
	return svc, mock, pub
}

func snapshot(tables model.TablesByRestaurant, dinerIDs ...uint64) model.Availability {
	return model.Availability{Diners: 4, DinerIDs: dinerIDs, Datetime: dinnerAt, Tables: tables}
}

func TestSearchMergesProfileWithExtraRestrictions(t *testing.T) {
	tables := &fakeTables{found: model.TablesByRestaurant{1: {3}}}
	svc, _, _ := newService(t, tables, nil)
	profiles := &fakeProfiles{mask: 4}
	svc.Diners = profiles

	got, err := svc.Search(context.Background(), SearchQuery{
		Diners:              3,
		DinerIDs:            []uint64{1, 2},
		ExtraRestrictionIDs: []int{1},
		Datetime:            dinnerAt,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !reflect.DeepEqual(got, tables.found) {
		t.Fatalf("got %v", got)
	}
	if !reflect.DeepEqual(profiles.got, []uint64{1, 2}) {
		t.Fatalf("profile looked up for %v", profiles.got)
	}
	s := tables.searches[0]
	if s.Capacity != 3 || s.Restrictions == nil || *s.Restrictions != 5 || s.RestaurantID != 0 {
		t.Fatalf("unexpected search %+v", s)
	}
}

func TestSearchRejectsPastAndOutOfRange(t *testing.T) {
	svc, _, _ := newService(t, &fakeTables{}, nil)
	_, err := svc.Search(context.Background(), SearchQuery{Diners: 1, DinerIDs: []uint64{1}, Datetime: testNow})
	if !errors.Is(err, ErrDateInPast) {
		t.Fatalf("now: got %v, want ErrDateInPast", err)
	}
	_, err = svc.Search(context.Background(), SearchQuery{Diners: 1, DinerIDs: []uint64{1}, ExtraRestrictionIDs: []int{65}, Datetime: dinnerAt})
	if !IsValidation(err) {
		t.Fatalf("out-of-range restriction should be a validation error, got %v", err)
	}
}

func TestSearchPropagatesUnknownDiners(t *testing.T) {
	svc, _, _ := newService(t, &fakeTables{}, nil)
	svc.Diners = &fakeProfiles{err: &repository.UnknownDinersError{DinerIDs: []uint64{9}}}
	_, err := svc.Search(context.Background(), SearchQuery{Diners: 1, DinerIDs: []uint64{9}, Datetime: dinnerAt})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReservePreconditions(t *testing.T) {
	svc, mock, _ := newService(t, &fakeTables{}, nil)

	past := snapshot(model.TablesByRestaurant{1: {3}}, 1)
	past.Datetime = testNow.Add(-time.Minute)
	if _, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: past}); !errors.Is(err, ErrDateInPast) {
		t.Fatalf("got %v, want ErrDateInPast", err)
	}
	if _, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 2, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1)}); !errors.Is(err, ErrInvalidRestaurantID) {
		t.Fatalf("got %v, want ErrInvalidRestaurantID", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no transaction expected: %v", err)
	}
}

func TestReserveFirstCandidateSucceeds(t *testing.T) {
	tables := &fakeTables{created: []uint64{42}, attached: -1}
	svc, mock, pub := newService(t, tables, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	id, err := svc.Reserve(context.Background(), ReserveRequest{
		CallerID:     1,
		RestaurantID: 1,
		Snapshot:     snapshot(model.TablesByRestaurant{1: {3, 5}, 2: {8}}, 1, 2, 1),
	})
	if err != nil || id != 42 {
		t.Fatalf("reserve: id=%d err=%v", id, err)
	}
	if len(tables.creates) != 1 || !reflect.DeepEqual(tables.creates[0].tableIDs, []uint64{3, 5}) || tables.creates[0].capacity != 4 {
		t.Fatalf("unexpected create calls %+v", tables.creates)
	}
	if len(tables.searches) != 0 {
		t.Fatalf("no re-check expected, got %+v", tables.searches)
	}
	if len(pub.events) != 1 || pub.events[0].Type != queue.EventConfirmed || pub.events[0].ReservationID != 42 {
		t.Fatalf("unexpected events %+v", pub.events)
	}
	if !reflect.DeepEqual(pub.events[0].DinerIDs, []uint64{1, 2}) {
		t.Fatalf("event diners = %v", pub.events[0].DinerIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveRetriesOnceWithFreshCandidates(t *testing.T) {
	// snapshot offered table 3 which another caller took; table 5 is still free
	tables := &fakeTables{
		created:   []uint64{0, 77},
		attached:  -1,
		refreshed: model.TablesByRestaurant{1: {5}},
	}
	svc, mock, _ := newService(t, tables, nil)
	mock.ExpectBegin()
	mock.ExpectCommit()

	id, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1)})
	if err != nil || id != 77 {
		t.Fatalf("reserve: id=%d err=%v", id, err)
	}
	if len(tables.creates) != 2 || !reflect.DeepEqual(tables.creates[1].tableIDs, []uint64{5}) {
		t.Fatalf("unexpected create calls %+v", tables.creates)
	}
	s := tables.searches[0]
	if s.RestaurantID != 1 || s.Restrictions != nil || s.Capacity != 4 {
		t.Fatalf("re-check must be narrowed to the restaurant, got %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveNoTableAfterRetry(t *testing.T) {
	tables := &fakeTables{attached: -1, refreshed: model.TablesByRestaurant{}}
	svc, mock, pub := newService(t, tables, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1)})
	if !errors.Is(err, ErrNoTableAvailable) || !IsConflict(err) {
		t.Fatalf("got %v, want ErrNoTableAvailable", err)
	}
	if len(tables.creates) != 1 {
		t.Fatalf("empty re-check must not attempt another create, got %d", len(tables.creates))
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %+v", pub.events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveCompensatesWhenDinerIsBusy(t *testing.T) {
	tables := &fakeTables{created: []uint64{42}, attached: 1, conflicting: []uint64{2}, forceFound: true}
	svc, mock, pub := newService(t, tables, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1, 2)})
	if !errors.Is(err, ErrNotAllDinersAvailable) {
		t.Fatalf("got %v, want ErrNotAllDinersAvailable", err)
	}
	var busy *DinersUnavailableError
	if !errors.As(err, &busy) || !reflect.DeepEqual(busy.DinerIDs, []uint64{2}) {
		t.Fatalf("expected diner 2 reported, got %v", err)
	}
	if !reflect.DeepEqual(tables.forceDeleted, []uint64{42}) {
		t.Fatalf("reservation not compensated: %v", tables.forceDeleted)
	}
	if len(tables.creates) != 1 {
		t.Fatalf("diner conflicts are not retried, got %d creates", len(tables.creates))
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %+v", pub.events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserveLogsMissingCompensationRow(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tables := &fakeTables{created: []uint64{42}, attached: 0, conflictingErr: errors.New("boom"), forceFound: false}
	svc, mock, _ := newService(t, tables, zap.New(core))
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1)})
	var busy *DinersUnavailableError
	if !errors.As(err, &busy) || len(busy.DinerIDs) != 0 {
		t.Fatalf("got %v, want DinersUnavailableError without ids", err)
	}
	if logs.FilterMessage("compensation found no reservation to delete").Len() != 1 {
		t.Fatalf("expected a warning for the missing row, got %v", logs.All())
	}
	if logs.FilterMessage("could not determine conflicting diners").Len() != 1 {
		t.Fatalf("expected a warning for the failed lookup, got %v", logs.All())
	}
}

func TestReserveRollsBackOnStorageFailureAfterCreate(t *testing.T) {
	// in the attach case reservation 42 already exists inside the transaction
	cases := map[string]*fakeTables{
		"attach":   {created: []uint64{42}, attachErr: errors.New("connection reset")},
		"re-check": {refreshErr: errors.New("connection reset")},
	}
	for name, tables := range cases {
		svc, mock, pub := newService(t, tables, nil)
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1, 2)})
		if err == nil || IsConflict(err) || IsValidation(err) {
			t.Fatalf("%s: got %v, want a plain storage error", name, err)
		}
		if len(pub.events) != 0 {
			t.Fatalf("%s: no event expected, got %+v", name, pub.events)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("%s: transaction must roll back without commit: %v", name, err)
		}
	}
}

func TestReserveMapsLockContentionToConflicts(t *testing.T) {
	lost := fmt.Errorf("create reservation: %w", repository.ErrContention)

	tables := &fakeTables{createErr: lost}
	svc, mock, pub := newService(t, tables, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1)})
	if !errors.Is(err, ErrNoTableAvailable) {
		t.Fatalf("create: got %v, want ErrNoTableAvailable", err)
	}
	if len(tables.creates) != 1 || len(tables.searches) != 0 {
		t.Fatalf("aborted transaction must not be reused: creates=%d searches=%d", len(tables.creates), len(tables.searches))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	tables = &fakeTables{created: []uint64{42}, attachErr: fmt.Errorf("attach diners: %w", repository.ErrContention)}
	svc, mock, pub = newService(t, tables, nil)
	mock.ExpectBegin()
	mock.ExpectRollback()
	_, err = svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1, 2)})
	var busy *DinersUnavailableError
	if !errors.As(err, &busy) || !errors.Is(err, ErrNotAllDinersAvailable) || busy.DinerIDs == nil {
		t.Fatalf("attach: got %v, want DinersUnavailableError", err)
	}
	if len(tables.forceDeleted) != 0 {
		t.Fatalf("no compensation on an aborted transaction, got %v", tables.forceDeleted)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %+v", pub.events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReservePublishFailureIsNotFatal(t *testing.T) {
	tables := &fakeTables{created: []uint64{42}, attached: -1}
	svc, mock, pub := newService(t, tables, nil)
	pub.err = errors.New("broker down")
	mock.ExpectBegin()
	mock.ExpectCommit()

	if _, err := svc.Reserve(context.Background(), ReserveRequest{CallerID: 1, RestaurantID: 1, Snapshot: snapshot(model.TablesByRestaurant{1: {3}}, 1)}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
}

func TestCancel(t *testing.T) {
	tables := &fakeTables{deleteResult: true}
	svc, _, pub := newService(t, tables, nil)

	ok, err := svc.Cancel(context.Background(), CancelRequest{CallerID: 1, ReservationID: 42})
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != queue.EventCancelled || pub.events[0].ActorID != 1 {
		t.Fatalf("unexpected events %+v", pub.events)
	}

	tables.deleteResult = false
	ok, err = svc.Cancel(context.Background(), CancelRequest{CallerID: 1, ReservationID: 42})
	if err != nil || ok {
		t.Fatalf("second cancel: ok=%v err=%v", ok, err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("no event expected for a no-op cancel")
	}
}

func TestUpcoming(t *testing.T) {
	want := []model.Reservation{{ID: 4, RestaurantID: 1, TableID: 7, Capacity: 2, Datetime: dinnerAt}}
	svc, _, _ := newService(t, &fakeTables{upcoming: want}, nil)
	got, err := svc.Upcoming(context.Background(), 1)
	if err != nil || !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, %v", got, err)
	}
}

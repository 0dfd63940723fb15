package reserve

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/tiskarna/internal/db"
	"github.com/erazemk/tiskarna/internal/model"
	"github.com/erazemk/tiskarna/internal/store"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parsing decimal %q: %v", s, err)
	}
	return d
}

// newTestMaterial creates a material with the given on-hand stock.
func newTestMaterial(t *testing.T, database *sql.DB, onHand string) int64 {
	t.Helper()
	ctx := context.Background()

	m, err := store.CreateMaterial(ctx, database, "A4 paper", "sheets", decimal.Zero, "")
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}

	qty := dec(t, onHand)
	if qty.IsPositive() {
		if _, err := store.AddStock(ctx, database, m.ID, qty); err != nil {
			t.Fatalf("AddStock: %v", err)
		}
	}
	return m.ID
}

func mustCreate(t *testing.T, e *Engine, materialID int64, qty string) *model.Reservation {
	t.Helper()
	r, err := e.Create(context.Background(), CreateRequest{
		MaterialID: materialID,
		Quantity:   dec(t, qty),
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", qty, err)
	}
	return r
}

func mustAvailable(t *testing.T, e *Engine, materialID int64) decimal.Decimal {
	t.Helper()
	available, err := e.AvailableQuantity(context.Background(), materialID)
	if err != nil {
		t.Fatalf("AvailableQuantity: %v", err)
	}
	return available
}

func TestCreateReservation(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")

	r, err := e.Create(context.Background(), CreateRequest{
		MaterialID: materialID,
		Quantity:   dec(t, "12.5"),
		OrderID:    "order-42",
		ReservedBy: "alice",
		Notes:      "rush job",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if r.ID == "" {
		t.Error("expected non-empty reservation id")
	}
	if r.Status != model.ReservationActive {
		t.Errorf("expected status active, got %q", r.Status)
	}
	if !r.QuantityReserved.Equal(dec(t, "12.5")) {
		t.Errorf("expected quantity 12.5, got %s", r.QuantityReserved)
	}

	// Round-trip through the store.
	got, err := e.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OrderID != "order-42" || got.ReservedBy != "alice" || got.Notes != "rush job" {
		t.Errorf("unexpected round-trip: %+v", got)
	}

	if available := mustAvailable(t, e, materialID); !available.Equal(dec(t, "87.5")) {
		t.Errorf("expected availability 87.5, got %s", available)
	}
}

func TestCreateValidation(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "10")
	ctx := context.Background()

	_, err := e.Create(ctx, CreateRequest{MaterialID: materialID, Quantity: decimal.Zero})
	if !errors.Is(err, model.ErrInvalidQuantity) {
		t.Errorf("zero quantity: expected ErrInvalidQuantity, got %v", err)
	}

	_, err = e.Create(ctx, CreateRequest{MaterialID: materialID, Quantity: dec(t, "-1")})
	if !errors.Is(err, model.ErrInvalidQuantity) {
		t.Errorf("negative quantity: expected ErrInvalidQuantity, got %v", err)
	}

	past := time.Now().Add(-time.Minute)
	_, err = e.Create(ctx, CreateRequest{MaterialID: materialID, Quantity: dec(t, "1"), ExpiresAt: &past})
	if !errors.Is(err, model.ErrInvalidExpiry) {
		t.Errorf("past expiry: expected ErrInvalidExpiry, got %v", err)
	}

	_, err = e.Create(ctx, CreateRequest{MaterialID: 9999, Quantity: dec(t, "1")})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown material: expected ErrNotFound, got %v", err)
	}
}

// Reserve 60 of 100, fail to reserve another 50, cancel, then succeed.
func TestReserveCancelReserve(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r1 := mustCreate(t, e, materialID, "60")

	_, err := e.Create(ctx, CreateRequest{MaterialID: materialID, Quantity: dec(t, "50")})
	var insufficient *model.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !insufficient.Available.Equal(dec(t, "40")) {
		t.Errorf("expected available 40 in error, got %s", insufficient.Available)
	}
	if !insufficient.Requested.Equal(dec(t, "50")) {
		t.Errorf("expected requested 50 in error, got %s", insufficient.Requested)
	}

	if err := e.Cancel(ctx, r1.ID, "customer withdrew"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	mustCreate(t, e, materialID, "50")
}

// Fulfill a reservation covering the whole stock, then fail to reserve more.
func TestFulfillToZero(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "20")
	ctx := context.Background()

	r := mustCreate(t, e, materialID, "20")
	if err := e.Fulfill(ctx, r.ID); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}

	onHand, err := store.GetOnHand(ctx, database, materialID)
	if err != nil {
		t.Fatalf("GetOnHand: %v", err)
	}
	if !onHand.IsZero() {
		t.Errorf("expected on-hand 0 after fulfillment, got %s", onHand)
	}

	_, err = e.Create(ctx, CreateRequest{MaterialID: materialID, Quantity: dec(t, "1")})
	var insufficient *model.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !insufficient.Available.IsZero() {
		t.Errorf("expected available 0, got %s", insufficient.Available)
	}
}

func TestFulfillDecrementsExactlyOnce(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r := mustCreate(t, e, materialID, "30")
	if err := e.Fulfill(ctx, r.ID); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}

	got, _ := e.Get(ctx, r.ID)
	if got.Status != model.ReservationFulfilled {
		t.Errorf("expected status fulfilled, got %q", got.Status)
	}

	// Second fulfillment must fail and must not double-decrement.
	if err := e.Fulfill(ctx, r.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on double fulfill, got %v", err)
	}

	onHand, _ := store.GetOnHand(ctx, database, materialID)
	if !onHand.Equal(dec(t, "70")) {
		t.Errorf("expected on-hand 70, got %s", onHand)
	}
}

func TestFulfillErrors(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	ctx := context.Background()

	if err := e.Fulfill(ctx, "no-such-id"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateQuantity(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r := mustCreate(t, e, materialID, "60")

	// Increase to the full on-hand: the reservation's own hold does not count
	// against it.
	full := dec(t, "100")
	updated, err := e.Update(ctx, r.ID, UpdateRequest{Quantity: &full})
	if err != nil {
		t.Fatalf("Update to 100: %v", err)
	}
	if !updated.QuantityReserved.Equal(full) {
		t.Errorf("expected quantity 100, got %s", updated.QuantityReserved)
	}

	// One past on-hand must fail, reporting the headroom.
	over := dec(t, "101")
	_, err = e.Update(ctx, r.ID, UpdateRequest{Quantity: &over})
	var insufficient *model.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !insufficient.Available.Equal(dec(t, "100")) {
		t.Errorf("expected headroom 100 in error, got %s", insufficient.Available)
	}

	// Decrease frees availability.
	small := dec(t, "10")
	if _, err := e.Update(ctx, r.ID, UpdateRequest{Quantity: &small}); err != nil {
		t.Fatalf("Update to 10: %v", err)
	}
	if available := mustAvailable(t, e, materialID); !available.Equal(dec(t, "90")) {
		t.Errorf("expected availability 90, got %s", available)
	}
}

func TestUpdateValidation(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r := mustCreate(t, e, materialID, "10")

	zero := decimal.Zero
	if _, err := e.Update(ctx, r.ID, UpdateRequest{Quantity: &zero}); !errors.Is(err, model.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}

	past := time.Now().Add(-time.Hour)
	if _, err := e.Update(ctx, r.ID, UpdateRequest{ExpiresAt: &past}); !errors.Is(err, model.ErrInvalidExpiry) {
		t.Errorf("expected ErrInvalidExpiry, got %v", err)
	}

	// Quantity is validated before expiry when both are invalid.
	neg := dec(t, "-5")
	if _, err := e.Update(ctx, r.ID, UpdateRequest{Quantity: &neg, ExpiresAt: &past}); !errors.Is(err, model.ErrInvalidQuantity) {
		t.Errorf("expected quantity validation to win, got %v", err)
	}

	if _, err := e.Update(ctx, "no-such-id", UpdateRequest{}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	notes := "updated note"
	updated, err := e.Update(ctx, r.ID, UpdateRequest{Notes: &notes})
	if err != nil {
		t.Fatalf("Update notes: %v", err)
	}
	if updated.Notes != "updated note" {
		t.Errorf("expected notes updated, got %q", updated.Notes)
	}
}

func TestCancelIdempotency(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r := mustCreate(t, e, materialID, "25")

	if err := e.Cancel(ctx, r.ID, "duplicate order"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := e.Get(ctx, r.ID)
	if got.Status != model.ReservationCancelled {
		t.Errorf("expected status cancelled, got %q", got.Status)
	}
	if got.Notes != "duplicate order" {
		t.Errorf("expected reason in notes, got %q", got.Notes)
	}

	// Cancelling an already-cancelled reservation is a no-op success.
	if err := e.Cancel(ctx, r.ID, "again"); err != nil {
		t.Errorf("expected no-op cancel, got %v", err)
	}

	if err := e.Cancel(ctx, "no-such-id", ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Availability is fully released.
	if available := mustAvailable(t, e, materialID); !available.Equal(dec(t, "100")) {
		t.Errorf("expected availability back to 100, got %s", available)
	}
}

// Once a reservation reaches any terminal state, every further operation
// fails (except the cancel-on-cancelled no-op).
func TestTerminalStatesAreFinal(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	fulfilled := mustCreate(t, e, materialID, "10")
	if err := e.Fulfill(ctx, fulfilled.ID); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}

	expired, err := e.Create(ctx, CreateRequest{
		MaterialID: materialID,
		Quantity:   dec(t, "10"),
		ExpiresAt:  timePtr(time.Now().Add(60 * time.Millisecond)),
	})
	if err != nil {
		t.Fatalf("Create with expiry: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := e.SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}

	qty := dec(t, "5")
	for _, id := range []string{fulfilled.ID, expired.ID} {
		if _, err := e.Update(ctx, id, UpdateRequest{Quantity: &qty}); !errors.Is(err, model.ErrInvalidState) {
			t.Errorf("update %s: expected ErrInvalidState, got %v", id, err)
		}
		if err := e.Fulfill(ctx, id); !errors.Is(err, model.ErrInvalidState) {
			t.Errorf("fulfill %s: expected ErrInvalidState, got %v", id, err)
		}
		if err := e.Cancel(ctx, id, ""); !errors.Is(err, model.ErrInvalidState) {
			t.Errorf("cancel %s: expected ErrInvalidState, got %v", id, err)
		}
	}
}

// A reservation past its expiry still counts against availability until the
// sweeper runs; the sweep releases it.
func TestExpiryReleasesHold(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r, err := e.Create(ctx, CreateRequest{
		MaterialID: materialID,
		Quantity:   dec(t, "10"),
		ExpiresAt:  timePtr(time.Now().Add(60 * time.Millisecond)),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	// Pessimistic availability: not yet swept, still held.
	if available := mustAvailable(t, e, materialID); !available.Equal(dec(t, "90")) {
		t.Errorf("expected availability 90 before sweep, got %s", available)
	}

	count, err := e.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 expired, got %d", count)
	}

	got, _ := e.Get(ctx, r.ID)
	if got.Status != model.ReservationExpired {
		t.Errorf("expected status expired, got %q", got.Status)
	}

	if available := mustAvailable(t, e, materialID); !available.Equal(dec(t, "100")) {
		t.Errorf("expected availability back to 100 after sweep, got %s", available)
	}
}

func TestSweepIdempotence(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	// One due, one never-expiring, one cancelled before the sweep.
	_, err := e.Create(ctx, CreateRequest{
		MaterialID: materialID,
		Quantity:   dec(t, "10"),
		ExpiresAt:  timePtr(time.Now().Add(60 * time.Millisecond)),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	forever := mustCreate(t, e, materialID, "10")
	cancelled, err := e.Create(ctx, CreateRequest{
		MaterialID: materialID,
		Quantity:   dec(t, "10"),
		ExpiresAt:  timePtr(time.Now().Add(60 * time.Millisecond)),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Cancel(ctx, cancelled.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	count, err := e.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 expired on first sweep, got %d", count)
	}

	count, err = e.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 expired on second sweep, got %d", count)
	}

	// The cancelled reservation stays cancelled, never expired.
	got, _ := e.Get(ctx, cancelled.ID)
	if got.Status != model.ReservationCancelled {
		t.Errorf("expected cancelled to stay cancelled, got %q", got.Status)
	}
	got, _ = e.Get(ctx, forever.ID)
	if got.Status != model.ReservationActive {
		t.Errorf("expected never-expiring reservation to stay active, got %q", got.Status)
	}
}

// N concurrent creates, each for the full stock: exactly one may win.
func TestConcurrentCreateNoOversell(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "10")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Create(ctx, CreateRequest{
				MaterialID: materialID,
				Quantity:   dec(t, "10"),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *model.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Errorf("expected InsufficientStockError, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 successful create, got %d", succeeded)
	}

	if available := mustAvailable(t, e, materialID); available.IsNegative() {
		t.Errorf("availability went negative: %s", available)
	}
}

func TestConcurrentCreatePartialFills(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "10")
	ctx := context.Background()

	// 8 workers each requesting 2 against on-hand 10: exactly 5 fit.
	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Create(ctx, CreateRequest{
				MaterialID: materialID,
				Quantity:   dec(t, "2"),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 5 {
		t.Errorf("expected exactly 5 successful creates, got %d", succeeded)
	}
	if available := mustAvailable(t, e, materialID); !available.IsZero() {
		t.Errorf("expected availability 0, got %s", available)
	}
}

func TestListFilters(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	m1 := newTestMaterial(t, database, "100")
	m2 := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r1 := mustCreate(t, e, m1, "10")
	mustCreate(t, e, m1, "20")
	mustCreate(t, e, m2, "30")
	if err := e.Cancel(ctx, r1.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	all, err := e.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 reservations, got %d", len(all))
	}

	byMaterial, _ := e.List(ctx, Filter{MaterialID: m1})
	if len(byMaterial) != 2 {
		t.Errorf("expected 2 reservations for material 1, got %d", len(byMaterial))
	}

	active, _ := e.List(ctx, Filter{Status: model.ReservationActive})
	if len(active) != 2 {
		t.Errorf("expected 2 active reservations, got %d", len(active))
	}

	cancelledForM1, _ := e.List(ctx, Filter{MaterialID: m1, Status: model.ReservationCancelled})
	if len(cancelledForM1) != 1 {
		t.Errorf("expected 1 cancelled reservation for material 1, got %d", len(cancelledForM1))
	}

	if _, err := e.List(ctx, Filter{Status: model.ReservationStatus("bogus")}); err == nil {
		t.Error("expected error for unknown status filter")
	}
}

func TestGetNotFound(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)

	if _, err := e.Get(context.Background(), "no-such-id"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAvailabilityUnknownMaterial(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)

	if _, err := e.AvailableQuantity(context.Background(), 404); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// recordingNotifier captures availability notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []decimal.Decimal
}

func (n *recordingNotifier) AvailabilityChanged(materialID int64, available decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, available)
}

func TestNotifierReceivesAvailability(t *testing.T) {
	database := db.NewTestDB(t)
	notifier := &recordingNotifier{}
	e := New(database, notifier)
	materialID := newTestMaterial(t, database, "100")
	ctx := context.Background()

	r := mustCreate(t, e, materialID, "40")

	notifier.mu.Lock()
	if len(notifier.calls) != 1 || !notifier.calls[0].Equal(dec(t, "60")) {
		t.Errorf("expected one notification with availability 60, got %v", notifier.calls)
	}
	notifier.mu.Unlock()

	if err := e.Cancel(ctx, r.ID, ""); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	notifier.mu.Lock()
	if len(notifier.calls) != 2 || !notifier.calls[1].Equal(dec(t, "100")) {
		t.Errorf("expected second notification with availability 100, got %v", notifier.calls)
	}
	notifier.mu.Unlock()

	// Fulfillment leaves availability unchanged and emits nothing.
	r2 := mustCreate(t, e, materialID, "10")
	notifier.mu.Lock()
	calls := len(notifier.calls)
	notifier.mu.Unlock()

	if err := e.Fulfill(ctx, r2.ID); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	notifier.mu.Lock()
	if len(notifier.calls) != calls {
		t.Errorf("expected no notification on fulfill, got %v", notifier.calls)
	}
	notifier.mu.Unlock()
}

func timePtr(t time.Time) *time.Time { return &t }

// A long random mix of operations must never drive availability negative:
// the sum of active holds stays within on-hand stock no matter the order of
// creates, cancels, fulfillments, updates, and sweeps.
func TestRandomizedOperationsKeepInvariant(t *testing.T) {
	database := db.NewTestDB(t)
	e := New(database, nil)
	materialID := newTestMaterial(t, database, "50")
	ctx := context.Background()

	rng := rand.New(rand.NewSource(1))
	var ids []string

	tolerable := func(err error) bool {
		var insufficient *model.InsufficientStockError
		return errors.As(err, &insufficient) || errors.Is(err, model.ErrInvalidState)
	}

	for i := 0; i < 200; i++ {
		switch op := rng.Intn(100); {
		case op < 50:
			req := CreateRequest{
				MaterialID: materialID,
				Quantity:   decimal.NewFromInt(int64(1 + rng.Intn(8))),
			}
			if rng.Intn(4) == 0 {
				req.ExpiresAt = timePtr(time.Now().Add(time.Duration(1+rng.Intn(20)) * time.Millisecond))
			}
			r, err := e.Create(ctx, req)
			if err == nil {
				ids = append(ids, r.ID)
			} else if !tolerable(err) {
				t.Fatalf("op %d create: %v", i, err)
			}
		case op < 70 && len(ids) > 0:
			id := ids[rng.Intn(len(ids))]
			if err := e.Cancel(ctx, id, ""); err != nil && !tolerable(err) {
				t.Fatalf("op %d cancel: %v", i, err)
			}
		case op < 85 && len(ids) > 0:
			id := ids[rng.Intn(len(ids))]
			if err := e.Fulfill(ctx, id); err != nil && !tolerable(err) {
				t.Fatalf("op %d fulfill: %v", i, err)
			}
		case op < 95 && len(ids) > 0:
			id := ids[rng.Intn(len(ids))]
			qty := decimal.NewFromInt(int64(1 + rng.Intn(8)))
			if _, err := e.Update(ctx, id, UpdateRequest{Quantity: &qty}); err != nil && !tolerable(err) {
				t.Fatalf("op %d update: %v", i, err)
			}
		default:
			if _, err := e.SweepExpired(ctx); err != nil {
				t.Fatalf("op %d sweep: %v", i, err)
			}
		}

		available := mustAvailable(t, e, materialID)
		if available.IsNegative() {
			t.Fatalf("op %d: availability went negative: %s", i, available)
		}
	}
}

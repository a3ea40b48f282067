package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"monositi/internal/database"
	"monositi/internal/events"
	"monositi/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	index := newFakeIndex()
	worker := NewIndexWorker(db, index, nil, Backoff{}, 0, nil)
	listing := seedListing(t, db)

	ctx := context.Background()
	if err := worker.EnqueueListing(ctx, listing.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if got := index.get(listing.ID); got == nil || got.City != "Indore" {
		t.Fatalf("expected listing indexed, got %+v", got)
	}
}

func TestProcessTaskIndexesCurrentState(t *testing.T) {
	db := newTestDB(t)
	index := newFakeIndex()
	worker := NewIndexWorker(db, index, nil, Backoff{}, 0, nil)
	listing := seedListing(t, db)
	ctx := context.Background()

	if err := worker.EnqueueListing(ctx, listing.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	listing.Status = models.ListingSold
	if err := db.UpdateListing(ctx, listing); err != nil {
		t.Fatalf("update listing: %v", err)
	}

	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	if got := index.get(listing.ID); got == nil || got.Status != models.ListingSold {
		t.Fatalf("expected index to carry the stored status, got %+v", got)
	}
}

func TestProcessTaskMissingListingDeletes(t *testing.T) {
	db := newTestDB(t)
	index := newFakeIndex()
	index.docs[404] = &models.Listing{ID: 404}
	worker := NewIndexWorker(db, index, nil, Backoff{}, 0, nil)

	ctx := context.Background()
	if err := worker.EnqueueListing(ctx, 404); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	if index.get(404) != nil {
		t.Fatalf("expected stale index entry removed")
	}
	if index.deleteCalls != 1 {
		t.Fatalf("expected 1 delete call, got %d", index.deleteCalls)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	index := newFakeIndex()
	index.err = errors.New("boom")
	worker := NewIndexWorker(db, index, nil, Backoff{Attempts: 3, Base: time.Second}, 0, nil)
	listing := seedListing(t, db)

	ctx := context.Background()
	if err := worker.EnqueueListing(ctx, listing.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now().UTC()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// Not due yet, so the poller must not pick it up.
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no due tasks, got %d", len(pending))
	}
}

func TestProcessTaskFailPushesDeadLetter(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	index := newFakeIndex()
	index.err = errors.New("fatal")
	worker := NewIndexWorker(db, index, rdb, Backoff{Attempts: 1}, 0, nil)
	listing := seedListing(t, db)

	ctx := context.Background()
	if err := worker.EnqueueListing(ctx, listing.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := mr.List("index:deadletter")
	if err != nil {
		t.Fatalf("deadletter list: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead))
	}
}

func TestProcessTaskBadPayloadFails(t *testing.T) {
	db := newTestDB(t)
	worker := NewIndexWorker(db, newFakeIndex(), nil, Backoff{}, 0, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskIndexUpsert, EntityID: 1, Payload: "invalid json"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestIndexWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewIndexWorker(db, newFakeIndex(), nil, Backoff{}, 0, nil)
	ctx := context.Background()

	t.Run("InvalidTaskType", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, "", 1, ""); err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("InvalidListingID", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, TaskIndexUpsert, 0, ""); err == nil {
			t.Fatalf("expected error for missing listing id")
		}
	})

	t.Run("UnknownTypeFailsOnProcess", func(t *testing.T) {
		if err := worker.handleIndexTask(ctx, "reindex_all", indexTaskPayload{ListingID: 1}); err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestIndexWorker_AttachEnqueuesListingEvents(t *testing.T) {
	db := newTestDB(t)
	worker := NewIndexWorker(db, newFakeIndex(), nil, Backoff{}, 0, nil)
	bus := events.NewEventBus()
	worker.Attach(bus)

	if err := bus.PublishJSON(events.EventListingStatusChanged, events.ListingEventPayload{ListingID: 7, Status: models.ListingFullHouse}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.PublishJSON(events.EventBookingCreated, events.BookingEventPayload{BookingID: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected listing event to be queued")
	}
	if task.EntityID != 7 || task.TaskType != TaskIndexUpsert {
		t.Fatalf("unexpected task: %+v", task)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("booking events must not be queued")
	}
}

func TestIndexWorker_StartDrainsPending(t *testing.T) {
	db := newTestDB(t)
	index := newFakeIndex()
	worker := NewIndexWorker(db, index, nil, Backoff{}, 10*time.Millisecond, nil)
	listing := seedListing(t, db)

	// Persisted but never handed to a queue, as after a restart.
	payload := `{"listing_id":` + strconv.FormatInt(listing.ID, 10) + `}`
	task := models.SyncTask{TaskType: TaskIndexUpsert, EntityID: listing.ID, Payload: payload}
	if err := db.CreateSyncTask(context.Background(), &task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for index.get(listing.ID) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if index.get(listing.ID) == nil {
		t.Fatalf("expected poller to index the listing")
	}
}

func TestIndexWorker_Reconcile(t *testing.T) {
	db := newTestDB(t)
	index := newFakeIndex()
	worker := NewIndexWorker(db, index, nil, Backoff{}, 0, nil)
	a := seedListing(t, db)
	b := seedListing(t, db)

	if err := worker.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if index.get(a.ID) == nil || index.get(b.ID) == nil {
		t.Fatalf("expected both listings indexed")
	}

	index.err = errors.New("index down")
	if err := worker.Reconcile(context.Background()); err == nil {
		t.Fatalf("expected reconcile to report index failures")
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Multiplier: 2, Ceiling: 5 * time.Second}
	cases := map[int]time.Duration{0: time.Second, 1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 5: 5 * time.Second, 200: 5 * time.Second}
	for attempt, want := range cases {
		if got := b.Delay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := Backoff{}.normalize()
	if b.Attempts != 5 || b.Base != 2*time.Second || b.Ceiling != time.Minute || b.Multiplier != 2 {
		t.Fatalf("unexpected defaults: %+v", b)
	}
	if (Backoff{}).Exhausted(4) || !(Backoff{}).Exhausted(5) {
		t.Fatalf("expected the default backoff to give up on the fifth failure")
	}
}

func TestSchedulerRegister(t *testing.T) {
	s := NewScheduler(context.Background(), time.Second, nil)
	if err := s.Register("reconcile", "@every 30m", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register("broken", "not a cron spec", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
	if s.Jobs() != 1 {
		t.Fatalf("expected 1 job, got %d", s.Jobs())
	}

	var calls int
	s.run("direct", func(ctx context.Context) error {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected job context to carry a deadline")
		}
		return errors.New("logged, not fatal")
	})
	if calls != 1 {
		t.Fatalf("expected job to run once, got %d", calls)
	}
}

// Helpers

type fakeIndex struct {
	mu          sync.Mutex
	err         error
	docs        map[int64]*models.Listing
	deleteCalls int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[int64]*models.Listing)}
}

func (f *fakeIndex) get(id int64) *models.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func (f *fakeIndex) UpsertListing(_ context.Context, l *models.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs[l.ID] = l
	return nil
}

func (f *fakeIndex) DeleteListing(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.err != nil {
		return f.err
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeIndex) NearbyListingIDs(context.Context, float64, float64, float64) ([]int64, error) {
	return nil, f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var seeded int

func seedListing(t *testing.T, db *database.DB) *models.Listing {
	t.Helper()
	ctx := context.Background()
	seeded++
	owner := &models.User{Phone: "+9198000" + strconv.Itoa(10000+seeded), Role: models.RoleOwner}
	if err := db.CreateUser(ctx, owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	listing := &models.Listing{
		OwnerID:            owner.ID,
		Kind:               models.KindProperty,
		Title:              "Two bedroom flat",
		City:               "Indore",
		Latitude:           22.7196,
		Longitude:          75.8577,
		Price:              15000,
		Status:             models.ListingActive,
		VerificationStatus: models.VerificationVerified,
	}
	if err := db.CreateListing(ctx, listing); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return listing
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"monositi/internal/database"
	"monositi/internal/domain"
	"monositi/internal/events"
	"monositi/internal/metrics"
	"monositi/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskIndexUpsert = "index_upsert"
	TaskIndexDelete = "index_delete"
)

// indexTaskPayload is persisted in SyncTask.Payload as JSON.
type indexTaskPayload struct {
	ListingID int64  `json:"listing_id"`
	Reason    string `json:"reason,omitempty"`
}

// IndexWorker keeps the geospatial listing index in step with the primary
// store. Tasks are persisted in sync_queue first, so a crash loses nothing:
// anything not delivered through redis or the local channel is picked up by
// the poller.
type IndexWorker struct {
	db            *database.DB
	index         domain.ListingIndex
	redis         *redis.Client
	backoff       Backoff
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        zerolog.Logger
}

func NewIndexWorker(db *database.DB, index domain.ListingIndex, redisClient *redis.Client, backoff Backoff, pollInterval time.Duration, logger *zerolog.Logger) *IndexWorker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "index_worker").Logger()
	}

	return &IndexWorker{
		db:            db,
		index:         index,
		redis:         redisClient,
		backoff:       backoff.normalize(),
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "index:queue",
		deadLetterKey: "index:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        l,
	}
}

// Attach subscribes the worker to listing events so every create, edit,
// verification or status change is re-indexed.
func (w *IndexWorker) Attach(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventListingCreated,
		events.EventListingUpdated,
		events.EventListingVerified,
		events.EventListingStatusChanged,
	} {
		bus.Subscribe(eventType, w.handleListingEvent)
	}
}

func (w *IndexWorker) handleListingEvent(event *events.Event) error {
	var payload events.ListingEventPayload
	if err := event.Decode(&payload); err != nil {
		w.logger.Warn().Err(err).Str("event", event.Type).Msg("Cannot decode listing event")
		return err
	}
	return w.EnqueueTask(context.Background(), TaskIndexUpsert, payload.ListingID, event.Type)
}

// EnqueueListing schedules a re-index of the listing's current state.
func (w *IndexWorker) EnqueueListing(ctx context.Context, listingID int64) error {
	return w.EnqueueTask(ctx, TaskIndexUpsert, listingID, "")
}

// EnqueueTask persists the task and hands it to redis or the in-memory queue.
func (w *IndexWorker) EnqueueTask(ctx context.Context, taskType string, listingID int64, reason string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if listingID <= 0 {
		return errors.New("listing id is required")
	}

	raw, err := json.Marshal(indexTaskPayload{ListingID: listingID, Reason: reason})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType: taskType,
		EntityID: listingID,
		Payload:  string(raw),
		Status:   models.TaskStatusPending,
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, using local queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Debug().Int64("task_id", task.ID).Msg("Local queue full, task left to the poller")
	}
	return nil
}

// Start runs the consume loop until ctx is cancelled.
func (w *IndexWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Index worker started")
	defer w.logger.Info().Msg("Index worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("Fetch pending index tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *IndexWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *IndexWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *IndexWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("Cannot decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *IndexWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleIndexTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark task completed")
	}
	metrics.IncIndexTask(models.TaskStatusCompleted)
}

// handleIndexTask applies the listing's current stored state to the index.
// The payload only names the listing, so replays and reordering converge.
func (w *IndexWorker) handleIndexTask(ctx context.Context, taskType string, payload indexTaskPayload) error {
	if payload.ListingID <= 0 {
		return errors.New("listing id missing")
	}

	switch taskType {
	case TaskIndexUpsert:
		listing, err := w.db.GetListing(ctx, payload.ListingID)
		if errors.Is(err, domain.ErrNotFound) {
			return w.index.DeleteListing(ctx, payload.ListingID)
		}
		if err != nil {
			return err
		}
		return w.index.UpsertListing(ctx, listing)
	case TaskIndexDelete:
		return w.index.DeleteListing(ctx, payload.ListingID)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *IndexWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.backoff.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().UTC().Add(w.backoff.Delay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark task for retry")
	}
	metrics.IncIndexTask(models.TaskStatusRetry)
	w.logger.Warn().Err(cause).Int64("listing_id", task.EntityID).Int("attempt", attempt).Time("next_retry_at", next).Msg("Index task failed, retrying")
}

func (w *IndexWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Mark task failed")
	}
	metrics.IncIndexTask(models.TaskStatusFailed)
	w.logger.Error().Err(cause).Int64("listing_id", task.EntityID).Msg("Index task failed permanently")
	w.pushDeadLetter(ctx, task)
}

func (w *IndexWorker) decodePayload(raw string) (indexTaskPayload, error) {
	var payload indexTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *IndexWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *IndexWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Push dead letter")
	}
}

// Reconcile re-indexes every stored listing directly, repairing drift left by
// tasks that ended in the dead-letter queue.
func (w *IndexWorker) Reconcile(ctx context.Context) error {
	listings, err := w.db.AllListings(ctx)
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}

	var errs []error
	for _, listing := range listings {
		if err := w.index.UpsertListing(ctx, listing); err != nil {
			errs = append(errs, err)
		}
	}
	w.logger.Info().Int("listings", len(listings)).Int("failed", len(errs)).Msg("Index reconcile finished")
	return errors.Join(errs...)
}

package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/config"
	"github.com/proctorix/examgate/internal/model"
)

// ActivityWorker consumes persist_activity_queue and inserts behavioral
// observations into activity_events, one at a time. Activity volume is low
// and lossy-tolerant, so no batching.
type ActivityWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewActivityWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ActivityWorker {
	return &ActivityWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "activity_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ActivityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ActivityWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistActivityQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var ev model.ActivityEvent
	if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}

	if err := w.persist(ctx, &ev); err != nil {
		w.log.Error().Err(err).
			Str("session_id", ev.SessionID).
			Int("assignment_id", ev.AssignmentID).
			Msg("Persist failed")
	}
}

func (w *ActivityWorker) persist(ctx context.Context, ev *model.ActivityEvent) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO activity_events (session_id, assignment_id, event_type, event_message, anomaly_score, occurred_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.SessionID, ev.AssignmentID, ev.EventType, ev.EventMessage, ev.AnomalyScore, time.Unix(ev.Timestamp, 0),
	)
	return err
}

// drain empties whatever is still queued during shutdown, bounded to keep
// shutdown prompt.
func (w *ActivityWorker) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for i := 0; i < 500; i++ {
		result, err := w.rdb.LPop(drainCtx, config.WorkerKey.PersistActivityQueue).Result()
		if err != nil {
			return
		}

		var ev model.ActivityEvent
		if err := json.Unmarshal([]byte(result), &ev); err != nil {
			continue
		}
		if err := w.persist(drainCtx, &ev); err != nil {
			return
		}
	}
}

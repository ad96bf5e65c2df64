package worker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/proctorix/examgate/internal/config"
	"github.com/proctorix/examgate/internal/model"
)

// Queue is the producer side of the persistence pipeline: violation and
// activity events are RPUSHed to Redis and drained by the workers, so the
// exam flow never waits on PostgreSQL.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue queues one violation event for batch persistence.
func (q *Queue) Enqueue(ctx context.Context, ev model.ViolationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}

// EnqueueActivity queues one behavioral observation.
func (q *Queue) EnqueueActivity(ctx context.Context, ev model.ActivityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistActivityQueue, data).Err()
}

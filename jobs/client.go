package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// DriftScanDedupe is the window in which repeated drift scan requests collapse
// into the one already queued.
const DriftScanDedupe = time.Minute

// Client enqueues kiosk maintenance tasks.
type Client struct {
	client *asynq.Client
}

// NewClient connects a Client to the queue's redis.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueDriftScan queues an uncached drift scan. A second request inside
// DriftScanDedupe fails with asynq.ErrDuplicateTask.
func (c *Client) EnqueueDriftScan(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewDriftScanTask(true)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Unique(DriftScanDedupe), asynq.MaxRetry(3))
}

// EnqueueReorderDrafts queues reorder draft generation. A zero multiplier
// keeps the worker's configured policy.
func (c *Client) EnqueueReorderDrafts(ctx context.Context, multiplier int64) (*asynq.TaskInfo, error) {
	task, err := NewReorderDraftsTask(multiplier)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

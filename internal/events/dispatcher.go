package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// TriggerOpts carries per-trigger delivery options
type TriggerOpts struct {
	// SleepSeconds delays job visibility, e.g. for the undo window before
	// an email reply is actually sent.
	SleepSeconds int
}

// Dispatcher publishes domain events to the durable job queue. Delivery is
// at-least-once; consumers must be idempotent.
type Dispatcher interface {
	Trigger(ctx context.Context, name Name, payload interface{}, opts *TriggerOpts) error
}

// handlerJobArgs is the job record inserted for each (event, handler) pair
type handlerJobArgs struct {
	Event   string          `json:"event"`
	Handler string          `json:"handler"`
	Payload json.RawMessage `json:"payload"`
}

// Kind routes the job to the downstream worker registered for the handler
func (a handlerJobArgs) Kind() string { return a.Handler }

// riverDispatcher implements Dispatcher on a River insert-only client
type riverDispatcher struct {
	client  *river.Client[pgx.Tx]
	catalog *Catalog
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by River over the given pool.
// The client is insert-only; downstream workers run in separate processes.
func NewDispatcher(pool *pgxpool.Pool, catalog *Catalog, logger *slog.Logger) (Dispatcher, error) {
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}
	return &riverDispatcher{client: client, catalog: catalog, logger: logger}, nil
}

// Trigger validates the payload and enqueues one job per handler mapped to
// the event. The jobs go in as a single batch so either every handler is
// scheduled or none is.
func (d *riverDispatcher) Trigger(ctx context.Context, name Name, payload interface{}, opts *TriggerOpts) error {
	handlers, ok := d.catalog.Handlers(name)
	if !ok {
		return fmt.Errorf("unknown event %q", name)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for event %q: %w", name, err)
	}
	if err := d.catalog.Validate(name, payloadJSON); err != nil {
		return err
	}

	var insertOpts *river.InsertOpts
	if opts != nil && opts.SleepSeconds > 0 {
		insertOpts = &river.InsertOpts{
			ScheduledAt: time.Now().Add(time.Duration(opts.SleepSeconds) * time.Second),
		}
	}

	params := make([]river.InsertManyParams, 0, len(handlers))
	for _, handler := range handlers {
		params = append(params, river.InsertManyParams{
			Args: handlerJobArgs{
				Event:   string(name),
				Handler: handler,
				Payload: payloadJSON,
			},
			InsertOpts: insertOpts,
		})
	}

	results, err := d.client.InsertMany(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to enqueue event %q: %w", name, err)
	}

	if d.logger != nil {
		d.logger.Debug("event triggered",
			slog.String("event", string(name)),
			slog.Int("jobs", len(results)))
	}
	return nil
}

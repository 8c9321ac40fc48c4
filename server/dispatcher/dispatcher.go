// Package dispatcher resolves the subscribers affected by one tracker change
// event and fans the rendered notification out to them, isolating failures
// per recipient.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/itregistry/regrelay/plugin/tracker"
	"github.com/itregistry/regrelay/store"
)

// Gateway is the slice of the tracker client the dispatcher depends on.
type Gateway interface {
	GetIssue(ctx context.Context, key string) (*tracker.Issue, error)
}

// Config holds the dispatcher's collaborators and settings.
type Config struct {
	Store     *store.Store
	Gateway   Gateway
	Messenger Messenger
	Renderer  Renderer
	// DepartmentFieldID is the field id of the department field.
	DepartmentFieldID string
	// DepartmentFilters maps department to its secondary filter field id.
	DepartmentFilters map[string]string
	// MaxParallelSends bounds per-event fan-out concurrency. Defaults to 8.
	MaxParallelSends int64
	Logger           *slog.Logger
}

// Dispatcher processes inbound change events.
type Dispatcher struct {
	store             *store.Store
	gateway           Gateway
	messenger         Messenger
	renderer          Renderer
	departmentFieldID string
	departmentFilters map[string]string
	sendSlots         *semaphore.Weighted
	logger            *slog.Logger
}

// New creates a dispatcher.
func New(config Config) *Dispatcher {
	maxParallel := config.MaxParallelSends
	if maxParallel <= 0 {
		maxParallel = 8
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:             config.Store,
		gateway:           config.Gateway,
		messenger:         config.Messenger,
		renderer:          config.Renderer,
		departmentFieldID: config.DepartmentFieldID,
		departmentFilters: config.DepartmentFilters,
		sendSlots:         semaphore.NewWeighted(maxParallel),
		logger:            logger,
	}
}

// HandleEvent processes one change event: fetch the record, resolve the
// matching subscribers and deliver the notification to each. A fetch failure
// aborts this event only. Delivery failures are logged and skipped; they
// never abort sibling deliveries and are not retried here.
func (d *Dispatcher) HandleEvent(ctx context.Context, key string) error {
	issue, err := d.gateway.GetIssue(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch record %s", key)
	}

	department := tracker.Normalize(issue.Fields[d.departmentFieldID], d.departmentFieldID)

	// When the department carries a secondary filter field and the record
	// has a value for it, only exact filter matches are notified; the
	// department-only lookup is the fallback for everything else. An empty
	// secondary value therefore re-includes department-only subscribers for
	// that event, mirroring the historical behavior.
	fieldID := d.departmentFilters[department]
	value := ""
	if fieldID != "" {
		value = tracker.Normalize(issue.Fields[fieldID], fieldID)
	}

	var subscriberIDs []int64
	if fieldID != "" && value != "" {
		subscriberIDs, err = d.store.SubscribersByDepartmentAndFilter(ctx, department, fieldID, value)
	} else {
		subscriberIDs, err = d.store.SubscribersByDepartment(ctx, department)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to resolve subscribers for %s", key)
	}

	d.logger.Info("change event",
		slog.String("key", key),
		slog.String("department", department),
		slog.String("filter_field", fieldID),
		slog.String("filter_value", value),
		slog.Int("subscribers", len(subscriberIDs)))

	if len(subscriberIDs) == 0 {
		return nil
	}

	text := d.renderer.RenderNotification(issue, department)

	var wg sync.WaitGroup
	for _, subscriberID := range subscriberIDs {
		if err := d.sendSlots.Acquire(ctx, 1); err != nil {
			// Context canceled mid fan-out; remaining sends are dropped.
			d.logger.Warn("fan-out interrupted",
				slog.String("key", key), slog.String("error", err.Error()))
			break
		}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer d.sendSlots.Release(1)
			if err := d.messenger.SendMessage(ctx, id, text); err != nil {
				d.logger.Warn("delivery failed",
					slog.String("key", key),
					slog.Int64("subscriber", id),
					slog.String("error", err.Error()))
			}
		}(subscriberID)
	}
	wg.Wait()
	return nil
}

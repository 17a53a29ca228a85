package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Relay drives the poll -> publish -> update cycle against a Store and a
// Publisher. Multiple relay instances may run against the same table; every
// terminal transition is a conditional update, so concurrent instances race
// safely and the loser's update is a logged no-op.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig

	wake chan struct{}

	pendingMu sync.Mutex
	pendingAt time.Time
}

// NewRelay constructs a Relay with defaults and optional settings.
func NewRelay(store Store, publisher Publisher, opts ...RelayOption) *Relay {
	if store == nil {
		panic("outbox: nil Store")
	}
	if publisher == nil {
		panic("outbox: nil Publisher")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if len(cfg.Topic) > MaxTopicNameLen {
		panic("outbox: " + ErrTopicNameTooLong.Error())
	}

	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
	}
}

// Notify wakes the relay before the next poll interval elapses, e.g. after
// enqueuing a record in the same process. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Publish failures are recorded on the
// record and never stop the loop; storage errors back off at the worker level
// and escalate to an error log once they persist.
func (r *Relay) Run(ctx context.Context) error {
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		busy, err := r.ProcessOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			failures++
			if failures >= r.cfg.EscalateAfter {
				r.cfg.Logger.Error("outbox storage unavailable", "consecutive_failures", failures, "err", err)
			} else {
				r.cfg.Logger.Warn("outbox cycle failed", "err", err)
			}
			if sleepErr := r.sleep(ctx, r.storageDelay(failures), false); sleepErr != nil {
				return nil
			}
		case busy:
			// Backlog: poll again without sleeping.
			failures = 0
		default:
			failures = 0
			r.maybeRecordPending(ctx)
			if sleepErr := r.sleep(ctx, r.cfg.PollInterval, true); sleepErr != nil {
				return nil
			}
		}
	}
}

// ProcessOnce fetches and processes a single batch. It reports whether any
// record was attempted, which callers can use to detect a backlog.
func (r *Relay) ProcessOnce(ctx context.Context) (bool, error) {
	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveCycleDuration(time.Since(start))
	}()

	records, err := r.store.FetchPending(ctx, r.fetchOptions())
	if err != nil {
		return false, fmt.Errorf("outbox fetch failed: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}

	attempted := r.processGroups(ctx, groupByPartitionKey(records))

	return attempted > 0, nil
}

// fetchOptions leaves BackoffBase unset on purpose. Filtering backing-off
// records in the query would hide them from the relay while later records
// sharing their partition key still get fetched and published ahead of them.
// The relay applies the gate itself in processGroup, where it can block the
// whole group.
func (r *Relay) fetchOptions() FetchOptions {
	return FetchOptions{
		BatchSize:  r.cfg.BatchSize,
		MaxRetries: r.cfg.Policy.MaxRetries,
		Now:        r.cfg.Clock.Now(),
	}
}

// groupByPartitionKey splits a CreatedAt-ordered batch into per-key groups,
// preserving order inside each group. Records without a key are independent
// and form singleton groups.
func groupByPartitionKey(records []Record) [][]Record {
	groups := make([][]Record, 0, len(records))
	byKey := make(map[string]int)

	for _, rec := range records {
		key := rec.Key()
		if key == "" {
			groups = append(groups, []Record{rec})

			continue
		}
		idx, ok := byKey[key]
		if !ok {
			byKey[key] = len(groups)
			groups = append(groups, []Record{rec})

			continue
		}
		groups[idx] = append(groups[idx], rec)
	}

	return groups
}

// processGroups runs partition groups concurrently under the parallelism
// bound. Within a group attempts stay strictly sequential. It returns the
// number of publish attempts, so a batch of purely backing-off records does
// not read as a backlog.
func (r *Relay) processGroups(ctx context.Context, groups [][]Record) int {
	sem := make(chan struct{}, r.cfg.Parallelism)
	var wg sync.WaitGroup
	var attempted atomic.Int64

	for _, group := range groups {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(group []Record) {
			defer wg.Done()
			defer func() { <-sem }()
			attempted.Add(int64(r.processGroup(ctx, group)))
		}(group)
	}

	wg.Wait()

	return int(attempted.Load())
}

func (r *Relay) processGroup(ctx context.Context, group []Record) int {
	attempted := 0
	opts := r.fetchOptions()

	for _, rec := range group {
		if ctx.Err() != nil {
			return attempted
		}
		// Eligibility may have changed between fetch and attempt: the record
		// can expire, or another instance can finalize it. Neither blocks the
		// rest of the group.
		if !Eligible(rec, opts) {
			continue
		}
		// A record inside its backoff window blocks the remaining records of
		// its partition key; publishing past it would reorder the key.
		if !backoffElapsed(rec, opts.Now, r.cfg.Policy.BackoffBase) {
			return attempted
		}
		attempted++
		if !r.attempt(ctx, rec) {
			// A failed attempt skips the remaining records of this partition
			// key for the cycle to preserve ordering.
			return attempted
		}
	}

	return attempted
}

// attempt publishes one record and applies the matching state transition.
// It reports whether the group may continue.
func (r *Relay) attempt(ctx context.Context, rec Record) bool {
	topic := r.cfg.TopicResolver(rec)

	pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	err := r.publish(pubCtx, buildMessage(rec, topic))
	cancel()

	if err == nil {
		return r.recordSuccess(ctx, rec, topic)
	}
	if ctx.Err() != nil {
		// Shutdown, not a broker verdict; leave the record untouched.
		return false
	}

	return r.recordFailure(ctx, rec, err)
}

func (r *Relay) publish(ctx context.Context, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrPublishPanic, rec)
		}
	}()

	return r.publisher.Publish(ctx, msg)
}

func buildMessage(rec Record, topic string) Message {
	msg := Message{
		ID:            rec.ID,
		Topic:         topic,
		PartitionKey:  rec.Key(),
		Payload:       rec.Content,
		EventType:     rec.EventType,
		SchemaVersion: rec.SchemaVersion,
	}
	if rec.Metadata != nil {
		msg.Metadata = *rec.Metadata
	}

	return msg
}

func (r *Relay) recordSuccess(ctx context.Context, rec Record, topic string) bool {
	won, err := r.store.MarkProcessed(ctx, Success{
		ID:    rec.ID,
		Topic: topic,
		At:    r.cfg.Clock.Now(),
	})
	if err != nil {
		r.cfg.Logger.Error("outbox mark processed failed", "id", rec.ID, "err", err)

		return false
	}
	if !won {
		r.cfg.Metrics.AddConflicts(1)
		r.cfg.Logger.Debug("outbox record already finalized elsewhere", "id", rec.ID)

		return true
	}

	r.cfg.Metrics.AddPublished(1)
	r.cfg.Logger.Debug("outbox record published", "id", rec.ID, "topic", topic)

	return true
}

func (r *Relay) recordFailure(ctx context.Context, rec Record, pubErr error) bool {
	action := RetryLater
	if r.cfg.Classifier != nil {
		action = r.cfg.Classifier(rec, pubErr)
	}

	outcome, err := r.store.MarkFailed(ctx, FailureReport{
		ID:         rec.ID,
		Err:        pubErr,
		At:         r.cfg.Clock.Now(),
		MaxRetries: r.cfg.Policy.MaxRetries,
		DeadLetter: action == DeadLetter,
	})
	if err != nil {
		r.cfg.Logger.Error("outbox mark failed failed", "id", rec.ID, "err", err)

		return false
	}

	switch {
	case !outcome.Applied:
		r.cfg.Metrics.AddConflicts(1)
		r.cfg.Logger.Debug("outbox record already finalized elsewhere", "id", rec.ID)
	case outcome.Ignored:
		r.cfg.Metrics.AddDeadLettered(1)
		r.cfg.Logger.Warn("outbox record dead-lettered",
			"id", rec.ID, "retry_count", outcome.RetryCount, "err", pubErr)
	default:
		r.cfg.Metrics.AddRetried(1)
		r.cfg.Logger.Debug("outbox publish failed, will retry",
			"id", rec.ID, "retry_count", outcome.RetryCount, "err", pubErr)
	}

	if r.cfg.OnFailure != nil {
		r.cfg.OnFailure(ctx, rec, pubErr)
	}

	return false
}

func (r *Relay) storageDelay(failures int) time.Duration {
	delay := r.cfg.StorageBackoff
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= r.cfg.StorageCap {
			return r.cfg.StorageCap
		}
	}
	if delay > r.cfg.StorageCap {
		delay = r.cfg.StorageCap
	}

	return delay
}

func (r *Relay) sleep(ctx context.Context, d time.Duration, wakeable bool) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	if wakeable {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
			return nil
		case <-timer.C:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Relay) maybeRecordPending(ctx context.Context) {
	counter, ok := r.store.(PendingCounter)
	if !ok {
		return
	}
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := counter.PendingCount(ctx)
	if err != nil {
		r.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}

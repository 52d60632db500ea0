package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

type outboxRepository struct {
	*db
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now()
	event.CreatedAt, event.UpdatedAt = now, now
	event.Status = model.OutboxStatusPending
	c := *event
	r.outbox = append(r.outbox, &c)
	return nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	out := []*model.OutboxEvent{}
	for _, e := range r.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		until := now.Add(lease)
		e.RetryAt = &until
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *outboxRepository) update(id uuid.UUID, fn func(*model.OutboxEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.outbox {
		if e.ID == id {
			fn(e)
			e.UpdatedAt = time.Now()
			return
		}
	}
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.update(id, func(e *model.OutboxEvent) {
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.ErrorMessage = nil
	})
	return nil
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryAt = &retryAt
		e.RetryCount++
	})
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.outbox[:0]
	var n int64
	for _, e := range r.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.outbox = kept
	return n, nil
}

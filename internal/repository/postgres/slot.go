package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

const slotColumns = `id, to_char(date, 'YYYY-MM-DD') AS date, hour, duration_minutes, status, created_at, updated_at`

type slotRepository struct {
	BaseRepository
}

func NewSlotRepository(base BaseRepository) repository.SlotRepository {
	return &slotRepository{base}
}

func (r *slotRepository) Get(ctx context.Context, id string) (*model.Slot, error) {
	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	if isNoRows(err) {
		return nil, apperrors.NotFound("slot", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) List(ctx context.Context, fromDate, toDate string) ([]*model.Slot, error) {
	slots := []*model.Slot{}
	err := r.db.SelectContext(ctx, &slots, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY date, hour`, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) SetStatus(ctx context.Context, keys []model.SlotKey, status model.SlotStatus, now time.Time) ([]*model.SlotStatusResult, error) {
	results := make([]*model.SlotStatusResult, 0, len(keys))

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, key := range keys {
			var slot model.Slot
			err := tx.GetContext(ctx, &slot, `
				INSERT INTO slots (id, date, hour, duration_minutes, status, created_at, updated_at)
				VALUES ($1, $2::date, $3, $4, $5, $6, $6)
				ON CONFLICT (id) DO UPDATE
				SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
				RETURNING `+slotColumns,
				key.ID(), key.Date, key.Hour, model.SlotDurationMinutes, status, now)
			if err != nil {
				return fmt.Errorf("failed to upsert slot %s: %w", key.ID(), err)
			}

			var reserved bool
			err = tx.GetContext(ctx, &reserved, `
				SELECT EXISTS (SELECT 1 FROM reservations WHERE slot_id = $1 AND status = ANY($2))`,
				key.ID(), activeStatuses())
			if err != nil {
				return fmt.Errorf("failed to check reservation: %w", err)
			}

			if err := insertOutbox(ctx, tx, model.ChangeNotice{
				Type:   model.EventSlotStatusChanged,
				SlotID: key.ID(),
				At:     now,
			}); err != nil {
				return err
			}

			results = append(results, &model.SlotStatusResult{Slot: &slot, Reserved: reserved})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/policy"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

const reservationColumns = `id, slot_id, patient_id, status, cancelled_at, reminder_at, reminder_sent_at, created_at, updated_at`

const reservationViewSelect = `
	SELECT r.id, r.slot_id, r.patient_id, r.status, r.cancelled_at, r.reminder_at, r.reminder_sent_at,
	       r.created_at, r.updated_at,
	       to_char(s.date, 'YYYY-MM-DD') AS date, s.hour, s.duration_minutes,
	       p.first_name, p.last_name, p.phone
	FROM reservations r
	JOIN slots s ON s.id = r.slot_id
	JOIN profiles p ON p.id = r.patient_id`

type reservationRepository struct {
	BaseRepository
}

func NewReservationRepository(base BaseRepository) repository.ReservationRepository {
	return &reservationRepository{base}
}

func (r *reservationRepository) Book(ctx context.Context, cmd repository.BookingCommand) (*model.Reservation, error) {
	slotID := cmd.Key.ID()
	var reservation *model.Reservation

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		// serializes the density and credit checks of one patient
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cmd.PatientID.String()); err != nil {
			return fmt.Errorf("failed to lock patient: %w", err)
		}

		facts := policy.BookingFacts{Key: cmd.Key}

		var slot model.Slot
		err := tx.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR SHARE`, slotID)
		switch {
		case err == nil:
			facts.Slot = &slot
		case !isNoRows(err):
			return fmt.Errorf("failed to get slot: %w", err)
		}

		err = tx.GetContext(ctx, &facts.SlotReserved, `
			SELECT EXISTS (SELECT 1 FROM reservations WHERE slot_id = $1 AND status = ANY($2))`,
			slotID, activeStatuses())
		if err != nil {
			return fmt.Errorf("failed to check slot reservation: %w", err)
		}

		var balance struct {
			Credits   int        `db:"credits"`
			ExpiresAt *time.Time `db:"credits_expires_at"`
		}
		err = tx.GetContext(ctx, &balance, `SELECT credits, credits_expires_at FROM profiles WHERE id = $1 FOR UPDATE`, cmd.PatientID)
		if isNoRows(err) {
			return apperrors.NotFound("profile", err)
		}
		if err != nil {
			return fmt.Errorf("failed to lock profile: %w", err)
		}
		facts.Balance = model.CreditBalance{Credits: balance.Credits, ExpiresAt: balance.ExpiresAt}

		err = tx.GetContext(ctx, &facts.DayCount, `
			SELECT count(*) FROM reservations r JOIN slots s ON s.id = r.slot_id
			WHERE r.patient_id = $1 AND r.status = ANY($2) AND s.date = $3::date`,
			cmd.PatientID, activeStatuses(), cmd.Key.Date)
		if err != nil {
			return fmt.Errorf("failed to count daily reservations: %w", err)
		}
		err = tx.GetContext(ctx, &facts.WeekCount, `
			SELECT count(*) FROM reservations r JOIN slots s ON s.id = r.slot_id
			WHERE r.patient_id = $1 AND r.status = ANY($2) AND s.date >= $3::date AND s.date < $4::date`,
			cmd.PatientID, activeStatuses(), cmd.WeekStart, cmd.WeekEnd)
		if err != nil {
			return fmt.Errorf("failed to count weekly reservations: %w", err)
		}

		if err := cmd.Check(facts); err != nil {
			return err
		}

		now := cmd.Now
		reminderAt := cmd.ReminderAt
		res := &model.Reservation{
			Base:       model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			SlotID:     slotID,
			PatientID:  cmd.PatientID,
			Status:     model.ReservationStatusBooked,
			ReminderAt: &reminderAt,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (id, slot_id, patient_id, status, reminder_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)`,
			res.ID, res.SlotID, res.PatientID, res.Status, res.ReminderAt, now)
		if isUniqueViolation(err) {
			return apperrors.ErrSlotTaken
		}
		if err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE profiles SET credits = credits - 1, updated_at = $2
			WHERE id = $1 AND credits >= 1`, cmd.PatientID, now)
		if err != nil {
			return fmt.Errorf("failed to debit credit: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return apperrors.ErrInsufficientCredit
		}

		if err := insertOutbox(ctx, tx, model.ChangeNotice{
			Type:          model.EventReservationBooked,
			SlotID:        slotID,
			ReservationID: &res.ID,
			At:            now,
		}); err != nil {
			return err
		}

		reservation = res
		return nil
	})
	if err != nil {
		// the partial unique index can also fire at commit under concurrency
		if isUniqueViolation(err) {
			return nil, apperrors.ErrSlotTaken
		}
		return nil, err
	}
	return reservation, nil
}

func (r *reservationRepository) lockReservation(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	err := tx.GetContext(ctx, &res, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id)
	if isNoRows(err) {
		return nil, apperrors.ErrReservationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservation: %w", err)
	}
	return &res, nil
}

// refund returns one credit when the balance still has a validity window.
func refund(ctx context.Context, tx *sqlx.Tx, patientID uuid.UUID, now time.Time) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE profiles SET credits = credits + 1, updated_at = $2
		WHERE id = $1 AND credits_expires_at IS NOT NULL AND credits_expires_at > $2`,
		patientID, now)
	if err != nil {
		return false, fmt.Errorf("failed to refund credit: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

func (r *reservationRepository) Cancel(ctx context.Context, cmd repository.CancelCommand) (*repository.CancelResult, error) {
	var out *repository.CancelResult

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := r.lockReservation(ctx, tx, cmd.ReservationID)
		if err != nil {
			return err
		}
		if cmd.PatientID != nil && res.PatientID != *cmd.PatientID {
			return apperrors.ErrReservationMissing
		}
		if !res.Status.Cancellable() {
			return apperrors.ErrNotCancellable
		}

		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM profiles WHERE id = $1 FOR UPDATE`, res.PatientID); err != nil {
			return fmt.Errorf("failed to lock profile: %w", err)
		}

		now := cmd.Now
		_, err = tx.ExecContext(ctx, `
			UPDATE reservations SET status = $2, cancelled_at = $3, updated_at = $3 WHERE id = $1`,
			res.ID, model.ReservationStatusCancelled, now)
		if err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		res.Status = model.ReservationStatusCancelled
		res.CancelledAt = &now
		res.UpdatedAt = now

		refunded := false
		key, err := model.ParseSlotID(res.SlotID)
		if err != nil {
			return fmt.Errorf("failed to parse slot id: %w", err)
		}
		if cmd.RefundDue != nil && cmd.RefundDue(key) {
			if refunded, err = refund(ctx, tx, res.PatientID, now); err != nil {
				return err
			}
		}

		if err := insertOutbox(ctx, tx, model.ChangeNotice{
			Type:          model.EventReservationCancelled,
			SlotID:        res.SlotID,
			ReservationID: &res.ID,
			At:            now,
		}); err != nil {
			return err
		}

		out = &repository.CancelResult{Reservation: res, Refunded: refunded}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reservationRepository) Review(ctx context.Context, cmd repository.ReviewCommand) (*model.Reservation, error) {
	var out *model.Reservation

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := r.lockReservation(ctx, tx, cmd.ReservationID)
		if err != nil {
			return err
		}
		if !res.Status.Reviewable() {
			return apperrors.Conflict(fmt.Sprintf("reservation is %s and cannot be reviewed", res.Status), nil)
		}

		status := model.ReservationStatusApproved
		if cmd.Decision == model.ReviewReject {
			status = model.ReservationStatusRejected
		}

		_, err = tx.ExecContext(ctx, `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`,
			res.ID, status, cmd.Now)
		if err != nil {
			return fmt.Errorf("failed to review reservation: %w", err)
		}
		res.Status = status
		res.UpdatedAt = cmd.Now

		if status == model.ReservationStatusRejected {
			if _, err := refund(ctx, tx, res.PatientID, cmd.Now); err != nil {
				return err
			}
		}

		if err := insertOutbox(ctx, tx, model.ChangeNotice{
			Type:          model.EventReservationReviewed,
			SlotID:        res.SlotID,
			ReservationID: &res.ID,
			At:            cmd.Now,
		}); err != nil {
			return err
		}

		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reservationRepository) Get(ctx context.Context, id uuid.UUID) (*model.ReservationView, error) {
	var view model.ReservationView
	err := r.db.GetContext(ctx, &view, reservationViewSelect+` WHERE r.id = $1`, id)
	if isNoRows(err) {
		return nil, apperrors.ErrReservationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &view, nil
}

func (r *reservationRepository) List(ctx context.Context, filters *model.ReservationFilters) ([]*model.ReservationView, error) {
	if filters == nil {
		filters = &model.ReservationFilters{}
	}

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.PatientID != nil {
		conds = append(conds, "r.patient_id = "+arg(*filters.PatientID))
	}
	if len(filters.Statuses) > 0 {
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "r.status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filters.HistoryBefore != "" {
		conds = append(conds, "(r.status <> ALL("+arg(activeStatuses())+") OR r.slot_id < "+arg(filters.HistoryBefore)+")")
	}
	if filters.FromSlot != "" {
		conds = append(conds, "r.slot_id >= "+arg(filters.FromSlot))
	}
	if filters.ToSlot != "" {
		conds = append(conds, "r.slot_id < "+arg(filters.ToSlot))
	}

	query := reservationViewSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY r.slot_id"
	if filters.Descending {
		query += " DESC"
	}

	page := filters.Pagination.Normalize(50, 500)
	query += " LIMIT " + arg(page.Limit) + " OFFSET " + arg(page.Offset)

	views := []*model.ReservationView{}
	if err := r.db.SelectContext(ctx, &views, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return views, nil
}

func (r *reservationRepository) ReservedSlotIDs(ctx context.Context, slotIDs []string) ([]string, error) {
	if len(slotIDs) == 0 {
		return []string{}, nil
	}
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT slot_id FROM reservations
		WHERE slot_id = ANY($1) AND status = ANY($2)`,
		pq.Array(slotIDs), activeStatuses())
	if err != nil {
		return nil, fmt.Errorf("failed to get reserved slots: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicsched/backend/internal/domain"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"

	appointmentsNoOverlap = "appointments_no_overlap"
)

type CalendarRepo struct {
	db *bun.DB
	calendarReader
}

func NewCalendarRepo(db *bun.DB) *CalendarRepo {
	return &CalendarRepo{db: db, calendarReader: calendarReader{db: db}}
}

var _ store.Calendar = (*CalendarRepo)(nil)

// InProviderTransaction runs fn in a database transaction holding a
// transaction-scoped advisory lock on the provider, so concurrent writers
// of the same calendar queue up while other providers proceed.
func (r *CalendarRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderCalendar(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, calendarTx{calendarReader: calendarReader{db: tx}, tx: tx})
	})
}

func lockProviderCalendar(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

// calendarReader serves reads against either the pool or an open
// transaction.
type calendarReader struct {
	db bun.IDB
}

func (r calendarReader) ListAvailability(ctx context.Context, providerID string, day time.Weekday) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("day_of_week = ?", int(day)).
		OrderExpr("start_minute ASC, end_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarReader) ListBlocks(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Block, error) {
	var rows []domain.Block
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarReader) ListAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarReader) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return appt, nil
}

type calendarTx struct {
	calendarReader
	tx bun.Tx
}

func (c calendarTx) GetAvailability(ctx context.Context, windowID uuid.UUID) (domain.AvailabilityWindow, error) {
	var w domain.AvailabilityWindow
	err := c.tx.NewSelect().Model(&w).Where("id = ?", windowID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.AvailabilityWindow{}, notFound(err)
	}
	return w, nil
}

func (c calendarTx) CreateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	if _, err := c.tx.NewInsert().Model(&w).Exec(ctx); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return w, nil
}

func (c calendarTx) UpdateAvailability(ctx context.Context, w domain.AvailabilityWindow) (domain.AvailabilityWindow, error) {
	res, err := c.tx.NewUpdate().
		Model(&w).
		Column("day_of_week", "start_minute", "end_minute", "updated_at").
		WherePK().
		Where("provider_id = ?", w.ProviderID).
		Exec(ctx)
	if err := affectedOne(res, err); err != nil {
		return domain.AvailabilityWindow{}, err
	}
	return c.GetAvailability(ctx, w.ID)
}

func (c calendarTx) DeleteAvailability(ctx context.Context, providerID string, windowID uuid.UUID) error {
	res, err := c.tx.NewDelete().
		Model((*domain.AvailabilityWindow)(nil)).
		Where("provider_id = ?", providerID).
		Where("id = ?", windowID).
		Exec(ctx)
	return affectedOne(res, err)
}

func (c calendarTx) GetBlock(ctx context.Context, blockID uuid.UUID) (domain.Block, error) {
	var b domain.Block
	err := c.tx.NewSelect().Model(&b).Where("id = ?", blockID).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Block{}, notFound(err)
	}
	return b, nil
}

func (c calendarTx) CreateBlock(ctx context.Context, b domain.Block) (domain.Block, error) {
	if _, err := c.tx.NewInsert().Model(&b).Exec(ctx); err != nil {
		return domain.Block{}, err
	}
	return b, nil
}

func (c calendarTx) UpdateBlock(ctx context.Context, b domain.Block) (domain.Block, error) {
	res, err := c.tx.NewUpdate().
		Model(&b).
		Column("start_time", "end_time", "reason", "updated_at").
		WherePK().
		Where("provider_id = ?", b.ProviderID).
		Exec(ctx)
	if err := affectedOne(res, err); err != nil {
		return domain.Block{}, err
	}
	return c.GetBlock(ctx, b.ID)
}

func (c calendarTx) DeleteBlock(ctx context.Context, providerID string, blockID uuid.UUID) error {
	res, err := c.tx.NewDelete().
		Model((*domain.Block)(nil)).
		Where("provider_id = ?", providerID).
		Where("id = ?", blockID).
		Exec(ctx)
	return affectedOne(res, err)
}

func (c calendarTx) CreateAppointments(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error) {
	if len(appts) == 0 {
		return nil, nil
	}
	rows := make([]domain.Appointment, len(appts))
	copy(rows, appts)

	if _, err := c.tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return nil, mapWriteError(err)
	}
	return rows, nil
}

func (c calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	res, err := c.tx.NewUpdate().
		Model(&appt).
		Column("start_time", "end_time", "status", "notes", "updated_at").
		WherePK().
		Where("provider_id = ?", appt.ProviderID).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	if err := affectedOne(res, nil); err != nil {
		return domain.Appointment{}, err
	}
	return c.GetAppointment(ctx, appt.ID)
}

func (c calendarTx) DeleteAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) error {
	res, err := c.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("provider_id = ?", providerID).
		Where("id = ?", appointmentID).
		Exec(ctx)
	return affectedOne(res, err)
}

func (c calendarTx) ListSeries(ctx context.Context, providerID string, seriesID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := c.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("series_id = ?", seriesID).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c calendarTx) StageEvents(ctx context.Context, evs ...events.Event) error {
	return insertOutbox(ctx, c.tx, time.Now(), evs)
}

// mapWriteError translates constraint violations raised by the database
// into store sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == appointmentsNoOverlap:
		return store.ErrConflict
	case pgErr.Code == pgUniqueViolation:
		return store.ErrIdempotencyConflict
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

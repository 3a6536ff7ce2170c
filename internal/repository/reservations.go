package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
)

var reservationColumns = []string{
	"id", "reservation_uid", "username", "book_uid", "reservation_date",
	"expiry_date", "status", "notified", "remarks", "created_at",
}

func (r *repository) CreateReservation(ctx context.Context, rsv model.Reservation) (model.Reservation, error) {
	q, args, err := qb.Insert(reservationTableName).
		Columns("reservation_uid", "username", "book_uid", "reservation_date",
			"expiry_date", "status", "remarks").
		Values(uuid.New(), rsv.Username, rsv.BookUid, rsv.ReservationDate,
			rsv.ExpiryDate, model.ReservationActive, rsv.Remarks).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}
	var res model.Reservation
	if err := sqlx.GetContext(ctx, r.ext(ctx), &res, q, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.Reservation{}, errs.ErrDuplicateReservation
		}
		r.log.Error("CreateReservation", zap.String("q", q), zap.Any("args", args))
		return model.Reservation{}, err
	}
	return res, nil
}

func (r *repository) GetReservation(ctx context.Context, reservationUid string) (model.Reservation, error) {
	q, args, err := qb.Select(reservationColumns...).
		From(reservationTableName).
		Where(sq.Eq{"reservation_uid": reservationUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Reservation{}, err
	}

	var rsv model.Reservation
	if err := sqlx.GetContext(ctx, r.ext(ctx), &rsv, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, err
	}
	return rsv, nil
}

func (r *repository) ListReservations(ctx context.Context, filter model.ReservationFilter) (model.ListReservations, error) {
	q := qb.Select(reservationColumns...).
		From(reservationTableName).
		OrderBy("reservation_date desc, id desc")

	if filter.Username != "" {
		q = q.Where(sq.Eq{"username": filter.Username})
	}
	if filter.BookUid != "" {
		q = q.Where(sq.Eq{"book_uid": filter.BookUid})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Page != 0 && filter.Size != 0 {
		q = q.Limit(uint64(filter.Size)).Offset(uint64((filter.Page - 1) * filter.Size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListReservations{}, err
	}

	var items []model.Reservation
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...); err != nil {
		return model.ListReservations{}, err
	}
	return model.ListReservations{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: len(items),
		},
		Items: items,
	}, nil
}

// CancelReservation transitions active -> cancelled; the status guard
// keeps a concurrent fulfillment from being overwritten.
func (r *repository) CancelReservation(ctx context.Context, reservationUid string) (model.Reservation, error) {
	q := fmt.Sprintf(`update %s
	set status = 'cancelled'
	where reservation_uid = $1 and status = 'active'
	returning *`, reservationTableName)

	var rsv model.Reservation
	if err := sqlx.GetContext(ctx, r.ext(ctx), &rsv, q, reservationUid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetReservation(ctx, reservationUid); getErr != nil {
				return model.Reservation{}, getErr
			}
			return model.Reservation{}, errs.ErrNotActive
		}
		return model.Reservation{}, err
	}
	return rsv, nil
}

// OldestActiveReservation locks the head of the FIFO queue for the
// book. SKIP LOCKED lets concurrent returns fulfill distinct holds.
func (r *repository) OldestActiveReservation(ctx context.Context, bookUid string) (model.Reservation, error) {
	q := fmt.Sprintf(`select %s from %s
	where book_uid = $1 and status = 'active'
	order by reservation_date, id
	limit 1
	for update skip locked`, columnList(reservationColumns), reservationTableName)

	var rsv model.Reservation
	if err := sqlx.GetContext(ctx, r.ext(ctx), &rsv, q, bookUid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, err
	}
	return rsv, nil
}

func (r *repository) FulfillReservation(ctx context.Context, reservationUid string) (model.Reservation, error) {
	q := fmt.Sprintf(`update %s
	set status = 'fulfilled', notified = true
	where reservation_uid = $1 and status = 'active'
	returning *`, reservationTableName)

	var rsv model.Reservation
	if err := sqlx.GetContext(ctx, r.ext(ctx), &rsv, q, reservationUid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotActive
		}
		return model.Reservation{}, err
	}
	return rsv, nil
}

// ExpireReservations is idempotent; each run transitions whatever is
// stale at that moment and nothing else.
func (r *repository) ExpireReservations(ctx context.Context, now time.Time) (int64, error) {
	q := fmt.Sprintf(`update %s
	set status = 'expired'
	where status = 'active' and expiry_date < $1`, reservationTableName)

	res, err := r.ext(ctx).ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func columnList(cols []string) string {
	out := cols[0]
	for _, c := range cols[1:] {
		out += ", " + c
	}
	return out
}

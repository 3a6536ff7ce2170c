package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
)

var transactionColumns = []string{
	"id", "transaction_uid", "username", "book_uid", "issue_date", "due_date",
	"return_date", "status", "fine_amount", "fine_paid", "issued_by",
	"returned_to", "remarks", "created_at",
}

func (r *repository) CreateTransaction(ctx context.Context, trx model.Transaction) (model.Transaction, error) {
	q, args, err := qb.Insert(transactionTableName).
		Columns("transaction_uid", "username", "book_uid", "issue_date", "due_date",
			"status", "issued_by", "remarks").
		Values(uuid.New(), trx.Username, trx.BookUid, trx.IssueDate, trx.DueDate,
			model.TransactionIssued, trx.IssuedBy, trx.Remarks).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	var res model.Transaction
	if err := sqlx.GetContext(ctx, r.ext(ctx), &res, q, args...); err != nil {
		r.log.Error("CreateTransaction", zap.String("q", q), zap.Any("args", args))
		return model.Transaction{}, err
	}
	return res, nil
}

func (r *repository) GetTransaction(ctx context.Context, transactionUid string) (model.Transaction, error) {
	q, args, err := qb.Select(transactionColumns...).
		From(transactionTableName).
		Where(sq.Eq{"transaction_uid": transactionUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}

	var trx model.Transaction
	if err := sqlx.GetContext(ctx, r.ext(ctx), &trx, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, errs.ErrNotFound
		}
		return model.Transaction{}, err
	}
	return trx, nil
}

// CloseTransaction closes the loan exactly once: the return_date guard
// makes a second concurrent return lose the race and surface
// ErrAlreadyReturned.
func (r *repository) CloseTransaction(ctx context.Context, transactionUid, returnedTo, remarks string,
	returnDate time.Time, fine float64, finePaid bool) (model.Transaction, error) {
	q := fmt.Sprintf(`update %s
	set return_date = $2,
	    status = 'returned',
	    fine_amount = $3,
	    fine_paid = $4,
	    returned_to = $5,
	    remarks = case when $6 <> '' then $6 else remarks end
	where transaction_uid = $1 and return_date is null
	returning *`, transactionTableName)

	var trx model.Transaction
	err := sqlx.GetContext(ctx, r.ext(ctx), &trx, q,
		transactionUid, returnDate, fine, finePaid, returnedTo, remarks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetTransaction(ctx, transactionUid); getErr != nil {
				return model.Transaction{}, getErr
			}
			return model.Transaction{}, errs.ErrAlreadyReturned
		}
		return model.Transaction{}, err
	}
	return trx, nil
}

func (r *repository) ListTransactions(ctx context.Context, filter model.TransactionFilter) (model.ListTransactions, error) {
	q := qb.Select(transactionColumns...).
		From(transactionTableName).
		OrderBy("issue_date desc, id desc")

	if filter.Username != "" {
		q = q.Where(sq.Eq{"username": filter.Username})
	}
	if filter.BookUid != "" {
		q = q.Where(sq.Eq{"book_uid": filter.BookUid})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Overdue {
		q = q.Where("return_date is null").Where("due_date < now()")
	}
	if filter.UnpaidFine {
		q = q.Where(sq.Eq{"fine_paid": false}).Where(sq.Gt{"fine_amount": 0})
	}
	if filter.Page != 0 && filter.Size != 0 {
		q = q.Limit(uint64(filter.Size)).Offset(uint64((filter.Page - 1) * filter.Size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListTransactions{}, err
	}

	var items []model.Transaction
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...); err != nil {
		return model.ListTransactions{}, err
	}
	return model.ListTransactions{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: len(items),
		},
		Items: items,
	}, nil
}

// MarkFinePaid is forward-only: a paid fine cannot be un-paid.
func (r *repository) MarkFinePaid(ctx context.Context, transactionUid string) (model.Transaction, error) {
	q := fmt.Sprintf(`update %s
	set fine_paid = true
	where transaction_uid = $1 and fine_paid = false and fine_amount > 0
	returning *`, transactionTableName)

	var trx model.Transaction
	if err := sqlx.GetContext(ctx, r.ext(ctx), &trx, q, transactionUid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetTransaction(ctx, transactionUid); getErr != nil {
				return model.Transaction{}, getErr
			}
			return model.Transaction{}, errs.ErrNoOutstandingFine
		}
		return model.Transaction{}, err
	}
	return trx, nil
}

func (r *repository) TransactionStatistics(ctx context.Context) (model.TransactionStatistics, error) {
	q := `
	select count(*)                                              as total_transactions,
	       count(*) filter (where return_date is null)           as active_transactions,
	       count(*) filter (where return_date is null
	                          and due_date < now())              as overdue_transactions,
	       coalesce(sum(fine_amount) filter (where not fine_paid), 0) as total_unpaid_fines
	from transaction
`
	var stats model.TransactionStatistics
	if err := sqlx.GetContext(ctx, r.ext(ctx), &stats, q); err != nil {
		return model.TransactionStatistics{}, err
	}
	return stats, nil
}

package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
)

var bookColumns = []string{
	"id", "book_uid", "title", "author", "isbn", "category", "condition",
	"location", "status", "total_copies", "available_copies", "created_at",
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	q, args, err := qb.Insert(booksTableName).
		Columns("book_uid", "title", "author", "isbn", "category", "condition",
			"location", "status", "total_copies", "available_copies").
		Values(uuid.New(), book.Title, book.Author, book.ISBN, book.Category,
			book.Condition, book.Location, model.BookAvailable, book.TotalCopies, book.TotalCopies).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var res model.Book
	if err := sqlx.GetContext(ctx, r.ext(ctx), &res, q, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", q), zap.Any("args", args))
		return model.Book{}, err
	}
	return res, nil
}

// UpdateBook touches catalog fields only; the copy counters belong to
// the inventory operations below.
func (r *repository) UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error) {
	upd := qb.Update(booksTableName).Where(sq.Eq{"book_uid": bookUid})
	set := false
	if req.Title != nil {
		upd, set = upd.Set("title", *req.Title), true
	}
	if req.Author != nil {
		upd, set = upd.Set("author", *req.Author), true
	}
	if req.Category != nil {
		upd, set = upd.Set("category", *req.Category), true
	}
	if req.Condition != nil {
		upd, set = upd.Set("condition", *req.Condition), true
	}
	if req.Location != nil {
		upd, set = upd.Set("location", *req.Location), true
	}
	if !set {
		return r.GetBook(ctx, bookUid)
	}

	q, args, err := upd.Suffix("returning *").ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var res model.Book
	if err := sqlx.GetContext(ctx, r.ext(ctx), &res, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return res, nil
}

func (r *repository) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	q, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"book_uid": bookUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := sqlx.GetContext(ctx, r.ext(ctx), &book, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error) {
	q := qb.Select(bookColumns...).From(booksTableName).OrderBy("created_at desc, id desc")

	if filter.Title != "" {
		q = q.Where(sq.ILike{"title": "%" + filter.Title + "%"})
	}
	if filter.Author != "" {
		q = q.Where(sq.ILike{"author": "%" + filter.Author + "%"})
	}
	if filter.ISBN != "" {
		q = q.Where(sq.Eq{"isbn": filter.ISBN})
	}
	if filter.Category != "" {
		q = q.Where(sq.Eq{"category": filter.Category})
	}
	if filter.AvailableOnly {
		q = q.Where(sq.Gt{"available_copies": 0})
	}
	if filter.Page != 0 && filter.Size != 0 {
		q = q.Limit(uint64(filter.Size)).Offset(uint64((filter.Page - 1) * filter.Size))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	var books []model.Book
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}

	return model.ListBooks{
		Paging: model.Paging{
			Page:          filter.Page,
			PageSize:      filter.Size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

func (r *repository) BookStatistics(ctx context.Context) (model.BookStatistics, error) {
	q := `
	select count(*)                                      as total_books,
	       count(*) filter (where available_copies > 0)  as available_books,
	       coalesce(sum(total_copies - available_copies), 0) as issued_books,
	       coalesce(sum(total_copies), 0)                as total_copies,
	       coalesce(sum(available_copies), 0)            as available_copies
	from books
`
	var stats model.BookStatistics
	if err := sqlx.GetContext(ctx, r.ext(ctx), &stats, q); err != nil {
		return model.BookStatistics{}, err
	}
	return stats, nil
}

// DecrementAvailable is the single legal way to take a copy out of the
// pool. The conditional update serializes concurrent issues of the last
// copy at the row level.
func (r *repository) DecrementAvailable(ctx context.Context, bookUid string) error {
	q := `
	update books
	set available_copies = available_copies - 1,
	    status = case when available_copies - 1 = 0 then 'issued' else 'available' end
	where book_uid = $1 and available_copies > 0`

	res, err := r.ext(ctx).ExecContext(ctx, q, bookUid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetBook(ctx, bookUid); err != nil {
			return err
		}
		return errs.ErrNoCopiesAvailable
	}
	return nil
}

// IncrementAvailable returns a copy to the pool. Pushing the counter
// above total_copies is rejected, not clamped.
func (r *repository) IncrementAvailable(ctx context.Context, bookUid string) error {
	q := `
	update books
	set available_copies = available_copies + 1,
	    status = case when status in ('issued', 'reserved') then 'available' else status end
	where book_uid = $1 and available_copies < total_copies`

	res, err := r.ext(ctx).ExecContext(ctx, q, bookUid)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetBook(ctx, bookUid); err != nil {
			return err
		}
		return errs.ErrExceedsTotal
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
)

func (r *repository) GetUser(ctx context.Context, username string) (model.User, error) {
	q, args, err := qb.Select("id", "username", "email", "role", "status",
		"max_books_allowed", "membership_start", "membership_end", "created_at").
		From(usersTableName).
		Where(sq.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	var user model.User
	if err := sqlx.GetContext(ctx, r.ext(ctx), &user, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}

func (r *repository) ActiveLoanCount(ctx context.Context, username string) (int, error) {
	q := `
	select count(*) from transaction
	where username = $1 and return_date is null
`
	var count int
	if err := r.ext(ctx).QueryRowxContext(ctx, q, username).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/model"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	// WithinTx runs fn with every repository call inside one database
	// transaction. Nested calls reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetUser(ctx context.Context, username string) (model.User, error)
	ActiveLoanCount(ctx context.Context, username string) (int, error)

	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error)
	BookStatistics(ctx context.Context) (model.BookStatistics, error)
	DecrementAvailable(ctx context.Context, bookUid string) error
	IncrementAvailable(ctx context.Context, bookUid string) error

	CreateTransaction(ctx context.Context, trx model.Transaction) (model.Transaction, error)
	GetTransaction(ctx context.Context, transactionUid string) (model.Transaction, error)
	CloseTransaction(ctx context.Context, transactionUid, returnedTo, remarks string, returnDate time.Time, fine float64, finePaid bool) (model.Transaction, error)
	ListTransactions(ctx context.Context, filter model.TransactionFilter) (model.ListTransactions, error)
	MarkFinePaid(ctx context.Context, transactionUid string) (model.Transaction, error)
	TransactionStatistics(ctx context.Context) (model.TransactionStatistics, error)

	CreateReservation(ctx context.Context, rsv model.Reservation) (model.Reservation, error)
	GetReservation(ctx context.Context, reservationUid string) (model.Reservation, error)
	ListReservations(ctx context.Context, filter model.ReservationFilter) (model.ListReservations, error)
	CancelReservation(ctx context.Context, reservationUid string) (model.Reservation, error)
	OldestActiveReservation(ctx context.Context, bookUid string) (model.Reservation, error)
	FulfillReservation(ctx context.Context, reservationUid string) (model.Reservation, error)
	ExpireReservations(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName       = `users`
	booksTableName       = `books`
	transactionTableName = `transaction`
	reservationTableName = `reservation`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type txKey struct{}

// ext returns the ambient transaction if one was started by WithinTx,
// the plain connection pool otherwise.
func (r *repository) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

func (r *repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("tx rollback", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

package handler

import (
	"context"

	"github.com/openshelf/library-service/internal/model"
	"github.com/openshelf/library-service/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CirculationService interface {
	GetBook(ctx context.Context, bookUid string) (model.Book, error)
	ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error)
	CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error)
	BookStatistics(ctx context.Context) (model.BookStatistics, error)

	GetUserProfile(ctx context.Context, username string) (model.UserProfile, error)

	IssueBook(ctx context.Context, req model.IssueBookRequest) (model.Transaction, error)
	ReturnBook(ctx context.Context, req model.ReturnBookRequest) (model.Transaction, error)
	MarkFinePaid(ctx context.Context, transactionUid string) (model.Transaction, error)
	ListTransactions(ctx context.Context, filter model.TransactionFilter) (model.ListTransactions, error)
	TransactionStatistics(ctx context.Context) (model.TransactionStatistics, error)

	CreateReservation(ctx context.Context, req model.CreateReservationRequest) (model.Reservation, error)
	CancelReservation(ctx context.Context, reservationUid, actor string, isStaff bool) (model.Reservation, error)
	ListReservations(ctx context.Context, filter model.ReservationFilter) (model.ListReservations, error)
}

var _ CirculationService = (*service.Service)(nil)

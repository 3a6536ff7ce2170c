package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/model"
	"github.com/openshelf/library-service/pkg/kafka"
)

// IssueBook runs the full issue sequence inside one database
// transaction: eligibility, counter decrement, loan row. Either all of
// it persists or none of it does.
func (s *Service) IssueBook(ctx context.Context, req model.IssueBookRequest) (model.Transaction, error) {
	var trx model.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		user, err := s.repo.GetUser(ctx, req.Username)
		if err != nil {
			return err
		}
		book, err := s.repo.GetBook(ctx, req.BookUid)
		if err != nil {
			return err
		}
		if err := s.CanIssue(ctx, user, book); err != nil {
			return err
		}
		if err := s.repo.DecrementAvailable(ctx, req.BookUid); err != nil {
			return err
		}

		now := s.now()
		due := now.AddDate(0, 0, s.policy.LoanPeriodDays)
		if req.DueDate != nil && !req.DueDate.IsZero() {
			due = req.DueDate.Time
		}
		trx, err = s.repo.CreateTransaction(ctx, model.Transaction{
			Username:  req.Username,
			BookUid:   req.BookUid,
			IssueDate: now,
			DueDate:   due,
			IssuedBy:  req.IssuedBy,
			Remarks:   req.Remarks,
		})
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}

	s.log.Info("book issued",
		zap.String("transactionUid", trx.TransactionUid),
		zap.String("username", trx.Username),
		zap.String("bookUid", trx.BookUid))
	s.notify(kafka.EventCirculation{
		Type:           kafka.EventIssued,
		Username:       trx.Username,
		BookUid:        trx.BookUid,
		TransactionUid: trx.TransactionUid,
		At:             trx.IssueDate,
	})
	return trx, nil
}

// ReturnBook closes the loan, returns the copy to the pool and hands it
// to the oldest active hold, all inside one database transaction.
func (s *Service) ReturnBook(ctx context.Context, req model.ReturnBookRequest) (model.Transaction, error) {
	var (
		trx       model.Transaction
		fulfilled *model.Reservation
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now()
		open, err := s.repo.GetTransaction(ctx, req.TransactionUid)
		if err != nil {
			return err
		}
		fine := s.Fine(open.DueDate, now)
		trx, err = s.repo.CloseTransaction(ctx, req.TransactionUid,
			req.ReturnedTo, req.Remarks, now, fine, fine == 0)
		if err != nil {
			return err
		}
		if err := s.repo.IncrementAvailable(ctx, trx.BookUid); err != nil {
			return err
		}
		fulfilled, err = s.onCopyFreed(ctx, trx.BookUid)
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}

	s.log.Info("book returned",
		zap.String("transactionUid", trx.TransactionUid),
		zap.Float64("fine", trx.FineAmount))
	s.notify(kafka.EventCirculation{
		Type:           kafka.EventReturned,
		Username:       trx.Username,
		BookUid:        trx.BookUid,
		TransactionUid: trx.TransactionUid,
		At:             *trx.ReturnDate,
	})
	if fulfilled != nil {
		s.notify(kafka.EventCirculation{
			Type:           kafka.EventReservationFulfilled,
			Username:       fulfilled.Username,
			BookUid:        fulfilled.BookUid,
			ReservationUid: fulfilled.ReservationUid,
			At:             s.now(),
		})
	}
	return trx, nil
}

// Fine applies the overdue rule: days past due times the per-day rate,
// never negative, rounded to cents.
func (s *Service) Fine(dueDate, returnedAt time.Time) float64 {
	days := model.Transaction{DueDate: dueDate}.DaysOverdue(returnedAt)
	if days <= 0 {
		return 0
	}
	return math.Round(float64(days)*s.policy.FinePerDay*100) / 100
}

func (s *Service) MarkFinePaid(ctx context.Context, transactionUid string) (model.Transaction, error) {
	return s.repo.MarkFinePaid(ctx, transactionUid)
}

package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
)

// CreateReservation places a hold. Holding an available book is
// allowed; inventory is untouched until the actual issue.
func (s *Service) CreateReservation(ctx context.Context, req model.CreateReservationRequest) (model.Reservation, error) {
	if _, err := s.repo.GetUser(ctx, req.Username); err != nil {
		return model.Reservation{}, err
	}
	if _, err := s.repo.GetBook(ctx, req.BookUid); err != nil {
		return model.Reservation{}, err
	}

	now := s.now()
	expiry := now.AddDate(0, 0, s.policy.HoldPeriodDays)
	if req.ExpiryDate != nil && !req.ExpiryDate.IsZero() {
		expiry = req.ExpiryDate.Time
	}
	if !expiry.After(now) {
		return model.Reservation{}, errors.New("expiry date must be after reservation date")
	}

	rsv, err := s.repo.CreateReservation(ctx, model.Reservation{
		Username:        req.Username,
		BookUid:         req.BookUid,
		ReservationDate: now,
		ExpiryDate:      expiry,
	})
	if err != nil {
		return model.Reservation{}, err
	}
	s.log.Info("reservation created",
		zap.String("reservationUid", rsv.ReservationUid),
		zap.String("username", rsv.Username),
		zap.String("bookUid", rsv.BookUid))
	return rsv, nil
}

// CancelReservation: only the reserving user or staff may cancel, and
// only while the hold is still active.
func (s *Service) CancelReservation(ctx context.Context, reservationUid, actor string, isStaff bool) (model.Reservation, error) {
	rsv, err := s.repo.GetReservation(ctx, reservationUid)
	if err != nil {
		return model.Reservation{}, err
	}
	if rsv.Username != actor && !isStaff {
		return model.Reservation{}, errs.ErrNotOwnerOrStaff
	}
	return s.repo.CancelReservation(ctx, reservationUid)
}

// onCopyFreed fulfills the oldest active hold for the book, if any.
// The freed copy stays in the countable pool; the earmark is advisory
// and the patron still has to complete an explicit issue.
func (s *Service) onCopyFreed(ctx context.Context, bookUid string) (*model.Reservation, error) {
	head, err := s.repo.OldestActiveReservation(ctx, bookUid)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rsv, err := s.repo.FulfillReservation(ctx, head.ReservationUid)
	if err != nil {
		// lost the race against a concurrent cancel or sweep
		if errors.Is(err, errs.ErrNotActive) {
			return nil, nil
		}
		return nil, err
	}
	s.log.Info("reservation fulfilled",
		zap.String("reservationUid", rsv.ReservationUid),
		zap.String("bookUid", rsv.BookUid))
	return &rsv, nil
}

// SweepReservations expires every active hold whose expiry date has
// passed. Idempotent, safe on a schedule.
func (s *Service) SweepReservations(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireReservations(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("reservations expired", zap.Int64("count", count))
	}
	return count, nil
}

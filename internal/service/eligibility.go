package service

import (
	"context"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
)

// CanIssue decides whether an issue may proceed. No side effects; the
// active loan count is read from the store on every call.
func (s *Service) CanIssue(ctx context.Context, user model.User, book model.Book) error {
	if !user.IsMembershipActive(s.now()) {
		return errs.ErrMembershipExpired
	}
	issued, err := s.repo.ActiveLoanCount(ctx, user.Username)
	if err != nil {
		return err
	}
	if !user.CanIssueBooks(issued) {
		return errs.ErrLoanLimitReached
	}
	if !book.IsAvailable() {
		return errs.ErrBookUnavailable
	}
	return nil
}

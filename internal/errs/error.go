package errs

import (
	"errors"
)

var (
	ErrNotFound = errors.New("not found")

	// issue denials
	ErrMembershipExpired = errors.New("membership expired or account not active")
	ErrLoanLimitReached  = errors.New("maximum books limit reached")
	ErrBookUnavailable   = errors.New("book is not available for issue")

	// inventory
	ErrNoCopiesAvailable = errors.New("no copies available")
	ErrExceedsTotal      = errors.New("available copies would exceed total copies")

	// loans
	ErrAlreadyReturned   = errors.New("book already returned")
	ErrNoOutstandingFine = errors.New("no outstanding fine")

	// reservations
	ErrDuplicateReservation = errors.New("active reservation already exists for this book")
	ErrNotActive            = errors.New("reservation is not active")
	ErrNotOwnerOrStaff      = errors.New("only the reservation owner or staff may do that")
)

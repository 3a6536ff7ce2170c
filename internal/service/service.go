package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/model"
	"github.com/openshelf/library-service/internal/repository"
	"github.com/openshelf/library-service/pkg/kafka"
)

// Policy holds the circulation constants; they come from config, never
// from request payloads.
type Policy struct {
	LoanPeriodDays int
	HoldPeriodDays int
	FinePerDay     float64
}

// Notifier publishes circulation events for external consumers
// (notification delivery, statistics). Must be safe for concurrent use.
type Notifier interface {
	Notify(event kafka.EventCirculation) error
}

type Service struct {
	log    *zap.Logger
	repo   repository.Repository
	events Notifier
	policy Policy
	now    func() time.Time
}

func NewService(repo repository.Repository, events Notifier, policy Policy, log *zap.Logger) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		events: events,
		policy: policy,
		now:    time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// notify is best effort: a broker outage must not fail circulation.
func (s *Service) notify(event kafka.EventCirculation) {
	if s.events == nil {
		return
	}
	if err := s.events.Notify(event); err != nil {
		s.log.Warn("notify", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *Service) GetBook(ctx context.Context, bookUid string) (model.Book, error) {
	return s.repo.GetBook(ctx, bookUid)
}

func (s *Service) ListBooks(ctx context.Context, filter model.BookFilter) (model.ListBooks, error) {
	return s.repo.ListBooks(ctx, filter)
}

func (s *Service) CreateBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	condition := req.Condition
	if condition == "" {
		condition = "good"
	}
	return s.repo.CreateBook(ctx, model.Book{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		Category:    req.Category,
		Condition:   condition,
		Location:    req.Location,
		TotalCopies: req.TotalCopies,
	})
}

func (s *Service) UpdateBook(ctx context.Context, bookUid string, req model.UpdateBookRequest) (model.Book, error) {
	return s.repo.UpdateBook(ctx, bookUid, req)
}

func (s *Service) BookStatistics(ctx context.Context) (model.BookStatistics, error) {
	return s.repo.BookStatistics(ctx)
}

func (s *Service) GetUserProfile(ctx context.Context, username string) (model.UserProfile, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		return model.UserProfile{}, err
	}
	issued, err := s.repo.ActiveLoanCount(ctx, username)
	if err != nil {
		return model.UserProfile{}, err
	}
	membershipActive := user.IsMembershipActive(s.now())
	return model.UserProfile{
		User:               user,
		BooksIssuedCount:   issued,
		CanIssue:           membershipActive && user.CanIssueBooks(issued),
		MembershipIsActive: membershipActive,
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, filter model.TransactionFilter) (model.ListTransactions, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) TransactionStatistics(ctx context.Context) (model.TransactionStatistics, error) {
	return s.repo.TransactionStatistics(ctx)
}

func (s *Service) ListReservations(ctx context.Context, filter model.ReservationFilter) (model.ListReservations, error) {
	return s.repo.ListReservations(ctx, filter)
}

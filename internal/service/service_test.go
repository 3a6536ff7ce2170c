package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
	"github.com/openshelf/library-service/internal/service"

	repo_mocks "github.com/openshelf/library-service/internal/repository/mocks"
)

var testPolicy = service.Policy{
	LoanPeriodDays: 14,
	HoldPeriodDays: 7,
	FinePerDay:     0.5,
}

func newTestService(t *testing.T) (*service.Service, *repo_mocks.MockRepository, time.Time) {
	t.Helper()
	c := gomock.NewController(t)
	t.Cleanup(c.Finish)
	repo := repo_mocks.NewMockRepository(c)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := service.NewService(repo, nil, testPolicy, zap.NewExample().Named("test")).
		WithClock(func() time.Time { return now })
	return svc, repo, now
}

// passthroughTx makes WithinTx run its callback on the bare context, the
// way the real repository does outside a nested call.
func passthroughTx(repo *repo_mocks.MockRepository) {
	repo.EXPECT().
		WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func activeUser(username string, maxBooks int) model.User {
	return model.User{
		Username:        username,
		Role:            model.RoleStudent,
		Status:          model.AccountActive,
		MaxBooksAllowed: maxBooks,
		MembershipStart: time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestService_Fine(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tests = []struct {
		name       string
		returnedAt time.Time
		want       float64
	}{
		{name: "before due", returnedAt: due.AddDate(0, 0, -3), want: 0},
		{name: "on due date", returnedAt: due, want: 0},
		{name: "same day later hour", returnedAt: due.Add(23 * time.Hour), want: 0},
		{name: "one day late", returnedAt: due.AddDate(0, 0, 1), want: 0.5},
		{name: "ten days late", returnedAt: due.AddDate(0, 0, 10), want: 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, svc.Fine(due, tt.returnedAt))
		})
	}
}

func TestService_CanIssue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	expired := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	availableBook := model.Book{BookUid: "b1", TotalCopies: 3, AvailableCopies: 1}

	var tests = []struct {
		name         string
		user         func() model.User
		book         model.Book
		mockBehavior func(repo *repo_mocks.MockRepository)
		wantErr      error
	}{
		{
			name: "ok",
			user: func() model.User { return activeUser("alice", 5) },
			book: availableBook,
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(2, nil)
			},
		},
		{
			name: "membership expired",
			user: func() model.User {
				u := activeUser("alice", 5)
				u.MembershipEnd = &expired
				return u
			},
			book:         availableBook,
			mockBehavior: func(repo *repo_mocks.MockRepository) {},
			wantErr:      errs.ErrMembershipExpired,
		},
		{
			name: "account suspended",
			user: func() model.User {
				u := activeUser("alice", 5)
				u.Status = model.AccountSuspended
				return u
			},
			book:         availableBook,
			mockBehavior: func(repo *repo_mocks.MockRepository) {},
			wantErr:      errs.ErrMembershipExpired,
		},
		{
			name: "loan limit reached",
			user: func() model.User { return activeUser("alice", 2) },
			book: availableBook,
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(2, nil)
			},
			wantErr: errs.ErrLoanLimitReached,
		},
		{
			name: "no copies on shelf",
			user: func() model.User { return activeUser("alice", 5) },
			book: model.Book{BookUid: "b1", TotalCopies: 3, AvailableCopies: 0},
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(0, nil)
			},
			wantErr: errs.ErrBookUnavailable,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, repo, _ := newTestService(t)
			tt.mockBehavior(repo)

			err := svc.CanIssue(ctx, tt.user(), tt.book)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestService_IssueBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		passthroughTx(repo)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().GetBook(ctx, "b1").
			Return(model.Book{BookUid: "b1", TotalCopies: 3, AvailableCopies: 1}, nil)
		repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(0, nil)
		repo.EXPECT().DecrementAvailable(ctx, "b1").Return(nil)
		repo.EXPECT().
			CreateTransaction(ctx, model.Transaction{
				Username:  "alice",
				BookUid:   "b1",
				IssueDate: now,
				DueDate:   now.AddDate(0, 0, 14),
				IssuedBy:  "librarian",
			}).
			DoAndReturn(func(_ context.Context, trx model.Transaction) (model.Transaction, error) {
				trx.TransactionUid = "t1"
				trx.Status = model.TransactionIssued
				return trx, nil
			})

		trx, err := svc.IssueBook(ctx, model.IssueBookRequest{
			Username: "alice",
			BookUid:  "b1",
			IssuedBy: "librarian",
		})
		require.NoError(t, err)
		require.Equal(t, "t1", trx.TransactionUid)
		require.Equal(t, now.AddDate(0, 0, 14), trx.DueDate)
	})

	t.Run("due date from request", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		due := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

		passthroughTx(repo)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().GetBook(ctx, "b1").
			Return(model.Book{BookUid: "b1", TotalCopies: 3, AvailableCopies: 1}, nil)
		repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(0, nil)
		repo.EXPECT().DecrementAvailable(ctx, "b1").Return(nil)
		repo.EXPECT().
			CreateTransaction(ctx, model.Transaction{
				Username:  "alice",
				BookUid:   "b1",
				IssueDate: now,
				DueDate:   due,
				IssuedBy:  "librarian",
			}).
			Return(model.Transaction{TransactionUid: "t1", DueDate: due}, nil)

		trx, err := svc.IssueBook(ctx, model.IssueBookRequest{
			Username: "alice",
			BookUid:  "b1",
			DueDate:  &model.Date{Time: due},
			IssuedBy: "librarian",
		})
		require.NoError(t, err)
		require.Equal(t, due, trx.DueDate)
	})

	t.Run("loan limit reached, nothing written", func(t *testing.T) {
		t.Parallel()
		svc, repo, _ := newTestService(t)
		passthroughTx(repo)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 1), nil)
		repo.EXPECT().GetBook(ctx, "b1").
			Return(model.Book{BookUid: "b1", TotalCopies: 3, AvailableCopies: 1}, nil)
		repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(1, nil)

		_, err := svc.IssueBook(ctx, model.IssueBookRequest{
			Username: "alice",
			BookUid:  "b1",
			IssuedBy: "librarian",
		})
		require.ErrorIs(t, err, errs.ErrLoanLimitReached)
	})

	t.Run("lost the last copy to a concurrent issue", func(t *testing.T) {
		t.Parallel()
		svc, repo, _ := newTestService(t)
		passthroughTx(repo)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().GetBook(ctx, "b1").
			Return(model.Book{BookUid: "b1", TotalCopies: 3, AvailableCopies: 1}, nil)
		repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(0, nil)
		repo.EXPECT().DecrementAvailable(ctx, "b1").Return(errs.ErrNoCopiesAvailable)

		_, err := svc.IssueBook(ctx, model.IssueBookRequest{
			Username: "alice",
			BookUid:  "b1",
			IssuedBy: "librarian",
		})
		require.ErrorIs(t, err, errs.ErrNoCopiesAvailable)
	})
}

func TestService_ReturnBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("overdue return charges a fine and hands the copy to the oldest hold", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		due := now.AddDate(0, 0, -10)
		closed := model.Transaction{
			TransactionUid: "t1",
			Username:       "alice",
			BookUid:        "b1",
			DueDate:        due,
			ReturnDate:     &now,
			Status:         model.TransactionReturned,
			FineAmount:     5,
		}

		passthroughTx(repo)
		repo.EXPECT().GetTransaction(ctx, "t1").
			Return(model.Transaction{TransactionUid: "t1", BookUid: "b1", DueDate: due}, nil)
		repo.EXPECT().
			CloseTransaction(ctx, "t1", "librarian", "", now, 5.0, false).
			Return(closed, nil)
		repo.EXPECT().IncrementAvailable(ctx, "b1").Return(nil)
		repo.EXPECT().OldestActiveReservation(ctx, "b1").
			Return(model.Reservation{ReservationUid: "r1", Username: "bob", BookUid: "b1"}, nil)
		repo.EXPECT().FulfillReservation(ctx, "r1").
			Return(model.Reservation{
				ReservationUid: "r1",
				Username:       "bob",
				BookUid:        "b1",
				Status:         model.ReservationFulfilled,
				Notified:       true,
			}, nil)

		trx, err := svc.ReturnBook(ctx, model.ReturnBookRequest{
			TransactionUid: "t1",
			ReturnedTo:     "librarian",
		})
		require.NoError(t, err)
		require.Equal(t, 5.0, trx.FineAmount)
		require.False(t, trx.FinePaid)
	})

	t.Run("on-time return settles clean", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		due := now.AddDate(0, 0, 4)
		closed := model.Transaction{
			TransactionUid: "t1",
			Username:       "alice",
			BookUid:        "b1",
			DueDate:        due,
			ReturnDate:     &now,
			Status:         model.TransactionReturned,
			FinePaid:       true,
		}

		passthroughTx(repo)
		repo.EXPECT().GetTransaction(ctx, "t1").
			Return(model.Transaction{TransactionUid: "t1", BookUid: "b1", DueDate: due}, nil)
		repo.EXPECT().
			CloseTransaction(ctx, "t1", "librarian", "", now, 0.0, true).
			Return(closed, nil)
		repo.EXPECT().IncrementAvailable(ctx, "b1").Return(nil)
		repo.EXPECT().OldestActiveReservation(ctx, "b1").
			Return(model.Reservation{}, errs.ErrNotFound)

		trx, err := svc.ReturnBook(ctx, model.ReturnBookRequest{
			TransactionUid: "t1",
			ReturnedTo:     "librarian",
		})
		require.NoError(t, err)
		require.Zero(t, trx.FineAmount)
	})

	t.Run("hold cancelled mid-flight is not an error", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		due := now.AddDate(0, 0, 4)

		passthroughTx(repo)
		repo.EXPECT().GetTransaction(ctx, "t1").
			Return(model.Transaction{TransactionUid: "t1", BookUid: "b1", DueDate: due}, nil)
		repo.EXPECT().
			CloseTransaction(ctx, "t1", "librarian", "", now, 0.0, true).
			Return(model.Transaction{
				TransactionUid: "t1",
				BookUid:        "b1",
				ReturnDate:     &now,
			}, nil)
		repo.EXPECT().IncrementAvailable(ctx, "b1").Return(nil)
		repo.EXPECT().OldestActiveReservation(ctx, "b1").
			Return(model.Reservation{ReservationUid: "r1"}, nil)
		repo.EXPECT().FulfillReservation(ctx, "r1").
			Return(model.Reservation{}, errs.ErrNotActive)

		_, err := svc.ReturnBook(ctx, model.ReturnBookRequest{
			TransactionUid: "t1",
			ReturnedTo:     "librarian",
		})
		require.NoError(t, err)
	})

	t.Run("already returned", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		ret := now.AddDate(0, 0, -1)

		passthroughTx(repo)
		repo.EXPECT().GetTransaction(ctx, "t1").
			Return(model.Transaction{TransactionUid: "t1", BookUid: "b1", ReturnDate: &ret}, nil)
		repo.EXPECT().
			CloseTransaction(ctx, "t1", "librarian", "", now, gomock.Any(), gomock.Any()).
			Return(model.Transaction{}, errs.ErrAlreadyReturned)

		_, err := svc.ReturnBook(ctx, model.ReturnBookRequest{
			TransactionUid: "t1",
			ReturnedTo:     "librarian",
		})
		require.ErrorIs(t, err, errs.ErrAlreadyReturned)
	})
}

func TestService_CreateReservation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default expiry is a week out", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().GetBook(ctx, "b1").Return(model.Book{BookUid: "b1"}, nil)
		repo.EXPECT().
			CreateReservation(ctx, model.Reservation{
				Username:        "alice",
				BookUid:         "b1",
				ReservationDate: now,
				ExpiryDate:      now.AddDate(0, 0, 7),
			}).
			DoAndReturn(func(_ context.Context, rsv model.Reservation) (model.Reservation, error) {
				rsv.ReservationUid = "r1"
				rsv.Status = model.ReservationActive
				return rsv, nil
			})

		rsv, err := svc.CreateReservation(ctx, model.CreateReservationRequest{
			BookUid:  "b1",
			Username: "alice",
		})
		require.NoError(t, err)
		require.Equal(t, now.AddDate(0, 0, 7), rsv.ExpiryDate)
	})

	t.Run("expiry in the past rejected", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().GetBook(ctx, "b1").Return(model.Book{BookUid: "b1"}, nil)

		_, err := svc.CreateReservation(ctx, model.CreateReservationRequest{
			BookUid:    "b1",
			ExpiryDate: &model.Date{Time: now.AddDate(0, 0, -1)},
			Username:   "alice",
		})
		require.Error(t, err)
	})

	t.Run("unknown book", func(t *testing.T) {
		t.Parallel()
		svc, repo, _ := newTestService(t)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().GetBook(ctx, "nope").Return(model.Book{}, errs.ErrNotFound)

		_, err := svc.CreateReservation(ctx, model.CreateReservationRequest{
			BookUid:  "nope",
			Username: "alice",
		})
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestService_CancelReservation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var tests = []struct {
		name         string
		actor        string
		isStaff      bool
		mockBehavior func(repo *repo_mocks.MockRepository)
		wantErr      error
	}{
		{
			name:  "owner cancels",
			actor: "alice",
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().GetReservation(ctx, "r1").
					Return(model.Reservation{ReservationUid: "r1", Username: "alice"}, nil)
				repo.EXPECT().CancelReservation(ctx, "r1").
					Return(model.Reservation{ReservationUid: "r1", Status: model.ReservationCancelled}, nil)
			},
		},
		{
			name:    "staff cancels for someone else",
			actor:   "librarian",
			isStaff: true,
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().GetReservation(ctx, "r1").
					Return(model.Reservation{ReservationUid: "r1", Username: "alice"}, nil)
				repo.EXPECT().CancelReservation(ctx, "r1").
					Return(model.Reservation{ReservationUid: "r1", Status: model.ReservationCancelled}, nil)
			},
		},
		{
			name:  "stranger denied",
			actor: "mallory",
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().GetReservation(ctx, "r1").
					Return(model.Reservation{ReservationUid: "r1", Username: "alice"}, nil)
			},
			wantErr: errs.ErrNotOwnerOrStaff,
		},
		{
			name:  "already fulfilled",
			actor: "alice",
			mockBehavior: func(repo *repo_mocks.MockRepository) {
				repo.EXPECT().GetReservation(ctx, "r1").
					Return(model.Reservation{ReservationUid: "r1", Username: "alice"}, nil)
				repo.EXPECT().CancelReservation(ctx, "r1").
					Return(model.Reservation{}, errs.ErrNotActive)
			},
			wantErr: errs.ErrNotActive,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, repo, _ := newTestService(t)
			tt.mockBehavior(repo)

			_, err := svc.CancelReservation(ctx, "r1", tt.actor, tt.isStaff)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestService_GetUserProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("active member under the limit", func(t *testing.T) {
		t.Parallel()
		svc, repo, _ := newTestService(t)
		repo.EXPECT().GetUser(ctx, "alice").Return(activeUser("alice", 5), nil)
		repo.EXPECT().ActiveLoanCount(ctx, "alice").Return(2, nil)

		profile, err := svc.GetUserProfile(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, 2, profile.BooksIssuedCount)
		require.True(t, profile.CanIssue)
		require.True(t, profile.MembershipIsActive)
	})

	t.Run("lapsed membership blocks issue regardless of count", func(t *testing.T) {
		t.Parallel()
		svc, repo, now := newTestService(t)
		ended := now.AddDate(0, -1, 0)
		u := activeUser("bob", 5)
		u.MembershipEnd = &ended
		repo.EXPECT().GetUser(ctx, "bob").Return(u, nil)
		repo.EXPECT().ActiveLoanCount(ctx, "bob").Return(0, nil)

		profile, err := svc.GetUserProfile(ctx, "bob")
		require.NoError(t, err)
		require.False(t, profile.CanIssue)
		require.False(t, profile.MembershipIsActive)
	})
}

func TestService_SweepReservations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, repo, now := newTestService(t)
	repo.EXPECT().ExpireReservations(ctx, now).Return(int64(3), nil)

	count, err := svc.SweepReservations(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	// nothing left to expire on the second pass
	repo.EXPECT().ExpireReservations(ctx, now).Return(int64(0), nil)
	count, err = svc.SweepReservations(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

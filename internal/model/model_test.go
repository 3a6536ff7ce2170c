package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openshelf/library-service/internal/model"
)

func TestUser_IsMembershipActive(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	past := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	future := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var tests = []struct {
		name string
		user model.User
		want bool
	}{
		{
			name: "open-ended membership",
			user: model.User{Status: model.AccountActive},
			want: true,
		},
		{
			name: "ends in the future",
			user: model.User{Status: model.AccountActive, MembershipEnd: &future},
			want: true,
		},
		{
			name: "ends today still counts",
			user: model.User{Status: model.AccountActive, MembershipEnd: &today},
			want: true,
		},
		{
			name: "ended last week",
			user: model.User{Status: model.AccountActive, MembershipEnd: &past},
			want: false,
		},
		{
			name: "suspended account",
			user: model.User{Status: model.AccountSuspended, MembershipEnd: &future},
			want: false,
		},
		{
			name: "inactive account with open-ended membership",
			user: model.User{Status: model.AccountInactive},
			want: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.user.IsMembershipActive(now))
		})
	}
}

func TestUser_CanIssueBooks(t *testing.T) {
	t.Parallel()
	u := model.User{MaxBooksAllowed: 3}
	require.True(t, u.CanIssueBooks(0))
	require.True(t, u.CanIssueBooks(2))
	require.False(t, u.CanIssueBooks(3))
	require.False(t, u.CanIssueBooks(4))
}

func TestBook_IsAvailable(t *testing.T) {
	t.Parallel()
	// availability follows the counter, not the status tag
	require.True(t, model.Book{Status: model.BookIssued, TotalCopies: 2, AvailableCopies: 1}.IsAvailable())
	require.False(t, model.Book{Status: model.BookAvailable, TotalCopies: 2, AvailableCopies: 0}.IsAvailable())
	require.Equal(t, 2, model.Book{TotalCopies: 3, AvailableCopies: 1}.IssuedCopies())
}

func TestTransaction_DaysOverdue(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	returned := time.Date(2024, 1, 11, 9, 30, 0, 0, time.UTC)

	var tests = []struct {
		name string
		trx  model.Transaction
		now  time.Time
		want int
	}{
		{
			name: "open loan before due",
			trx:  model.Transaction{DueDate: due},
			now:  due.AddDate(0, 0, -5),
			want: 0,
		},
		{
			name: "open loan on due date",
			trx:  model.Transaction{DueDate: due},
			now:  due.Add(20 * time.Hour),
			want: 0,
		},
		{
			name: "open loan ten days past due",
			trx:  model.Transaction{DueDate: due},
			now:  due.AddDate(0, 0, 10),
			want: 10,
		},
		{
			name: "closed loan measures against return date",
			trx:  model.Transaction{DueDate: due, ReturnDate: &returned},
			now:  due.AddDate(0, 0, 100),
			want: 10,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.trx.DaysOverdue(tt.now))
		})
	}
}

func TestTransaction_IsOverdue(t *testing.T) {
	t.Parallel()
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	returned := due.AddDate(0, 0, 5)

	open := model.Transaction{DueDate: due}
	require.True(t, open.IsActive())
	require.True(t, open.IsOverdue(due.AddDate(0, 0, 1)))
	require.False(t, open.IsOverdue(due))

	closed := model.Transaction{DueDate: due, ReturnDate: &returned}
	require.False(t, closed.IsActive())
	// a closed loan is never overdue, however late it came back
	require.False(t, closed.IsOverdue(due.AddDate(0, 0, 30)))
}

func TestReservation_IsExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	active := model.Reservation{Status: model.ReservationActive, ExpiryDate: now.AddDate(0, 0, -1)}
	require.True(t, active.IsExpired(now))

	live := model.Reservation{Status: model.ReservationActive, ExpiryDate: now.AddDate(0, 0, 1)}
	require.False(t, live.IsExpired(now))

	cancelled := model.Reservation{Status: model.ReservationCancelled, ExpiryDate: now.AddDate(0, 0, -1)}
	require.False(t, cancelled.IsExpired(now))
}

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	var req model.IssueBookRequest
	err := json.Unmarshal([]byte(`{"username":"alice","bookUid":"b1","dueDate":"2024-01-15"}`), &req)
	require.NoError(t, err)
	require.NotNil(t, req.DueDate)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), req.DueDate.Time)

	b, err := json.Marshal(model.Date{Time: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, `"2024-01-15"`, string(b))

	b, err = json.Marshal(model.Date{})
	require.NoError(t, err)
	require.Equal(t, `null`, string(b))

	var d model.Date
	require.Error(t, d.UnmarshalJSON([]byte(`"15.01.2024"`)))
}

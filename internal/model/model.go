package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStaff    Role = "staff"
	RoleStudent  Role = "student"
	RoleExternal Role = "external"
	RoleFaculty  Role = "faculty"
)

func (r Role) IsStaff() bool { return r == RoleStaff }

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

type User struct {
	ID              int           `json:"-" db:"id"`
	Username        string        `json:"username" db:"username"`
	Email           string        `json:"email" db:"email"`
	Role            Role          `json:"role" db:"role"`
	Status          AccountStatus `json:"status" db:"status"`
	MaxBooksAllowed int           `json:"maxBooksAllowed" db:"max_books_allowed"`
	MembershipStart time.Time     `json:"membershipStart" db:"membership_start"`
	MembershipEnd   *time.Time    `json:"membershipEnd,omitempty" db:"membership_end"`
	CreatedAt       time.Time     `json:"-" db:"created_at"`
}

// IsMembershipActive reports whether the membership window covers now
// and the account has not been deactivated or suspended.
func (u User) IsMembershipActive(now time.Time) bool {
	if u.Status != AccountActive {
		return false
	}
	if u.MembershipEnd == nil {
		return true
	}
	return !toDate(*u.MembershipEnd).Before(toDate(now))
}

// CanIssueBooks reports whether one more loan is allowed given the
// current number of active loans.
func (u User) CanIssueBooks(activeLoans int) bool {
	return activeLoans < u.MaxBooksAllowed
}

// UserProfile is a user record enriched with derived circulation fields.
type UserProfile struct {
	User
	BooksIssuedCount   int  `json:"booksIssuedCount"`
	CanIssue           bool `json:"canIssueBooks"`
	MembershipIsActive bool `json:"isMembershipActive"`
}

type BookStatus string

const (
	BookAvailable   BookStatus = "available"
	BookIssued      BookStatus = "issued"
	BookReserved    BookStatus = "reserved"
	BookMaintenance BookStatus = "maintenance"
	BookLost        BookStatus = "lost"
)

type Book struct {
	ID              int        `json:"-" db:"id"`
	BookUid         string     `json:"bookUid" db:"book_uid"`
	Title           string     `json:"title" db:"title"`
	Author          string     `json:"author" db:"author"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Category        string     `json:"category" db:"category"`
	Condition       string     `json:"condition" db:"condition"`
	Location        string     `json:"location" db:"location"`
	Status          BookStatus `json:"status" db:"status"`
	TotalCopies     int        `json:"totalCopies" db:"total_copies"`
	AvailableCopies int        `json:"availableCopies" db:"available_copies"`
	CreatedAt       time.Time  `json:"-" db:"created_at"`
}

// IsAvailable is the authoritative availability signal; the status tag
// is a display summary only.
func (b Book) IsAvailable() bool { return b.AvailableCopies > 0 }

func (b Book) IssuedCopies() int { return b.TotalCopies - b.AvailableCopies }

type TransactionStatus string

const (
	TransactionIssued   TransactionStatus = "issued"
	TransactionReturned TransactionStatus = "returned"
	TransactionOverdue  TransactionStatus = "overdue"
	TransactionLost     TransactionStatus = "lost"
)

type Transaction struct {
	ID             int               `json:"-" db:"id"`
	TransactionUid string            `json:"transactionUid" db:"transaction_uid"`
	Username       string            `json:"username" db:"username"`
	BookUid        string            `json:"bookUid" db:"book_uid"`
	IssueDate      time.Time         `json:"issueDate" db:"issue_date"`
	DueDate        time.Time         `json:"dueDate" db:"due_date"`
	ReturnDate     *time.Time        `json:"returnDate,omitempty" db:"return_date"`
	Status         TransactionStatus `json:"status" db:"status"`
	FineAmount     float64           `json:"fineAmount" db:"fine_amount"`
	FinePaid       bool              `json:"finePaid" db:"fine_paid"`
	IssuedBy       string            `json:"issuedBy" db:"issued_by"`
	ReturnedTo     *string           `json:"returnedTo,omitempty" db:"returned_to"`
	Remarks        string            `json:"remarks,omitempty" db:"remarks"`
	CreatedAt      time.Time         `json:"-" db:"created_at"`
}

// IsActive: a loan is open while return_date is null, regardless of the
// status tag.
func (t Transaction) IsActive() bool { return t.ReturnDate == nil }

func (t Transaction) DaysOverdue(now time.Time) int {
	ref := now
	if t.ReturnDate != nil {
		ref = *t.ReturnDate
	}
	days := daysBetween(t.DueDate, ref)
	if days < 0 {
		return 0
	}
	return days
}

func (t Transaction) IsOverdue(now time.Time) bool {
	return t.IsActive() && t.DaysOverdue(now) > 0
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	ID              int               `json:"-" db:"id"`
	ReservationUid  string            `json:"reservationUid" db:"reservation_uid"`
	Username        string            `json:"username" db:"username"`
	BookUid         string            `json:"bookUid" db:"book_uid"`
	ReservationDate time.Time         `json:"reservationDate" db:"reservation_date"`
	ExpiryDate      time.Time         `json:"expiryDate" db:"expiry_date"`
	Status          ReservationStatus `json:"status" db:"status"`
	Notified        bool              `json:"notified" db:"notified"`
	Remarks         string            `json:"remarks,omitempty" db:"remarks"`
	CreatedAt       time.Time         `json:"-" db:"created_at"`
}

func (r Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && r.ExpiryDate.Before(now)
}

// Date accepts "2006-01-02" in request payloads.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

func toDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(toDate(to).Sub(toDate(from)) / (24 * time.Hour))
}

type IssueBookRequest struct {
	Username string `json:"username" validate:"required"`
	BookUid  string `json:"bookUid" validate:"required,uuid"`
	DueDate  *Date  `json:"dueDate,omitempty"`
	Remarks  string `json:"remarks,omitempty"`
	IssuedBy string `json:"-" validate:"required"`
}

type ReturnBookRequest struct {
	TransactionUid string `json:"transactionUid" validate:"required,uuid"`
	Remarks        string `json:"remarks,omitempty"`
	ReturnedTo     string `json:"-" validate:"required"`
}

type CreateReservationRequest struct {
	BookUid    string `json:"bookUid" validate:"required,uuid"`
	ExpiryDate *Date  `json:"expiryDate,omitempty"`
	Username   string `json:"-" validate:"required"`
}

type CreateBookRequest struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	ISBN        string `json:"isbn" validate:"required,min=10,max=13"`
	Category    string `json:"category"`
	Condition   string `json:"condition" validate:"omitempty,oneof=new good fair poor"`
	Location    string `json:"location"`
	TotalCopies int    `json:"totalCopies" validate:"required,min=1"`
}

type UpdateBookRequest struct {
	Title     *string `json:"title,omitempty"`
	Author    *string `json:"author,omitempty"`
	Category  *string `json:"category,omitempty"`
	Condition *string `json:"condition,omitempty" validate:"omitempty,oneof=new good fair poor"`
	Location  *string `json:"location,omitempty"`
}

type BookFilter struct {
	Title         string
	Author        string
	ISBN          string
	Category      string
	AvailableOnly bool
	Page          int
	Size          int
}

type TransactionFilter struct {
	Username   string
	BookUid    string
	Status     TransactionStatus
	Overdue    bool
	UnpaidFine bool
	Page       int
	Size       int
}

type ReservationFilter struct {
	Username string
	BookUid  string
	Status   ReservationStatus
	Page     int
	Size     int
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging
	Items []Book `json:"items"`
}

type ListTransactions struct {
	Paging
	Items []Transaction `json:"items"`
}

type ListReservations struct {
	Paging
	Items []Reservation `json:"items"`
}

type BookStatistics struct {
	TotalBooks      int `json:"totalBooks" db:"total_books"`
	AvailableBooks  int `json:"availableBooks" db:"available_books"`
	IssuedBooks     int `json:"issuedBooks" db:"issued_books"`
	TotalCopies     int `json:"totalCopies" db:"total_copies"`
	AvailableCopies int `json:"availableCopies" db:"available_copies"`
}

type TransactionStatistics struct {
	TotalTransactions   int     `json:"totalTransactions" db:"total_transactions"`
	ActiveTransactions  int     `json:"activeTransactions" db:"active_transactions"`
	OverdueTransactions int     `json:"overdueTransactions" db:"overdue_transactions"`
	TotalUnpaidFines    float64 `json:"totalUnpaidFines" db:"total_unpaid_fines"`
}

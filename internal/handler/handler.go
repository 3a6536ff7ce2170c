package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/internal/errs"
	"github.com/openshelf/library-service/internal/model"
	"github.com/openshelf/library-service/pkg/auth"
	mw "github.com/openshelf/library-service/pkg/middleware"
	"github.com/openshelf/library-service/pkg/validate"
)

type Handler struct {
	circulationSvc CirculationService
	log            *zap.Logger
}

func New(circulationSvc CirculationService, log *zap.Logger) *Handler {
	return &Handler{
		circulationSvc: circulationSvc,
		log:            log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", mw.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(mw.RequestLoggerConfig(h.log.Named("echo"))),
		middleware.RequestID(),
		mw.NewRateLimiter(apiRPS),
		mw.JwtAuthentication,
	)

	api.GET("/books", h.GetBooks)
	api.GET("/books/statistics", h.BookStatistics)
	api.GET("/books/:bookUid", h.GetBook)
	api.POST("/books", h.CreateBook, mw.StaffOnly)
	api.PUT("/books/:bookUid", h.UpdateBook, mw.StaffOnly)

	api.GET("/users/:username", h.GetUser)

	api.GET("/transactions", h.GetTransactions)
	api.GET("/transactions/statistics", h.TransactionStatistics, mw.StaffOnly)
	api.POST("/transactions/issue", h.IssueBook, mw.StaffOnly)
	api.POST("/transactions/return", h.ReturnBook, mw.StaffOnly)
	api.POST("/transactions/:transactionUid/fine/paid", h.FinePaid, mw.StaffOnly)

	api.GET("/reservations", h.GetReservations)
	api.POST("/reservations", h.CreateReservation)
	api.POST("/reservations/:reservationUid/cancel", h.CancelReservation)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps the circulation denial taxonomy onto transport status
// codes. Storage faults fall through as 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrNotOwnerOrStaff):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, errs.ErrMembershipExpired),
		errors.Is(err, errs.ErrLoanLimitReached),
		errors.Is(err, errs.ErrBookUnavailable),
		errors.Is(err, errs.ErrNoCopiesAvailable),
		errors.Is(err, errs.ErrExceedsTotal),
		errors.Is(err, errs.ErrAlreadyReturned),
		errors.Is(err, errs.ErrNoOutstandingFine),
		errors.Is(err, errs.ErrNotActive),
		errors.Is(err, errs.ErrDuplicateReservation):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) GetBooks(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	available, _ := strconv.ParseBool(c.QueryParam("available"))
	filter := model.BookFilter{
		Title:         c.QueryParam("title"),
		Author:        c.QueryParam("author"),
		ISBN:          c.QueryParam("isbn"),
		Category:      c.QueryParam("category"),
		AvailableOnly: available,
		Page:          page,
		Size:          size,
	}
	books, err := h.circulationSvc.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	bookUid := c.Param("bookUid")
	if bookUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty bookUid")
	}
	book, err := h.circulationSvc.GetBook(c.Request().Context(), bookUid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.circulationSvc.CreateBook(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	bookUid := c.Param("bookUid")
	if bookUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty bookUid")
	}
	var req model.UpdateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.circulationSvc.UpdateBook(c.Request().Context(), bookUid, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) BookStatistics(c echo.Context) error {
	stats, err := h.circulationSvc.BookStatistics(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetUser(c echo.Context) error {
	ctx := c.Request().Context()
	username := c.Param("username")
	actor, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if username != actor && !auth.IsStaff(ctx) {
		return echo.NewHTTPError(http.StatusForbidden, errs.ErrNotOwnerOrStaff.Error())
	}
	profile, err := h.circulationSvc.GetUserProfile(ctx, username)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (h *Handler) GetTransactions(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	overdue, _ := strconv.ParseBool(c.QueryParam("overdue"))
	unpaidFine, _ := strconv.ParseBool(c.QueryParam("unpaidFine"))
	filter := model.TransactionFilter{
		Username:   c.QueryParam("username"),
		BookUid:    c.QueryParam("bookUid"),
		Status:     model.TransactionStatus(c.QueryParam("status")),
		Overdue:    overdue,
		UnpaidFine: unpaidFine,
		Page:       page,
		Size:       size,
	}
	// patrons see their own rows only
	if !auth.IsStaff(ctx) {
		filter.Username = actor
	}
	items, err := h.circulationSvc.ListTransactions(ctx, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) TransactionStatistics(c echo.Context) error {
	stats, err := h.circulationSvc.TransactionStatistics(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) IssueBook(c echo.Context) error {
	ctx := c.Request().Context()
	issuer, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req model.IssueBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.IssuedBy = issuer
	if err := c.Validate(req); err != nil {
		return err
	}
	trx, err := h.circulationSvc.IssueBook(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, trx)
}

func (h *Handler) ReturnBook(c echo.Context) error {
	ctx := c.Request().Context()
	receiver, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req model.ReturnBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ReturnedTo = receiver
	if err := c.Validate(req); err != nil {
		return err
	}
	trx, err := h.circulationSvc.ReturnBook(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, trx)
}

func (h *Handler) FinePaid(c echo.Context) error {
	transactionUid := c.Param("transactionUid")
	if transactionUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "empty transactionUid")
	}
	trx, err := h.circulationSvc.MarkFinePaid(c.Request().Context(), transactionUid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, trx)
}

func (h *Handler) GetReservations(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	filter := model.ReservationFilter{
		Username: c.QueryParam("username"),
		BookUid:  c.QueryParam("bookUid"),
		Status:   model.ReservationStatus(c.QueryParam("status")),
		Page:     page,
		Size:     size,
	}
	if !auth.IsStaff(ctx) {
		filter.Username = actor
	}
	items, err := h.circulationSvc.ListReservations(ctx, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateReservation(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	var req model.CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Username = actor
	if err := c.Validate(req); err != nil {
		return err
	}
	rsv, err := h.circulationSvc.CreateReservation(ctx, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rsv)
}

func (h *Handler) CancelReservation(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.UserName(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	reservationUid := c.Param("reservationUid")
	if reservationUid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reservationUid is empty")
	}
	rsv, err := h.circulationSvc.CancelReservation(ctx, reservationUid, actor, auth.IsStaff(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rsv)
}

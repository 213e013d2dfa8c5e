package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/aquaparkhq/booking-backend/internal/dto"
	"github.com/aquaparkhq/booking-backend/internal/models"
	"github.com/aquaparkhq/booking-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

type BookingHandler struct {
	svc service.BookingService
}

func NewBookingHandler(svc service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// RegisterRoutes wires the booking endpoints. pollLimiter guards the
// client-polled verify/status routes.
func (h *BookingHandler) RegisterRoutes(e *echo.Echo, pollLimiter echo.MiddlewareFunc) {
	bookings := e.Group("/api/v1/bookings")
	bookings.POST("", h.CreateBooking)
	bookings.POST("/webhook", h.Webhook)
	bookings.POST("/verify", h.VerifyPayment, pollLimiter)
	bookings.POST("/:code/pay", h.InitiatePayment)
	bookings.GET("/:code/status", h.CheckStatus, pollLimiter)
	bookings.GET("/:code", h.GetBooking)
	bookings.PUT("/:code", h.UpdateBooking)

	e.GET("/api/v1/parks/:id/bookings", h.ListBookings)
}

func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req dto.CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.CreateBooking(c.Request().Context(), service.CreateBookingInput{
		ParkID:        req.ParkID,
		CustomerName:  req.CustomerName,
		Email:         req.Email,
		Phone:         req.Phone,
		VisitDate:     req.VisitDate,
		Adults:        req.Adults,
		Children:      req.Children,
		TotalAmount:   req.TotalAmount,
		AdvanceAmount: req.AdvanceAmount,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		RedirectURL:   req.RedirectURL,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, dto.CreateBookingResponse{
		BookingResponse: dto.ToBookingResponse(result.Booking),
		RedirectURL:     result.RedirectURL,
	})
}

// Webhook receives gateway callbacks. The gateway retries on non-2xx, so
// idempotent no-ops answer 200 like a fresh transition does.
func (h *BookingHandler) Webhook(c echo.Context) error {
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil || len(rawBody) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty request body")
	}

	result, err := h.svc.HandleWebhook(c.Request().Context(), rawBody, c.Request().Header.Get(SignatureHeader))
	if err != nil {
		return mapServiceError(err)
	}

	if !result.Handled {
		return c.JSON(http.StatusOK, dto.WebhookResponse{Status: "ignored"})
	}
	return c.JSON(http.StatusOK, dto.WebhookResponse{
		Status:      "ok",
		BookingCode: result.Booking.BookingCode,
		Applied:     result.Transitioned,
	})
}

func (h *BookingHandler) VerifyPayment(c echo.Context) error {
	var req dto.VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id is required")
	}

	booking, err := h.svc.VerifyPayment(c.Request().Context(), req.OrderID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) InitiatePayment(c echo.Context) error {
	var req dto.InitiatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.InitiatePayment(c.Request().Context(), c.Param("code"), req.RedirectURL)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, dto.CreateBookingResponse{
		BookingResponse: dto.ToBookingResponse(result.Booking),
		RedirectURL:     result.RedirectURL,
	})
}

func (h *BookingHandler) CheckStatus(c echo.Context) error {
	booking, err := h.svc.CheckStatus(c.Request().Context(), c.Param("code"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	anyStatus := c.QueryParam("any_status") == "true"
	booking, err := h.svc.GetBooking(c.Request().Context(), c.Param("code"), anyStatus)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) UpdateBooking(c echo.Context) error {
	var req dto.UpdateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	booking, err := h.svc.UpdateBooking(c.Request().Context(), c.Param("code"), service.UpdateBookingInput{
		CustomerName: req.CustomerName,
		Email:        req.Email,
		Phone:        req.Phone,
		VisitDate:    req.VisitDate,
		Adults:       req.Adults,
		Children:     req.Children,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, dto.ToBookingResponse(booking))
}

func (h *BookingHandler) ListBookings(c echo.Context) error {
	parkID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid park id")
	}

	var status *models.PaymentStatus
	if s := c.QueryParam("status"); s != "" {
		ps := models.PaymentStatus(s)
		status = &ps
	}

	bookings, err := h.svc.ListBookings(c.Request().Context(), uint(parkID), status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]dto.BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = dto.ToBookingResponse(&b)
	}
	return c.JSON(http.StatusOK, resp)
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidSignature):
		// No detail beyond the fact of the mismatch.
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	case errors.Is(err, service.ErrBookingNotFound), errors.Is(err, service.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCodeConflict), errors.Is(err, service.ErrBookingImmutable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrGatewayTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, service.ErrGateway):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

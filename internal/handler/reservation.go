// Package handler holds the Echo handlers of the reservation API.  They
// validate input, translate tokens into service requests and map domain
// outcomes to HTTP statuses; all business rules live in the service layer.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/service"
	"github.com/iliyamo/table-reservation/internal/utils"
)

// Booker is the part of *service.ReservationService the handlers call.
type Booker interface {
	Search(ctx context.Context, q service.SearchQuery) (model.TablesByRestaurant, error)
	Reserve(ctx context.Context, req service.ReserveRequest) (uint64, error)
	Cancel(ctx context.Context, req service.CancelRequest) (bool, error)
	Upcoming(ctx context.Context, dinerID uint64) ([]model.Reservation, error)
}

// ReservationHandler serves search, reserve, cancel and listing for the
// authenticated diner.  JWTAuth must run first.
type ReservationHandler struct {
	Svc      Booker
	Secret   string        // signs availability tokens
	TokenTTL time.Duration // availability token lifetime
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewReservationHandler constructs a ReservationHandler.  svc must be non-nil.
func NewReservationHandler(svc Booker, secret string, tokenTTL time.Duration, logger *zap.Logger) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationHandler{Svc: svc, Secret: secret, TokenTTL: tokenTTL, Logger: logger, Now: time.Now}
}

type searchRequest struct {
	Diners              uint32    `json:"diners"`
	DinerIDs            []uint64  `json:"diner_ids"`
	ExtraRestrictionIDs []int     `json:"extra_restriction_ids"`
	Datetime            time.Time `json:"datetime"`
}

type reserveRequest struct {
	AvailabilityToken string `json:"availability_token"`
	RestaurantID      uint64 `json:"restaurant_id"`
}

// Search handles POST /v1/search.  The caller must be one of diner_ids and
// diners must cover every listed diner.  The response lists matching
// restaurants together with a signed availability token that Reserve
// accepts back.
func (h *ReservationHandler) Search(c echo.Context) error {
	callerID, ok := middleware.DinerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body searchRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	dinerIDs, msg := validateParty(callerID, body)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	// stored datetimes have second precision
	at := body.Datetime.UTC().Truncate(time.Second)
	ctx := c.Request().Context()
	tables, err := h.Svc.Search(ctx, service.SearchQuery{
		Diners:              body.Diners,
		DinerIDs:            dinerIDs,
		ExtraRestrictionIDs: body.ExtraRestrictionIDs,
		Datetime:            at,
	})
	if err != nil {
		return h.fail(c, err)
	}
	token, err := utils.EncodeAvailability(h.Secret, callerID, model.Availability{
		Diners:   body.Diners,
		DinerIDs: dinerIDs,
		Datetime: at,
		Tables:   tables,
	}, h.TokenTTL, h.Now())
	if err != nil {
		h.Logger.Error("sign availability token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"restaurant_ids":     tables.RestaurantIDs(),
		"availability_token": token,
	})
}

// validateParty returns the de-duplicated diner ids or a message
// describing why the party is malformed.
func validateParty(callerID uint64, body searchRequest) ([]uint64, string) {
	if body.Datetime.IsZero() {
		return nil, "datetime is required"
	}
	if len(body.DinerIDs) == 0 {
		return nil, "diner_ids is required"
	}
	ids := make([]uint64, 0, len(body.DinerIDs))
	seen := make(map[uint64]bool, len(body.DinerIDs))
	for _, id := range body.DinerIDs {
		if id == 0 {
			return nil, "diner_ids must be positive"
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if !seen[callerID] {
		return nil, "caller must be one of diner_ids"
	}
	if int(body.Diners) < len(ids) {
		return nil, "diners must be at least the number of diner_ids"
	}
	return ids, ""
}

// Reserve handles POST /v1/reservations.  It returns 201 with the new
// reservation id, 403 when the token was issued to another diner and 409
// when the table or a diner was taken in the meantime.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	callerID, ok := middleware.DinerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body reserveRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.AvailabilityToken == "" || body.RestaurantID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "availability_token and restaurant_id are required"})
	}
	issuedTo, snap, err := utils.DecodeAvailability(h.Secret, body.AvailabilityToken)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability token"})
	}
	if issuedTo != callerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "availability token belongs to another diner"})
	}

	id, err := h.Svc.Reserve(c.Request().Context(), service.ReserveRequest{
		CallerID:     callerID,
		RestaurantID: body.RestaurantID,
		Snapshot:     snap,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation_id": id})
}

// Cancel handles DELETE /v1/reservations/:id.  Any attendee may cancel
// before the reservation starts.  Unknown, past and foreign reservations
// all answer 404.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	callerID, ok := middleware.DinerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || resID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	removed, err := h.Svc.Cancel(c.Request().Context(), service.CancelRequest{CallerID: callerID, ReservationID: resID})
	if err != nil {
		return h.fail(c, err)
	}
	if !removed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ListUpcoming handles GET /v1/my-reservations.
func (h *ReservationHandler) ListUpcoming(c echo.Context) error {
	callerID, ok := middleware.DinerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Svc.Upcoming(c.Request().Context(), callerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// fail maps service errors: validation 400, contention 409, anything else 500.
func (h *ReservationHandler) fail(c echo.Context, err error) error {
	var busy *service.DinersUnavailableError
	switch {
	case errors.As(err, &busy):
		ids := busy.DinerIDs
		if ids == nil {
			ids = []uint64{}
		}
		return c.JSON(http.StatusConflict, echo.Map{
			"error":                 service.ErrNotAllDinersAvailable.Error(),
			"unavailable_diner_ids": ids,
		})
	case service.IsConflict(err):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case service.IsValidation(err):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	h.Logger.Error("request failed",
		zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

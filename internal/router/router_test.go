package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/service"
	"github.com/iliyamo/table-reservation/internal/utils"
)

type stubBooker struct{}

func (stubBooker) Search(context.Context, service.SearchQuery) (model.TablesByRestaurant, error) {
	return model.TablesByRestaurant{}, nil
}

func (stubBooker) Reserve(context.Context, service.ReserveRequest) (uint64, error) {
	return 1, nil
}

func (stubBooker) Cancel(context.Context, service.CancelRequest) (bool, error) {
	return true, nil
}

func (stubBooker) Upcoming(context.Context, uint64) ([]model.Reservation, error) {
	return []model.Reservation{}, nil
}

func TestRoutesRequireAccessToken(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, nil)
	RegisterReservations(e, handler.NewReservationHandler(stubBooker{}, "s", time.Minute, nil), "s", nil)

	tok, err := utils.NewAccessToken("s", 5, 5)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	cases := []struct {
		method, path, auth string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/v1/my-reservations", "", http.StatusUnauthorized},
		{http.MethodGet, "/v1/my-reservations", "Bearer " + tok.Token, http.StatusOK},
		{http.MethodDelete, "/v1/reservations/3", "Bearer " + tok.Token, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s %s: status=%d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

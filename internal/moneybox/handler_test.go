package moneybox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	boxes []MoneyBox
	err   error
}

func (s stubLister) List(context.Context) ([]MoneyBox, error) {
	return s.boxes, s.err
}

func newRouter(l Lister) http.Handler {
	r := chi.NewRouter()
	r.Route("/money-boxes", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), l).MountRoutes)
	return r
}

func TestListMoneyBoxes(t *testing.T) {
	r := newRouter(stubLister{boxes: []MoneyBox{{ID: 1, Name: "الصندوق الرئيسي", Amount: 1500}}})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/money-boxes", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got []MoneyBox
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, 1500.0, got[0].Amount)
}

func TestListMoneyBoxesFailure(t *testing.T) {
	r := newRouter(stubLister{err: errors.New("db down")})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/money-boxes", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")
}

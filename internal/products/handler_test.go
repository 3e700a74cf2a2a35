package products

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

type stubReader struct {
	items map[int64]Product
	err   error
}

func (s stubReader) Get(_ context.Context, id int64) (Product, error) {
	if s.err != nil {
		return Product{}, s.err
	}
	p, ok := s.items[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (s stubReader) ListInStock(context.Context) ([]Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Product
	for _, p := range s.items {
		if p.CurrentStock > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

func newRouter(r Reader) http.Handler {
	router := chi.NewRouter()
	router.Route("/products", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), r).MountRoutes)
	return router
}

func TestProductRoutes(t *testing.T) {
	r := newRouter(stubReader{items: map[int64]Product{
		1: {ID: 1, Name: "ثلاجة", CurrentStock: 2, SellingPrice: 900},
		2: {ID: 2, Name: "غسالة", CurrentStock: 0, SellingPrice: 700},
	}})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list []Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, int64(1), list[0].ID)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/9", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "product not found")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProductListEmptyAndFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(stubReader{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())

	rr = httptest.NewRecorder()
	newRouter(stubReader{err: errors.New("db down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIndex(t *testing.T) {
	idx := Index([]Product{{ID: 3, Name: "a"}, {ID: 4, Name: "b"}})
	require.Equal(t, "b", idx[4].Name)
	require.Len(t, idx, 2)
}

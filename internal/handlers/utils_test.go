package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/studex/apiserver/internal/services"
	"github.com/studex/apiserver/internal/store"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&services.Error{Kind: services.KindValidation}, http.StatusBadRequest},
		{&services.Error{Kind: services.KindAuth}, http.StatusUnauthorized},
		{&services.Error{Kind: services.KindForbidden}, http.StatusForbidden},
		{services.ErrListingNotFound, http.StatusNotFound},
		{services.ErrAlreadyPurchased, http.StatusConflict},
		{services.ErrListingUnavailable, http.StatusUnprocessableEntity},
		{fmt.Errorf("project 3: %w", services.ErrOwnListingPurchase), http.StatusBadRequest},
		{fmt.Errorf("load: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("insert: %w", store.ErrConflict), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestFailHidesDetailsInProduction(t *testing.T) {
	err := &services.Error{Kind: services.KindInternal, Message: "failed to create sale", Err: errors.New("pq: connection refused")}

	for _, production := range []bool{true, false} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
		NewResponder(nil, production).fail(rec, req, err)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.False(t, env.Success)
		require.Equal(t, "failed to create sale", env.Message)
		if production {
			require.Empty(t, env.Error)
		} else {
			require.Contains(t, env.Error, "connection refused")
		}
	}
}

func TestNewPagination(t *testing.T) {
	p := newPagination(2, 12, 30)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasNext)
	require.True(t, p.HasPrev)

	p = newPagination(1, 12, 0)
	require.Zero(t, p.TotalPages)
	require.False(t, p.HasNext)
	require.False(t, p.HasPrev)
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/explore", nil)
	page, limit, offset, err := parsePagination(req)
	require.NoError(t, err)
	require.Equal(t, 1, page)
	require.Equal(t, defaultLimit, limit)
	require.Zero(t, offset)

	req = httptest.NewRequest(http.MethodGet, "/explore?page=3&limit=500", nil)
	page, limit, offset, err = parsePagination(req)
	require.NoError(t, err)
	require.Equal(t, 3, page)
	require.Equal(t, maxLimit, limit)
	require.Equal(t, 2*maxLimit, offset)

	for _, query := range []string{"page=0", "page=x", "limit=-1"} {
		_, _, _, err := parsePagination(httptest.NewRequest(http.MethodGet, "/explore?"+query, nil))
		require.Error(t, err, query)
	}
}

func TestParseTags(t *testing.T) {
	require.Nil(t, parseTags(""))
	require.Equal(t, []string{"go", "redes"}, parseTags(`["go","redes"]`))
	require.Equal(t, []string{"go", "redes"}, parseTags(" go, ,redes "))
}

func TestParseOptionalFloat(t *testing.T) {
	v, err := parseOptionalFloat("")
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = parseOptionalFloat("12.5")
	require.NoError(t, err)
	require.InDelta(t, 12.5, *v, 1e-9)

	_, err = parseOptionalFloat("abc")
	require.Error(t, err)
}

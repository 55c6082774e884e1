package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelwatch/reelwatch/pkg/provider"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestFetchCurrentBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/now_playing", r.URL.Path)
		require.Equal(t, "secret", r.URL.Query().Get("api_key"))
		require.Equal(t, "en-US", r.URL.Query().Get("language"))
		w.Write([]byte(`{"page":1,"results":[
			{"id":2,"title":"Second","release_date":"2024-01-02"},
			{"title":"No id"},
			{"id":1,"title":"First","release_date":"2024-01-01"}
		]}`))
	})

	items, err := c.FetchCurrentBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, 2, items[0].ID)
	require.Equal(t, "Second", items[0].Title)
	require.Equal(t, "2024-01-02", items[0].ReleaseDate)
	require.EqualValues(t, 1, items[1].ID)
	require.Contains(t, items[1].JSON, `"First"`)
}

func TestFetchDetailsAsksForCredits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie/603", r.URL.Path)
		require.Equal(t, "credits", r.URL.Query().Get("append_to_response"))
		w.Write([]byte(fullDetail))
	})

	d, err := c.FetchDetails(context.Background(), 603)
	require.NoError(t, err)

	m := c.Normalize(provider.RawItem{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-30"}, d)
	require.Equal(t, "Lana Wachowski", m.Director)
}

func TestTransportErrorsPropagate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"status_code":7,"status_message":"Invalid API key: You must be granted a valid key."}`))
	})

	_, err := c.FetchCurrentBatch(context.Background())
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)
	require.Contains(t, se.Message, "Invalid API key")
}

func TestFetchDetailsUnknownMovie(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"status_code":34,"status_message":"The resource you requested could not be found."}`))
	})

	_, err := c.FetchDetails(context.Background(), 999999)
	require.ErrorIs(t, err, provider.ErrNotFound)
}

func TestServerErrorIsNotRetriedByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchDetails(context.Background(), 1)
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestSearchByTitle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/movie", r.URL.Path)
		switch r.URL.Query().Get("query") {
		case "Dune: Part Two":
			w.Write([]byte(`{"results":[{"id":693134,"title":"Dune: Part Two","overview":"Paul Atreides unites with Chani."}]}`))
		default:
			w.Write([]byte(`{"results":[]}`))
		}
	})

	res, err := c.SearchByTitle(context.Background(), "Dune: Part Two")
	require.NoError(t, err)
	require.EqualValues(t, 693134, res.ID)
	require.Equal(t, "Paul Atreides unites with Chani.", res.Overview)

	_, err = c.SearchByTitle(context.Background(), "Nothing like this")
	require.ErrorIs(t, err, provider.ErrNotFound)
}

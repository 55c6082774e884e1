package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/reelwatch/reelwatch/pkg/storage"
)

func seeded(t *testing.T) *storage.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for i := 0; i < 12; i++ {
		require.NoError(t, db.LogActivity(ctx, "announce", map[string]any{"external_id": i}))
	}
	m := storage.Movie{ExternalID: 1, Title: "Heat"}
	require.NoError(t, db.InsertMovie(ctx, &m))
	return db
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRecentActivitiesDefaultsToTen(t *testing.T) {
	h := New(seeded(t), "", "").Handler()

	rec := get(t, h, "/get_recent_activities")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var acts []storage.Activity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acts))
	require.Len(t, acts, 10)
	// newest first
	require.EqualValues(t, 11, acts[0].Details["external_id"])
}

func TestRecentActivitiesLimit(t *testing.T) {
	h := New(seeded(t), "", "").Handler()

	var acts []storage.Activity
	rec := get(t, h, "/get_recent_activities?limit=3")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acts))
	require.Len(t, acts, 3)

	rec = get(t, h, "/get_recent_activities?limit=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersEmptyList(t *testing.T) {
	h := New(seeded(t), "", "").Handler()
	rec := get(t, h, "/get_users")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestIndexPage(t *testing.T) {
	h := New(seeded(t), "", "").Handler()
	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "reelwatch dashboard", doc.Find("title").Text())
	require.Equal(t, 10, doc.Find("#activities tbody tr").Length())
	require.Contains(t, doc.Find("#users").Text(), "No users yet.")
	require.Contains(t, doc.Find("#stats").Text(), "Movies")
	require.Equal(t, "1", doc.Find("#stats .text-2xl").First().Text())
}

func TestUnknownPathIs404(t *testing.T) {
	h := New(seeded(t), "", "").Handler()
	require.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}

func TestMetricsRoute(t *testing.T) {
	h := New(seeded(t), "", "").Handler()
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBasicAuth(t *testing.T) {
	h := New(seeded(t), "admin", "secret").Handler()

	rec := get(t, h, "/get_users")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/get_users", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthRejectsPartialMatches(t *testing.T) {
	h := New(seeded(t), "admin", "secret").Handler()

	for _, creds := range [][2]string{
		{"admin", "wrong"},
		{"other", "secret"},
		{"admin", "secre"},
		{"admin", "secret2"},
		{"", ""},
	} {
		req := httptest.NewRequest(http.MethodGet, "/get_users", nil)
		req.SetBasicAuth(creds[0], creds[1])
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%q", creds)
	}
}

type failingStore struct{}

func (failingStore) RecentActivities(context.Context, int) ([]storage.Activity, error) {
	return nil, errors.New("db gone")
}
func (failingStore) ListUsers(context.Context, int) ([]storage.User, error) {
	return nil, errors.New("db gone")
}
func (failingStore) Stats(context.Context) (storage.Stats, error) {
	return storage.Stats{}, errors.New("db gone")
}

func TestStoreFailures(t *testing.T) {
	h := New(failingStore{}, "", "").Handler()
	require.Equal(t, http.StatusInternalServerError, get(t, h, "/get_users").Code)

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "db gone")
}

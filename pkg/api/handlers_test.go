package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timoknapp/contest-dashboard/pkg/cache"
	"github.com/timoknapp/contest-dashboard/pkg/models"
	"github.com/timoknapp/contest-dashboard/pkg/session"
)

type fakeContests struct {
	contests     []models.Contest
	availability models.Availability
	fetchedAt    time.Time
}

func (f *fakeContests) Resolve(ctx context.Context) ([]models.Contest, models.Availability) {
	return f.contests, f.availability
}

func (f *fakeContests) GetContests(ctx context.Context) []models.Contest {
	return f.contests
}

func (f *fakeContests) Snapshot() ([]models.Contest, time.Time, bool) {
	if f.fetchedAt.IsZero() {
		return nil, time.Time{}, false
	}
	return f.contests, f.fetchedAt, true
}

func sampleContests(n int) []models.Contest {
	out := make([]models.Contest, 0, n)
	for i := 1; i <= n; i++ {
		typ := models.TypeCF
		if i%2 == 0 {
			typ = models.TypeICPC
		}
		out = append(out, models.Contest{
			Id:               i,
			Name:             fmt.Sprintf("Codeforces Round %d", i),
			Type:             typ,
			Phase:            models.PhaseFinished,
			DurationSeconds:  int64(i) * 3600,
			StartTimeSeconds: 1700000000,
		})
	}
	return out
}

type testServer struct {
	handler http.Handler
	cookie  *http.Cookie
}

func newTestServer(t *testing.T, provider *fakeContests, prefs cache.Store) *testServer {
	t.Helper()
	registry := session.NewRegistry(SuggestionBoxes(provider))
	return &testServer{handler: NewHandler(provider, registry, prefs, time.UTC).Routes()}
}

func (s *testServer) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			s.cookie = c
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetContests(t *testing.T) {
	fetchedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, &fakeContests{contests: sampleContests(3), availability: models.AvailabilityFresh, fetchedAt: fetchedAt}, nil)

	rec := srv.do(t, http.MethodGet, "/api/contests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	body := decode(t, rec)
	assert.Equal(t, "fresh", body["source"])
	assert.Equal(t, "2024-05-01T12:00:00Z", body["fetchedAt"])
	assert.Len(t, body["contests"], 3)
}

func TestGetContestsUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: []models.Contest{}, availability: models.AvailabilityUnavailable}, nil)

	rec := srv.do(t, http.MethodGet, "/api/contests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unavailable", body["source"])
	assert.Empty(t, body["contests"])
	assert.NotContains(t, body, "fetchedAt")
}

func TestPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeContests{}, nil)
	rec := srv.do(t, http.MethodOptions, "/api/favorites/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func newOriginServer(origins ...string) http.Handler {
	provider := &fakeContests{contests: sampleContests(3), availability: models.AvailabilityFresh}
	registry := session.NewRegistry(SuggestionBoxes(provider))
	return NewHandler(provider, registry, nil, time.UTC).WithAllowedOrigins(origins).Routes()
}

func TestPreflightFromAllowedOrigin(t *testing.T) {
	handler := newOriginServer("http://localhost:3000")

	req := httptest.NewRequest(http.MethodOptions, "http://api.example.com/api/favorites/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestPreflightFromUnknownOrigin(t *testing.T) {
	handler := newOriginServer("http://localhost:3000")

	req := httptest.NewRequest(http.MethodOptions, "http://api.example.com/api/favorites/1", nil)
	req.Header.Set("Origin", "https://elsewhere.example.org")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCrossOriginSessionCookie(t *testing.T) {
	handler := newOriginServer("http://localhost:3000")

	req := httptest.NewRequest(http.MethodPost, "http://api.example.com/api/favorites/2", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
	assert.True(t, cookies[0].Secure)

	// the cookie sent back keeps the favorite
	req = httptest.NewRequest(http.MethodGet, "http://api.example.com/api/favorites", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.AddCookie(&http.Cookie{Name: cookies[0].Name, Value: cookies[0].Value})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestSameOriginSessionCookieIsLax(t *testing.T) {
	handler := newOriginServer("http://localhost:3000")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://api.example.com/api/favorites", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.False(t, cookies[0].Secure)
}

func TestListContestsPagination(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(23), availability: models.AvailabilityFresh}, nil)

	rec := srv.do(t, http.MethodGet, "/api/contests/list?page=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(23), body["total"])
	assert.Equal(t, float64(3), body["totalPages"])
	assert.Equal(t, float64(3), body["page"])
	assert.Len(t, body["items"], 3)
	assert.Equal(t, false, body["hasNext"])
	assert.Equal(t, true, body["hasPrevious"])
	require.NotNil(t, srv.cookie)

	// the session remembers the page
	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list", ""))
	assert.Equal(t, float64(3), body["page"])

	// changing the page size resets to page 1 even if a page is requested
	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list?per_page=25&page=2", ""))
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(25), body["rowsPerPage"])
	assert.Equal(t, float64(1), body["totalPages"])
	assert.Len(t, body["items"], 23)
}

func TestListContestsOutOfRangePage(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(23), availability: models.AvailabilityFresh}, nil)

	body := decode(t, srv.do(t, http.MethodGet, "/api/contests/list?page=2", ""))
	assert.Equal(t, float64(2), body["page"])

	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list?page=9", ""))
	assert.Empty(t, body["items"])

	// the stored page did not follow the invalid move
	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list", ""))
	assert.Equal(t, float64(2), body["page"])
}

func TestListContestsMove(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(23), availability: models.AvailabilityFresh}, nil)

	body := decode(t, srv.do(t, http.MethodGet, "/api/contests/list?move=previous", ""))
	assert.Equal(t, float64(1), body["page"])

	srv.do(t, http.MethodGet, "/api/contests/list?move=next", "")
	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list?move=next", ""))
	assert.Equal(t, float64(3), body["page"])

	// already on the last page
	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list?move=next", ""))
	assert.Equal(t, float64(3), body["page"])

	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list?move=previous", ""))
	assert.Equal(t, float64(2), body["page"])

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/contests/list?move=sideways", "").Code)
}

func TestListContestsFilters(t *testing.T) {
	contests := sampleContests(4)
	contests[0].Name = "Educational Round"
	srv := newTestServer(t, &fakeContests{contests: contests, availability: models.AvailabilityStale}, nil)

	srv.do(t, http.MethodGet, "/api/contests/list?page=1", "")
	body := decode(t, srv.do(t, http.MethodGet, "/api/contests/list?q=codeforces&type=CF", ""))
	assert.Equal(t, "stale", body["source"])
	assert.Equal(t, float64(1), body["total"])

	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(3), items[0].(map[string]any)["id"])

	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/list?type=ALL&phase=", ""))
	assert.Equal(t, float64(4), body["total"])
}

func TestListContestsFavoritesOnly(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(5), availability: models.AvailabilityFresh}, nil)

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodPost, "/api/favorites/2", "").Code)
	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodPost, "/api/favorites/4", "").Code)

	body := decode(t, srv.do(t, http.MethodGet, "/api/contests/list?favorites=true", ""))
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(2), body["favoriteCount"])
}

func TestListContestsBadParams(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(1)}, nil)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/contests/list?page=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/contests/list?per_page=7", "").Code)
}

func TestGetContestDetail(t *testing.T) {
	contests := sampleContests(2)
	contests[1].Description = "<p>Hello <b>world</b></p>"
	srv := newTestServer(t, &fakeContests{contests: contests, availability: models.AvailabilityFresh}, nil)

	rec := srv.do(t, http.MethodGet, "/api/contests/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Codeforces Round 1", body["name"])
	assert.Equal(t, "11/14/2023, 10:13:20 PM", body["startTime"])
	assert.Equal(t, "No description available.", body["description"])
	assert.Equal(t, "fresh", body["source"])

	body = decode(t, srv.do(t, http.MethodGet, "/api/contests/2", ""))
	assert.Equal(t, "Hello world", body["description"])

	rec = srv.do(t, http.MethodGet, "/api/contests/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Contest not found.", decode(t, rec)["error"])

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/contests/x1", "").Code)
}

func TestGetChart(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(4), availability: models.AvailabilityFresh}, nil)

	body := decode(t, srv.do(t, http.MethodGet, "/api/chart?type=ICPC&kind=bar", ""))
	assert.Equal(t, "bar", body["kind"])
	assert.ElementsMatch(t, []any{"CF", "ICPC"}, body["types"])

	series := body["series"].([]any)
	require.Len(t, series, 2)
	assert.Equal(t, "Codeforces Round 2", series[0].(map[string]any)["name"])
}

func TestSuggestions(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(12), availability: models.AvailabilityFresh}, nil)

	rec := srv.do(t, http.MethodGet, "/api/suggestions?q=round+1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "round 1", body["query"])
	assert.Equal(t, []any{
		"Codeforces Round 1", "Codeforces Round 10", "Codeforces Round 11", "Codeforces Round 12",
	}, body["suggestions"])
}

func TestSuggestionsSuperseded(t *testing.T) {
	srv := newTestServer(t, &fakeContests{contests: sampleContests(3), availability: models.AvailabilityFresh}, nil)
	srv.do(t, http.MethodGet, "/api/favorites", "") // obtain a session cookie

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i, q := range []string{"co", "cod"} {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/suggestions?q="+q, nil)
			req.AddCookie(srv.cookie)
			rec := httptest.NewRecorder()
			srv.handler.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i, q)
		time.Sleep(50 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusNoContent, http.StatusOK}, codes)
}

func TestFavorites(t *testing.T) {
	srv := newTestServer(t, &fakeContests{}, nil)

	body := decode(t, srv.do(t, http.MethodGet, "/api/favorites", ""))
	assert.Equal(t, float64(0), body["count"])

	srv.do(t, http.MethodPost, "/api/favorites/7", "")
	srv.do(t, http.MethodPost, "/api/favorites/3", "")
	body = decode(t, srv.do(t, http.MethodGet, "/api/favorites", ""))
	assert.Equal(t, []any{float64(3), float64(7)}, body["favorites"])

	srv.do(t, http.MethodPost, "/api/favorites/7", "")
	body = decode(t, srv.do(t, http.MethodGet, "/api/favorites", ""))
	assert.Equal(t, float64(1), body["count"])

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/favorites/abc", "").Code)
}

func TestFavoritesArePerClient(t *testing.T) {
	provider := &fakeContests{}
	registry := session.NewRegistry(SuggestionBoxes(provider))
	handler := NewHandler(provider, registry, nil, nil).Routes()

	a := &testServer{handler: handler}
	b := &testServer{handler: handler}
	a.do(t, http.MethodPost, "/api/favorites/1", "")

	assert.Equal(t, float64(1), decode(t, a.do(t, http.MethodGet, "/api/favorites", ""))["count"])
	assert.Equal(t, float64(0), decode(t, b.do(t, http.MethodGet, "/api/favorites", ""))["count"])
	assert.Equal(t, 2, registry.Len())
}

func TestTheme(t *testing.T) {
	store, err := cache.NewBoltStore(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := newTestServer(t, &fakeContests{}, store)

	rec := srv.do(t, http.MethodGet, "/api/preferences/theme", "")
	assert.Equal(t, "Sec-CH-Prefers-Color-Scheme", rec.Header().Get("Accept-CH"))
	assert.Equal(t, "Sec-CH-Prefers-Color-Scheme", rec.Header().Get("Critical-CH"))
	assert.Contains(t, rec.Header().Values("Vary"), "Sec-CH-Prefers-Color-Scheme")
	body := decode(t, rec)
	assert.Equal(t, "light", body["theme"])
	assert.Equal(t, false, body["stored"])

	req := httptest.NewRequest(http.MethodGet, "/api/preferences/theme", nil)
	req.AddCookie(srv.cookie)
	req.Header.Set("Sec-CH-Prefers-Color-Scheme", `"dark"`)
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, "dark", decode(t, rec)["theme"])

	rec = srv.do(t, http.MethodPut, "/api/preferences/theme", `{"theme":"dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body = decode(t, srv.do(t, http.MethodGet, "/api/preferences/theme", ""))
	assert.Equal(t, "dark", body["theme"])
	assert.Equal(t, true, body["stored"])

	assert.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/api/preferences/theme", "").Code)
	body = decode(t, srv.do(t, http.MethodGet, "/api/preferences/theme", ""))
	assert.Equal(t, "light", body["theme"])
	assert.Equal(t, false, body["stored"])

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPut, "/api/preferences/theme", `{"theme":"sepia"}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPut, "/api/preferences/theme", `nope`).Code)
}

func TestThemeWithoutStore(t *testing.T) {
	srv := newTestServer(t, &fakeContests{}, nil)
	assert.Equal(t, http.StatusNotImplemented, srv.do(t, http.MethodPut, "/api/preferences/theme", `{"theme":"dark"}`).Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeContests{}, nil)
	body := decode(t, srv.do(t, http.MethodGet, "/healthz", ""))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["cached"])
}

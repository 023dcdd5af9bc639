package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/timoknapp/contest-dashboard/pkg/cache"
	"github.com/timoknapp/contest-dashboard/pkg/favorites"
	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/metrics"
	"github.com/timoknapp/contest-dashboard/pkg/models"
	"github.com/timoknapp/contest-dashboard/pkg/search"
	"github.com/timoknapp/contest-dashboard/pkg/session"
	"github.com/timoknapp/contest-dashboard/pkg/util"
	"github.com/timoknapp/contest-dashboard/pkg/view"
)

const (
	moveNext     = "next"
	movePrevious = "previous"

	// colorSchemeHint is the client hint carrying the browser's preferred
	// theme. Browsers only send it after seeing it in Accept-CH.
	colorSchemeHint = "Sec-CH-Prefers-Color-Scheme"
)

// ContestProvider is what the handlers need from the contest cache.
type ContestProvider interface {
	Resolve(ctx context.Context) ([]models.Contest, models.Availability)
	GetContests(ctx context.Context) []models.Contest
	Snapshot() ([]models.Contest, time.Time, bool)
}

type Handler struct {
	contests ContestProvider
	sessions *session.Registry
	prefs    cache.Store
	loc      *time.Location
	origins  []string
}

// NewHandler wires the dashboard endpoints. prefs may be nil, in which case
// theme preferences are not persisted.
func NewHandler(contests ContestProvider, sessions *session.Registry, prefs cache.Store, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{contests: contests, sessions: sessions, prefs: prefs, loc: loc}
}

// WithAllowedOrigins sets the frontend origins that may call the API with
// the client cookie. Other origins still get "*" without credentials.
func (h *Handler) WithAllowedOrigins(origins []string) *Handler {
	h.origins = origins
	return h
}

// SuggestionBoxes builds the debounced search box of each new session; the
// suggestions come from the current contest collection.
func SuggestionBoxes(contests ContestProvider) func() *search.Box {
	return func() *search.Box {
		return search.NewBox(search.QuietPeriod, func(text string) []string {
			return view.Suggest(contests.GetContests(context.Background()), text, view.MaxSuggestions)
		})
	}
}

// Routes returns the full HTTP handler including CORS and instrumentation.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/contests", h.GetContests)
	mux.HandleFunc("GET /api/contests/list", h.ListContests)
	mux.HandleFunc("GET /api/contests/{id}", h.GetContest)
	mux.HandleFunc("GET /api/chart", h.GetChart)
	mux.HandleFunc("GET /api/suggestions", h.GetSuggestions)
	mux.HandleFunc("GET /api/favorites", h.GetFavorites)
	mux.HandleFunc("POST /api/favorites/{id}", h.ToggleFavorite)
	mux.HandleFunc("GET /api/preferences/theme", h.GetTheme)
	mux.HandleFunc("PUT /api/preferences/theme", h.PutTheme)
	mux.HandleFunc("DELETE /api/preferences/theme", h.DeleteTheme)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET "+metrics.StatsPath, metrics.StatsHandler)
	return metrics.Instrument(h.cors(mux))
}

func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		util.EnableCors(w, r, h.origins)
		w.Header().Set("Accept-CH", colorSchemeHint)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type contestsResponse struct {
	Source    models.Availability `json:"source"`
	FetchedAt *time.Time          `json:"fetchedAt,omitempty"`
	Contests  []models.Contest    `json:"contests"`
}

// GetContests serves the raw collection.
func (h *Handler) GetContests(w http.ResponseWriter, r *http.Request) {
	contests, source := h.contests.Resolve(r.Context())
	resp := contestsResponse{Source: source, Contests: contests}
	if _, fetchedAt, ok := h.contests.Snapshot(); ok {
		resp.FetchedAt = &fetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Source models.Availability `json:"source"`
	view.ListingPage
	HasNext       bool `json:"hasNext"`
	HasPrevious   bool `json:"hasPrevious"`
	FavoriteCount int  `json:"favoriteCount"`
}

// ListContests serves one page of the filtered listing and records the
// request in the client's filter state.
func (h *Handler) ListContests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, hasPage, err := intParam(q, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	perPage, hasPerPage, err := intParam(q, "per_page")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if hasPerPage && !view.ValidRowsPerPage(perPage) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("per_page must be one of %v", view.RowsPerPageOptions))
		return
	}
	move := strings.ToLower(strings.TrimSpace(q.Get("move")))
	if move != "" && move != moveNext && move != movePrevious {
		writeError(w, http.StatusBadRequest, fmt.Errorf("move must be %q or %q", moveNext, movePrevious))
		return
	}

	sess := h.session(w, r)
	contests, source := h.contests.Resolve(r.Context())

	var query view.ListingQuery
	sess.WithListing(func(st *view.FilterState) {
		st.SetFilters(q.Get("q"), q.Get("type"), q.Get("phase"), boolParam(q, "favorites"))

		rowsChanged := hasPerPage && perPage != st.RowsPerPage
		if rowsChanged {
			st.SetRowsPerPage(perPage)
		}

		query = st.Query(sess.Favorites)
		total := view.TotalPages(len(view.Filter(contests, query)), query.RowsPerPage)
		switch {
		case rowsChanged:
		case move == moveNext:
			st.Next(total)
		case move == movePrevious:
			st.Previous(total)
		case hasPage:
			// the requested page is served as is, the state only follows valid moves
			query.Page = page
			st.GoTo(page, total)
			return
		}
		st.Clamp(total)
		query.Page = st.Page
	})

	listing := view.List(contests, query)
	writeJSON(w, http.StatusOK, listResponse{
		Source:        source,
		ListingPage:   listing,
		HasNext:       listing.HasNext(),
		HasPrevious:   listing.HasPrevious(),
		FavoriteCount: sess.Favorites.Len(),
	})
}

// GetContest serves the detail view of one contest.
func (h *Handler) GetContest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid contest id %q", r.PathValue("id")))
		return
	}

	contests, source := h.contests.Resolve(r.Context())
	detail, ok := view.Detail(contests, id, h.loc)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":  "Contest not found.",
			"source": source,
		})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Source models.Availability `json:"source"`
		models.ContestDetail
	}{source, detail})
}

type chartResponse struct {
	Source models.Availability `json:"source"`
	Kind   string              `json:"kind"`
	Types  []string            `json:"types"`
	Series []models.ChartPoint `json:"series"`
}

// GetChart serves the duration series for the visualization view.
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	contests, source := h.contests.Resolve(r.Context())
	writeJSON(w, http.StatusOK, chartResponse{
		Source: source,
		Kind:   view.ParseChartKind(q.Get("kind")),
		Types:  view.TypeOptions(contests),
		Series: view.Chart(contests, q.Get("type"), q.Get("phase")),
	})
}

// GetSuggestions treats every request as a keystroke of the client's search
// box. Only the last request of a burst is answered with suggestions; the
// ones it superseded get 204 No Content.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	text := r.URL.Query().Get("q")

	// make sure the collection is loaded before the box fires
	h.contests.Resolve(r.Context())

	select {
	case res := <-sess.Search.Type(text):
		if res.Superseded {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"query":       res.Text,
			"suggestions": res.Suggestions,
		})
	case <-r.Context().Done():
		logger.Debug("Suggestion request for session %s cancelled: %v", sess.ID, r.Context().Err())
	}
}

type favoritesResponse struct {
	Favorites *favorites.Set `json:"favorites"`
	Count     int            `json:"count"`
}

func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	writeJSON(w, http.StatusOK, favoritesResponse{Favorites: sess.Favorites, Count: sess.Favorites.Len()})
}

// ToggleFavorite flips one contest in the client's Favorite Set.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid contest id %q", r.PathValue("id")))
		return
	}
	sess := h.session(w, r)
	sess.Favorites.Toggle(id)
	w.WriteHeader(http.StatusNoContent)
}

type themeBody struct {
	Theme  string `json:"theme"`
	Stored bool   `json:"stored"`
}

// GetTheme returns the stored theme or, when none is stored, the one the
// browser prefers.
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", colorSchemeHint)
	w.Header().Set("Critical-CH", colorSchemeHint)

	sess := h.session(w, r)
	if h.prefs != nil {
		pref, found, err := h.prefs.Get(sess.ID)
		if err != nil {
			logger.Error("Failed to load theme for %s: %v", sess.ID, err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to load preferences"))
			return
		}
		if found {
			writeJSON(w, http.StatusOK, themeBody{Theme: pref.Theme, Stored: true})
			return
		}
	}

	theme := models.ThemeLight
	if strings.EqualFold(strings.Trim(r.Header.Get(colorSchemeHint), `" `), models.ThemeDark) {
		theme = models.ThemeDark
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: theme})
}

func (h *Handler) PutTheme(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeError(w, http.StatusNotImplemented, errors.New("preference store disabled"))
		return
	}
	var body themeBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON request body"))
		return
	}
	sess := h.session(w, r)
	if err := h.prefs.SetTheme(sess.ID, body.Theme); err != nil {
		if errors.Is(err, cache.ErrInvalidTheme) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		logger.Error("Failed to store theme for %s: %v", sess.ID, err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to store preferences"))
		return
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: body.Theme, Stored: true})
}

// DeleteTheme forgets the stored theme so the browser preference applies again.
func (h *Handler) DeleteTheme(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeError(w, http.StatusNotImplemented, errors.New("preference store disabled"))
		return
	}
	sess := h.session(w, r)
	if err := h.prefs.Delete(sess.ID); err != nil {
		logger.Error("Failed to delete theme for %s: %v", sess.ID, err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to delete preferences"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, fetchedAt, ok := h.contests.Snapshot()
	resp := map[string]any{"status": "ok", "cached": ok}
	if ok {
		resp["fetchedAt"] = fetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// session resolves the client's session and (re)issues its cookie when needed.
// A cookie for an allowed frontend on another host must be SameSite=None and
// Secure, or the browser would not send it back on credentialed fetches.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(session.CookieName); err == nil {
		id = c.Value
	}
	sess, _ := h.sessions.Resolve(id)
	if sess.ID != id {
		cookie := &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int((365 * 24 * time.Hour).Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		if util.OriginAllowed(r.Header.Get("Origin"), h.origins) && util.CrossOrigin(r) {
			cookie.SameSite = http.SameSiteNoneMode
			cookie.Secure = true
		}
		http.SetCookie(w, cookie)
	}
	return sess
}

func intParam(q url.Values, key string) (int, bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return n, true, nil
}

func boolParam(q url.Values, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(q.Get(key)))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

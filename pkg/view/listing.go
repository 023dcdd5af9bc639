package view

import (
	"strings"

	"github.com/timoknapp/contest-dashboard/pkg/models"
)

// DefaultRowsPerPage is the listing page size until the client picks another one.
const DefaultRowsPerPage = 10

// RowsPerPageOptions are the page sizes offered to the listing view.
var RowsPerPageOptions = []int{10, 25, 50, 100}

// FavoriteChecker reports favorite membership. *favorites.Set satisfies it.
type FavoriteChecker interface {
	Has(id int) bool
}

// ListingQuery carries every input of the listing view.
type ListingQuery struct {
	Search        string
	Type          string
	Phase         string
	FavoritesOnly bool
	Favorites     FavoriteChecker
	Page          int // 1-indexed
	RowsPerPage   int
}

// ListingPage is one page of the filtered listing.
type ListingPage struct {
	Items       []models.Contest `json:"items"`
	Total       int              `json:"total"`
	TotalPages  int              `json:"totalPages"`
	Page        int              `json:"page"`
	RowsPerPage int              `json:"rowsPerPage"`
}

// HasNext reports whether a page follows the current one
func (p ListingPage) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrevious reports whether a page precedes the current one
func (p ListingPage) HasPrevious() bool {
	return p.Page > 1
}

// List filters contests and slices out the requested page. Pages outside
// [1, TotalPages] yield no items; clamping is the caller's job.
func List(contests []models.Contest, q ListingQuery) ListingPage {
	rows := q.RowsPerPage
	if rows < 1 {
		rows = DefaultRowsPerPage
	}

	filtered := Filter(contests, q)
	total := len(filtered)
	page := ListingPage{
		Items:       []models.Contest{},
		Total:       total,
		TotalPages:  TotalPages(total, rows),
		Page:        q.Page,
		RowsPerPage: rows,
	}
	if q.Page < 1 {
		return page
	}

	start := (q.Page - 1) * rows
	if start >= total {
		return page
	}
	end := start + rows
	if end > total {
		end = total
	}
	page.Items = filtered[start:end]
	return page
}

// Filter applies search, type, phase and favorite predicates conjunctively,
// preserving source order.
func Filter(contests []models.Contest, q ListingQuery) []models.Contest {
	needle := strings.ToLower(q.Search)
	out := make([]models.Contest, 0, len(contests))
	for _, c := range contests {
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		if !Matches(q.Type, c.Type) || !Matches(q.Phase, c.Phase) {
			continue
		}
		if q.FavoritesOnly && (q.Favorites == nil || !q.Favorites.Has(c.Id)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// TotalPages is ceil(total/rows), zero when nothing matched.
func TotalPages(total, rows int) int {
	if total <= 0 || rows < 1 {
		return 0
	}
	return (total + rows - 1) / rows
}

// IsAll reports whether a type or phase filter selects everything.
func IsAll(filter string) bool {
	return filter == "" || strings.EqualFold(filter, "all")
}

// Matches is the exact-match-or-all predicate used by type and phase filters.
func Matches(filter, value string) bool {
	return IsAll(filter) || filter == value
}

// ValidRowsPerPage reports whether n is one of RowsPerPageOptions
func ValidRowsPerPage(n int) bool {
	for _, opt := range RowsPerPageOptions {
		if n == opt {
			return true
		}
	}
	return false
}

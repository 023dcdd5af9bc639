package view

// FilterState is the listing state of one client. It is not safe for
// concurrent use; the owning session serializes access.
type FilterState struct {
	Search        string `json:"search"`
	Type          string `json:"type"`
	Phase         string `json:"phase"`
	FavoritesOnly bool   `json:"favoritesOnly"`
	Page          int    `json:"page"`
	RowsPerPage   int    `json:"rowsPerPage"`
}

// NewFilterState starts on page 1 with the default page size.
func NewFilterState() FilterState {
	return FilterState{Page: 1, RowsPerPage: DefaultRowsPerPage}
}

// SetRowsPerPage changes the page size and always returns to page 1.
func (s *FilterState) SetRowsPerPage(n int) {
	if n < 1 {
		n = DefaultRowsPerPage
	}
	s.RowsPerPage = n
	s.Page = 1
}

// SetFilters replaces the predicates. A change narrows or widens the result,
// so the page goes back to 1.
func (s *FilterState) SetFilters(search, typ, phase string, favoritesOnly bool) {
	if s.Search == search && s.Type == typ && s.Phase == phase && s.FavoritesOnly == favoritesOnly {
		return
	}
	s.Search, s.Type, s.Phase, s.FavoritesOnly = search, typ, phase, favoritesOnly
	s.Page = 1
}

// GoTo moves to page if it lies in [1, totalPages] and reports whether it moved.
func (s *FilterState) GoTo(page, totalPages int) bool {
	if page < 1 || page > totalPages {
		return false
	}
	s.Page = page
	return true
}

func (s *FilterState) Next(totalPages int) bool {
	return s.GoTo(s.Page+1, totalPages)
}

func (s *FilterState) Previous(totalPages int) bool {
	return s.GoTo(s.Page-1, totalPages)
}

// Clamp pulls the page back into range after the collection shrank.
func (s *FilterState) Clamp(totalPages int) {
	if totalPages < 1 {
		s.Page = 1
		return
	}
	if s.Page > totalPages {
		s.Page = totalPages
	}
	if s.Page < 1 {
		s.Page = 1
	}
}

// Query builds the listing query for the current state.
func (s FilterState) Query(favorites FavoriteChecker) ListingQuery {
	return ListingQuery{
		Search:        s.Search,
		Type:          s.Type,
		Phase:         s.Phase,
		FavoritesOnly: s.FavoritesOnly,
		Favorites:     favorites,
		Page:          s.Page,
		RowsPerPage:   s.RowsPerPage,
	}
}

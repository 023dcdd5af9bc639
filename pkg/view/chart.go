package view

import (
	"strings"

	"github.com/timoknapp/contest-dashboard/pkg/models"
)

// Chart kinds understood by the renderer. The series is the same for all of them.
const (
	ChartLine     = "line"
	ChartBar      = "bar"
	ChartComposed = "composed"
)

// Chart returns the duration series of the contests matching both filters.
func Chart(contests []models.Contest, typ, phase string) []models.ChartPoint {
	series := make([]models.ChartPoint, 0, len(contests))
	for _, c := range contests {
		if !Matches(typ, c.Type) || !Matches(phase, c.Phase) {
			continue
		}
		series = append(series, models.ChartPoint{Name: c.Name, DurationSeconds: c.DurationSeconds})
	}
	return series
}

// TypeOptions lists the distinct contest types in first-seen order.
func TypeOptions(contests []models.Contest) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, c := range contests {
		if c.Type == "" || seen[c.Type] {
			continue
		}
		seen[c.Type] = true
		out = append(out, c.Type)
	}
	return out
}

// ParseChartKind normalises a requested chart kind, defaulting to a line chart.
func ParseChartKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ChartBar:
		return ChartBar
	case ChartComposed:
		return ChartComposed
	default:
		return ChartLine
	}
}

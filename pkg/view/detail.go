package view

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/models"
	"github.com/timoknapp/contest-dashboard/pkg/util"
)

// NoDescription is shown for contests without a description.
const NoDescription = "No description available."

// StartTimeLayout matches the en-US toLocaleString rendering the dashboard shows.
const StartTimeLayout = "1/2/2006, 3:04:05 PM"

// Detail looks up the first contest with the given id and reshapes it for the
// detail view. ok is false when no contest matches.
func Detail(contests []models.Contest, id int, loc *time.Location) (models.ContestDetail, bool) {
	for _, c := range contests {
		if c.Id != id {
			continue
		}
		return models.ContestDetail{
			Id:          c.Id,
			Name:        c.Name,
			Type:        c.Type,
			Phase:       c.Phase,
			StartTime:   FormatStartTime(c.StartTimeSeconds, loc),
			Description: Description(c.Description),
		}, true
	}
	return models.ContestDetail{}, false
}

// FormatStartTime renders a unix start time in loc (UTC when nil).
func FormatStartTime(startTimeSeconds int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(startTimeSeconds * 1000).In(loc).Format(StartTimeLayout)
}

// Description reduces a possibly HTML description to plain text, falling back
// to NoDescription when nothing readable is left.
func Description(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return NoDescription
	}
	text := raw
	if strings.ContainsAny(raw, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err != nil {
			logger.Warn("Failed to parse contest description, using it verbatim: %v", err)
		} else {
			text = doc.Text()
		}
	}
	text = util.CollapseWhitespace(text)
	if text == "" {
		return NoDescription
	}
	return text
}

package models

// Contest types as reported by the contest-list API.
const (
	TypeCF   = "CF"
	TypeIOI  = "IOI"
	TypeICPC = "ICPC"
)

// Contest phases as reported by the contest-list API.
const (
	PhaseBefore            = "BEFORE"
	PhaseCoding            = "CODING"
	PhasePendingSystemTest = "PENDING_SYSTEM_TEST"
	PhaseSystemTest        = "SYSTEM_TEST"
	PhaseFinished          = "FINISHED"
)

// StatusOK is the envelope status of a successful API call.
const StatusOK = "OK"

type Contest struct {
	Id                  int    `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type"`
	Phase               string `json:"phase"`
	Frozen              bool   `json:"frozen"`
	DurationSeconds     int64  `json:"durationSeconds"`
	StartTimeSeconds    int64  `json:"startTimeSeconds"`
	RelativeTimeSeconds int64  `json:"relativeTimeSeconds"`
	Description         string `json:"description,omitempty"` // only set for some gym contests
}

// ContestListResponse is the envelope returned by the contest-list endpoint.
type ContestListResponse struct {
	Status  string    `json:"status"`
	Result  []Contest `json:"result"`
	Comment string    `json:"comment,omitempty"`
}

// ContestDetail is the reshaped contest served to the detail view.
type ContestDetail struct {
	Id          int    `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Phase       string `json:"phase"`
	StartTime   string `json:"startTime"`
	Description string `json:"description"`
}

// ChartPoint is one entry of the duration chart series.
type ChartPoint struct {
	Name            string `json:"name"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// Availability tells consumers where a served collection came from.
type Availability string

const (
	AvailabilityFresh       Availability = "fresh"
	AvailabilityStale       Availability = "stale"
	AvailabilityUnavailable Availability = "unavailable"
)

// Theme preference values.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

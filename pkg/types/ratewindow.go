package types

import "time"

// RateWindow is the reply count of one agent inside one UTC hour.
type RateWindow struct {
	AgentID string    `json:"agent_id"`
	Hour    time.Time `json:"hour"`
	Count   int       `json:"count"`
}

// HourWindow truncates t to the start of its hour in UTC.
func HourWindow(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

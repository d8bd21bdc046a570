package model

import "time"

// HistoryLog is an audit entry for the history-log API.
type HistoryLog struct {
	ID            string    `json:"id,omitempty"`
	CompanyName   string    `json:"company_name"`
	Domain        string    `json:"domain"`
	Agent         string    `json:"agent"`
	Disposition   string    `json:"disposition"`
	Remarks       string    `json:"remarks"`
	Headquarters  string    `json:"headquarters"`
	RunID         string    `json:"run_id,omitempty"`
	ScreenshotURL string    `json:"screenshot_url,omitempty"`
	GoogleQuery   string    `json:"google_query,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

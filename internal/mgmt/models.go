package mgmt

import "github.com/focusguild/focusbot/internal/health"

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	Status         string                   `json:"status"`
	UptimeSeconds  int64                    `json:"uptime_seconds"`
	ActiveSessions int                      `json:"active_sessions"`
	GraceSessions  int                      `json:"grace_sessions"`
	ResetRunning   bool                     `json:"reset_running"`
	Checks         map[string]health.Status `json:"checks"`
}

// ResetResponse is the payload of POST /api/v1/reset.
type ResetResponse struct {
	Trigger          string   `json:"trigger"`
	Boundary         string   `json:"boundary"`
	UsersCrossed     int      `json:"users_crossed"`
	SessionsSplit    int      `json:"sessions_split"`
	SessionsClosed   int      `json:"sessions_closed"`
	MinutesProcessed int      `json:"minutes_processed"`
	PointsAwarded    int      `json:"points_awarded"`
	StatsArchived    int64    `json:"stats_archived"`
	TasksDeleted     int64    `json:"tasks_deleted"`
	UsersNotified    int      `json:"users_notified"`
	QuotaRowsReset   int64    `json:"quota_rows_reset"`
	Errors           []string `json:"errors,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
}

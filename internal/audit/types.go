package audit

import "time"

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Well-known actions. Handlers may record free-form actions too; these
// constants exist so the stats queries and the sampler agree on names.
const (
	ActionRegister        = "auth.register"
	ActionLogin           = "auth.login"
	ActionLogout          = "auth.logout"
	ActionRefresh         = "auth.refresh"
	ActionEnable2FA       = "auth.2fa_enable"
	ActionDisable2FA      = "auth.2fa_disable"
	ActionAssignRole      = "user.assign_role"
	ActionDeleteUser      = "user.delete"
	ActionKeyIssue        = "apikey.issue"
	ActionKeyValidate     = "apikey.validate"
	ActionKeyRevoke       = "apikey.revoke"
	ActionWhitelistAdd    = "whitelist.add"
	ActionWhitelistRemove = "whitelist.remove"
	ActionTelemetryIngest = "telemetry.ingest"
	ActionAccessDenied    = "auth.access_denied"
)

// CriticalActions are surfaced in the stats feed: the mutations a
// security review looks at first.
var CriticalActions = []string{
	ActionAssignRole,
	ActionKeyValidate,
	ActionKeyRevoke,
	ActionEnable2FA,
	ActionDisable2FA,
	ActionWhitelistAdd,
	ActionWhitelistRemove,
}

// Entry represents a single audit trail record.
type Entry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id,omitempty"`
	Username     string         `json:"username,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter controls which audit entries to return. All set fields must
// match (conjunctive).
type Filter struct {
	UserID       string
	Action       string
	ResourceType string
	Status       string
	From         time.Time // inclusive lower bound on created_at
	To           time.Time // exclusive upper bound on created_at
	Limit        int       // default 50, max 1000
	Offset       int
}

// ListResult contains the paginated audit entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// ActorCount pairs a username with how many events it generated.
type ActorCount struct {
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// Stats is the rolled-up activity summary for the admin dashboard API.
type Stats struct {
	Events24h       int          `json:"events_24h"`
	Events7d        int          `json:"events_7d"`
	Events30d       int          `json:"events_30d"`
	FailedLogins24h int          `json:"failed_logins_24h"`
	TopActors       []ActorCount `json:"top_actors"`      // 30d window
	RecentCritical  []Entry      `json:"recent_critical"` // newest first
}

package storage

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Bounded list capacities. Appending past the cap evicts the oldest rows.
const (
	MaxActivities = 10
	MaxHistory    = 50
	MaxErrorLogs  = 20
)

// Setting keys used across the daemon.
const (
	KeyUsername         = "username"
	KeyGroupID          = "groupId"
	KeyClipboardEnabled = "clipboardEnabled"
)

// Activity is a contract address detected on this machine.
type Activity struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	SharedBy  string `json:"sharedBy"`
	CreatedAt int64  `json:"timestamp"` // epoch milliseconds
}

// HistoryEntry is one shared clipboard item.
type HistoryEntry struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"timestamp"` // epoch milliseconds
}

// ErrorLog is one diagnostic entry. Diagnostic only, never transmitted.
type ErrorLog struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	CreatedAt int64  `json:"timestamp"` // epoch milliseconds
}

// Webhook is an operator-configured outbound notification endpoint.
type Webhook struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"` // epoch milliseconds
}

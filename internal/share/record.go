package share

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPayload is returned when a record is missing a required field.
// Checked before any network I/O.
var ErrInvalidPayload = errors.New("invalid share payload")

// Record is the unit of synchronization handed to the dispatcher. Timestamp
// is epoch milliseconds; the remote boundary converts to RFC 3339.
type Record struct {
	Content   string `json:"content"`
	GroupID   string `json:"groupId"`
	Sender    string `json:"sender,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// normalized returns a copy with defaults applied, or ErrInvalidPayload when
// content or group id is missing.
func (r Record) normalized() (Record, error) {
	if r.Content == "" {
		return Record{}, fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	if r.GroupID == "" {
		return Record{}, fmt.Errorf("%w: groupId is required", ErrInvalidPayload)
	}
	if r.Sender == "" {
		r.Sender = "Anonymous"
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	return r, nil
}

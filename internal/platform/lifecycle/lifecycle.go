// Package lifecycle holds the stored states shared by invitations and ownership transfers
// and the read-time expiry projection applied to them.
package lifecycle

import "time"

// Status is a stored state. Time never changes it; see Project.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known stored status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusCancelled
}

// DisplayStatus is what callers see: a stored status, or expired for a lapsed pending record.
type DisplayStatus string

const (
	DisplayPending   DisplayStatus = "pending"
	DisplayExpired   DisplayStatus = "expired"
	DisplayAccepted  DisplayStatus = "accepted"
	DisplayCancelled DisplayStatus = "cancelled"
)

// Project derives the display status from (status, expiresAt, now).
// A pending record is expired once now is strictly after expiresAt; other statuses pass through.
func Project(status Status, expiresAt, now time.Time) DisplayStatus {
	if status == StatusPending {
		if now.After(expiresAt) {
			return DisplayExpired
		}
		return DisplayPending
	}
	return DisplayStatus(status)
}

package lifecycle

import (
	"testing"
	"time"
)

func TestProject(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		status    Status
		expiresAt time.Time
		want      DisplayStatus
	}{
		{"pending future", StatusPending, now.Add(time.Hour), DisplayPending},
		{"pending past", StatusPending, now.Add(-time.Hour), DisplayExpired},
		{"pending exactly at expiry", StatusPending, now, DisplayPending},
		{"accepted past", StatusAccepted, now.Add(-time.Hour), DisplayAccepted},
		{"cancelled future", StatusCancelled, now.Add(time.Hour), DisplayCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(tt.status, tt.expiresAt, now)
			if got != tt.want {
				t.Errorf("Project = %q, want %q", got, tt.want)
			}
			if again := Project(tt.status, tt.expiresAt, now); again != got {
				t.Errorf("Project not idempotent: %q then %q", got, again)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if !StatusAccepted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("accepted and cancelled must be terminal")
	}
	if Status("expired").Valid() {
		t.Error("expired is a projection, never a stored status")
	}
}

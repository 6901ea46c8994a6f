package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProfileDeletionMark(t *testing.T) {
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	mark := NewProfileDeletionMark(now)

	assert.True(t, mark.MarkedForDeletion)
	assert.Equal(t, now.Add(30*24*time.Hour), mark.DeletionScheduledAt)
	assert.Equal(t, mark.DeletionScheduledAt.Unix(), mark.PurgeAt)
	assert.Equal(t, now, mark.UpdatedAt)
}

func TestDonorRecordIDs(t *testing.T) {
	assert.Equal(t, []string{"user-1_daytime", "user-1_nighttime"}, DonorRecordIDs("user-1"))
}

func TestDeletionRun_Steps(t *testing.T) {
	now := time.Now()
	run := NewDeletionRun("user-1", now)

	assert.True(t, strings.HasPrefix(run.RunID, "del_"))
	assert.Equal(t, DeletionStatusInProgress, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, now.Add(DeletionGracePeriod).UTC(), run.DeletionScheduledAt)
	assert.False(t, run.IsStepCompleted(DeletionStepMarkProfile))

	run.MarkStepCompleted(DeletionStepMarkProfile, now)
	run.MarkStepCompleted(DeletionStepMarkProfile, now)
	assert.True(t, run.IsStepCompleted(DeletionStepMarkProfile))
	assert.Len(t, run.CompletedSteps, 1)

	run.MarkFailed(errors.New("boom"), now)
	assert.Equal(t, DeletionStatusFailed, run.Status)
	assert.Equal(t, "boom", run.LastError)

	run.Resume(now)
	assert.Equal(t, DeletionStatusInProgress, run.Status)
	assert.Equal(t, 2, run.Attempts)

	run.MarkCompleted(now)
	assert.Equal(t, DeletionStatusCompleted, run.Status)
	assert.Empty(t, run.LastError)
	assert.NotNil(t, run.CompletedAt)
}

func TestDeletionRun_Replace(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	old := NewDeletionRun("user-1", start)
	old.Username = "alice"
	old.IdentityDeleteSent = true
	old.MarkStepCompleted(DeletionStepMarkProfile, start)
	old.MarkCompleted(start)
	old.Version = 7

	later := start.Add(48 * time.Hour)
	next := old.Replace(later)

	assert.NotEqual(t, old.RunID, next.RunID)
	assert.Equal(t, "user-1", next.UserID)
	assert.Equal(t, "alice", next.Username)
	assert.Equal(t, 7, next.Version)
	assert.Equal(t, 1, next.Attempts)
	assert.False(t, next.IdentityDeleteSent)
	assert.Empty(t, next.CompletedSteps)
	assert.Equal(t, later.Add(DeletionGracePeriod), next.DeletionScheduledAt)
}

func TestDeletionRun_Validate(t *testing.T) {
	tests := []struct {
		name        string
		run         DeletionRun
		expectError bool
	}{
		{
			name:        "Valid run",
			run:         DeletionRun{UserID: "u", RunID: "r", Status: DeletionStatusInProgress, CompletedSteps: []string{DeletionStepMarkProfile}},
			expectError: false,
		},
		{
			name:        "Missing user ID",
			run:         DeletionRun{RunID: "r", Status: DeletionStatusInProgress},
			expectError: true,
		},
		{
			name:        "Missing run ID",
			run:         DeletionRun{UserID: "u", Status: DeletionStatusInProgress},
			expectError: true,
		},
		{
			name:        "Unknown status",
			run:         DeletionRun{UserID: "u", RunID: "r", Status: "paused"},
			expectError: true,
		},
		{
			name:        "Unknown step",
			run:         DeletionRun{UserID: "u", RunID: "r", Status: DeletionStatusFailed, CompletedSteps: []string{"drop_tables"}},
			expectError: true,
		},
		{
			name:        "Negative request count",
			run:         DeletionRun{UserID: "u", RunID: "r", Status: DeletionStatusCompleted, RequestsDeleted: -1},
			expectError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.run.Validate()
			if test.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeletionReceipt(t *testing.T) {
	now := time.Now()
	run := NewDeletionRun("user-1", now)
	run.MarkStepCompleted(DeletionStepMarkProfile, now)
	run.RequestsDeleted = 3
	run.MarkCompleted(now)

	receipt := NewDeletionReceipt(run)
	assert.Equal(t, "user-1", receipt.UserID)
	assert.Equal(t, run.RunID, receipt.RunID)
	assert.Equal(t, 3, receipt.RequestsDeleted)
	assert.Equal(t, *run.CompletedAt, receipt.CompletedAt)
	assert.Equal(t, "deletion-receipts/user-1/"+run.RunID+".json", DeletionReceiptKey("user-1", run.RunID))
}

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeletionGracePeriod is how long a flagged profile is kept before the purge job removes it
const DeletionGracePeriod = 30 * 24 * time.Hour

// DeletionMessage is returned to the caller once the workflow completes
const DeletionMessage = "Account deleted. Your data will be permanently removed from our servers in 30 days."

// Donor shift suffixes; each user may have one donor record per shift
const (
	DonorShiftDaytime   = "daytime"
	DonorShiftNighttime = "nighttime"
)

// Deletion step names, in execution order
const (
	DeletionStepMarkProfile    = "mark_profile"
	DeletionStepDeleteDonors   = "delete_donors"
	DeletionStepDeleteProvider = "delete_provider"
	DeletionStepDeleteRequests = "delete_requests"
	DeletionStepDeleteIdentity = "delete_identity"
)

// DeletionSteps lists every step of the account deletion workflow in order
var DeletionSteps = []string{
	DeletionStepMarkProfile,
	DeletionStepDeleteDonors,
	DeletionStepDeleteProvider,
	DeletionStepDeleteRequests,
	DeletionStepDeleteIdentity,
}

// Deletion run status constants
const (
	DeletionStatusInProgress = "in_progress"
	DeletionStatusCompleted  = "completed"
	DeletionStatusFailed     = "failed"
)

// ProfileDeletionMark holds the attributes written to a user profile when deletion is requested
type ProfileDeletionMark struct {
	MarkedForDeletion   bool      `dynamodbav:"markedForDeletion"`
	DeletionScheduledAt time.Time `dynamodbav:"deletionScheduledAt"`
	PurgeAt             int64     `dynamodbav:"purgeAt"` // DynamoDB TTL attribute
	UpdatedAt           time.Time `dynamodbav:"updatedAt"`
}

// NewProfileDeletionMark schedules the purge exactly one grace period after now
func NewProfileDeletionMark(now time.Time) ProfileDeletionMark {
	return ProfileDeletionMarkAt(now, now.Add(DeletionGracePeriod))
}

// ProfileDeletionMarkAt builds a mark for an already scheduled purge time
func ProfileDeletionMarkAt(now, scheduledAt time.Time) ProfileDeletionMark {
	return ProfileDeletionMark{
		MarkedForDeletion:   true,
		DeletionScheduledAt: scheduledAt.UTC(),
		PurgeAt:             scheduledAt.Unix(),
		UpdatedAt:           now.UTC(),
	}
}

// HealthcareProvider is the provider record owned by a user
type HealthcareProvider struct {
	ID           string    `json:"id" dynamodbav:"id"`
	Name         string    `json:"name" dynamodbav:"name"`
	FacilityType string    `json:"facility_type,omitempty" dynamodbav:"facilityType,omitempty"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"createdAt"`
}

// BloodRequest is the subset of a blood request record needed for deletion
type BloodRequest struct {
	ID          string `json:"id" dynamodbav:"id"`
	RequesterID string `json:"requester_id" dynamodbav:"requesterId"`
}

// DeletionRun is the persisted progress marker of one account deletion.
//
// IdentityDeleteSent is set before a delete is sent to the identity provider,
// so a later "not found" can be read as that earlier delete having landed.
// Version is the stored revision the copy was read at; 0 means never stored.
type DeletionRun struct {
	UserID              string     `json:"user_id" dynamodbav:"userId"`
	Username            string     `json:"username,omitempty" dynamodbav:"username,omitempty"`
	RunID               string     `json:"run_id" dynamodbav:"runId"`
	Status              string     `json:"status" dynamodbav:"status"`
	CompletedSteps      []string   `json:"completed_steps" dynamodbav:"completedSteps"`
	DeletionScheduledAt time.Time  `json:"deletion_scheduled_at" dynamodbav:"deletionScheduledAt"`
	RequestsDeleted     int        `json:"requests_deleted" dynamodbav:"requestsDeleted"`
	ProviderDeleted     bool       `json:"provider_deleted" dynamodbav:"providerDeleted"`
	IdentityDeleteSent  bool       `json:"identity_delete_sent" dynamodbav:"identityDeleteSent"`
	LastError           string     `json:"last_error,omitempty" dynamodbav:"lastError,omitempty"`
	Attempts            int        `json:"attempts" dynamodbav:"attempts"`
	StartedAt           time.Time  `json:"started_at" dynamodbav:"startedAt"`
	UpdatedAt           time.Time  `json:"updated_at" dynamodbav:"updatedAt"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" dynamodbav:"completedAt,omitempty"`
	Version             int        `json:"version" dynamodbav:"version"`
}

// NewDeletionRun starts a run for userID with the purge scheduled one grace period after now
func NewDeletionRun(userID string, now time.Time) *DeletionRun {
	return &DeletionRun{
		UserID:              userID,
		RunID:               GenerateDeletionRunID(),
		Status:              DeletionStatusInProgress,
		CompletedSteps:      []string{},
		Attempts:            1,
		DeletionScheduledAt: now.Add(DeletionGracePeriod).UTC(),
		StartedAt:           now.UTC(),
		UpdatedAt:           now.UTC(),
	}
}

// IsStepCompleted reports whether step has already committed in this run
func (r *DeletionRun) IsStepCompleted(step string) bool {
	for _, s := range r.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// MarkStepCompleted records step as committed
func (r *DeletionRun) MarkStepCompleted(step string, now time.Time) {
	if !r.IsStepCompleted(step) {
		r.CompletedSteps = append(r.CompletedSteps, step)
	}
	r.UpdatedAt = now.UTC()
}

// MarkFailed records the error that stopped the run
func (r *DeletionRun) MarkFailed(err error, now time.Time) {
	r.Status = DeletionStatusFailed
	r.LastError = err.Error()
	r.UpdatedAt = now.UTC()
}

// MarkCompleted closes the run
func (r *DeletionRun) MarkCompleted(now time.Time) {
	completed := now.UTC()
	r.Status = DeletionStatusCompleted
	r.LastError = ""
	r.UpdatedAt = completed
	r.CompletedAt = &completed
}

// Replace starts a fresh run that takes over the stored slot of r
func (r *DeletionRun) Replace(now time.Time) *DeletionRun {
	next := NewDeletionRun(r.UserID, now)
	next.Username = r.Username
	next.Version = r.Version
	return next
}

// Resume prepares a previously failed or interrupted run for another attempt
func (r *DeletionRun) Resume(now time.Time) {
	r.Status = DeletionStatusInProgress
	r.Attempts++
	r.UpdatedAt = now.UTC()
}

// Validate checks the run record before it is persisted
func (r *DeletionRun) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	switch r.Status {
	case DeletionStatusInProgress, DeletionStatusCompleted, DeletionStatusFailed:
	default:
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if r.RequestsDeleted < 0 {
		return fmt.Errorf("requests_deleted cannot be negative")
	}
	for _, step := range r.CompletedSteps {
		if !ValidateDeletionStep(step) {
			return fmt.Errorf("unknown deletion step: %s", step)
		}
	}
	return nil
}

// ValidateDeletionStep checks if the step name is one of DeletionSteps
func ValidateDeletionStep(step string) bool {
	for _, s := range DeletionSteps {
		if s == step {
			return true
		}
	}
	return false
}

// DeletionReceipt is the audit record archived once a deletion run completes
type DeletionReceipt struct {
	UserID              string    `json:"user_id"`
	RunID               string    `json:"run_id"`
	CompletedSteps      []string  `json:"completed_steps"`
	RequestsDeleted     int       `json:"requests_deleted"`
	ProviderDeleted     bool      `json:"provider_deleted"`
	Attempts            int       `json:"attempts"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at"`
	DeletionScheduledAt time.Time `json:"deletion_scheduled_at"`
}

// NewDeletionReceipt summarizes a completed run
func NewDeletionReceipt(r *DeletionRun) DeletionReceipt {
	receipt := DeletionReceipt{
		UserID:              r.UserID,
		RunID:               r.RunID,
		CompletedSteps:      append([]string(nil), r.CompletedSteps...),
		RequestsDeleted:     r.RequestsDeleted,
		ProviderDeleted:     r.ProviderDeleted,
		Attempts:            r.Attempts,
		StartedAt:           r.StartedAt,
		DeletionScheduledAt: r.DeletionScheduledAt,
	}
	if r.CompletedAt != nil {
		receipt.CompletedAt = *r.CompletedAt
	}
	return receipt
}

// DeletionResponse is the result of the delete user callable
type DeletionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GenerateDeletionRunID creates a unique ID for a deletion run
func GenerateDeletionRunID() string {
	return "del_" + uuid.New().String()
}

// DonorRecordID builds the donor record key for a user and shift
func DonorRecordID(userID, shift string) string {
	return userID + "_" + shift
}

// DonorRecordIDs returns the keys of every donor record a user can own
func DonorRecordIDs(userID string) []string {
	return []string{
		DonorRecordID(userID, DonorShiftDaytime),
		DonorRecordID(userID, DonorShiftNighttime),
	}
}

// DeletionReceiptKey is the S3 key of the receipt for a run
func DeletionReceiptKey(userID, runID string) string {
	return fmt.Sprintf("deletion-receipts/%s/%s.json", userID, runID)
}

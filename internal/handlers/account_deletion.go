package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"blood-donation-functions/internal/callable"
	"blood-donation-functions/internal/logging"
	"blood-donation-functions/internal/models"
	"blood-donation-functions/internal/services"
)

// maxConcurrentDeletes bounds the request deletion batch
const maxConcurrentDeletes = 25

// AccountStore is the user-linked data touched by account deletion
type AccountStore interface {
	MarkProfileForDeletion(ctx context.Context, userID string, mark models.ProfileDeletionMark) error
	DeleteDonorRecord(ctx context.Context, recordID string) error
	GetHealthcareProvider(ctx context.Context, userID string) (*models.HealthcareProvider, error)
	DeleteHealthcareProvider(ctx context.Context, userID string) error
	QueryBloodRequestIDsByRequester(ctx context.Context, userID string) ([]string, error)
	DeleteBloodRequest(ctx context.Context, requestID string) error
}

// DeletionProgressStore persists the progress marker of a deletion run
type DeletionProgressStore interface {
	GetDeletionRun(ctx context.Context, userID string) (*models.DeletionRun, error)
	PutDeletionRun(ctx context.Context, run *models.DeletionRun) error
}

// IdentityProvider removes a caller's sign-in identity. username may be
// empty, in which case the provider resolves it from uid. A missing identity
// is reported as services.ErrIdentityNotFound.
type IdentityProvider interface {
	DeleteIdentity(ctx context.Context, uid, username string) error
}

// ReceiptArchiver stores the audit receipt of a completed run
type ReceiptArchiver interface {
	UploadDeletionReceipt(ctx context.Context, receipt models.DeletionReceipt) (*services.S3UploadResult, error)
}

// AccountDeletionWorkflow deletes everything linked to the calling user.
//
// Steps run in order and each one commits on its own; nothing is rolled
// back when a later step fails. Completed steps are recorded in a
// DeletionRun so a retried call resumes where the last one stopped.
// Every write of the run is conditional on its version, so a concurrent
// call for the same user fails instead of overwriting progress.
type AccountDeletionWorkflow struct {
	store      AccountStore
	progress   DeletionProgressStore
	identities IdentityProvider
	receipts   ReceiptArchiver
	now        func() time.Time
}

type deletionStep struct {
	name string
	run  func(ctx context.Context, run *models.DeletionRun) error
}

// NewAccountDeletionWorkflow creates the workflow; receipts may be nil
func NewAccountDeletionWorkflow(store AccountStore, progress DeletionProgressStore, identities IdentityProvider, receipts ReceiptArchiver) *AccountDeletionWorkflow {
	return &AccountDeletionWorkflow{
		store:      store,
		progress:   progress,
		identities: identities,
		receipts:   receipts,
		now:        time.Now,
	}
}

// WithClock replaces the time source
func (w *AccountDeletionWorkflow) WithClock(now func() time.Time) *AccountDeletionWorkflow {
	w.now = now
	return w
}

// Handle is the callable entry point; the user comes only from the verified identity
func (w *AccountDeletionWorkflow) Handle(ctx context.Context, req callable.Request) (interface{}, error) {
	var username string
	if req.Auth != nil {
		username = req.Auth.Username
	}
	return w.Delete(ctx, req.UID(), username)
}

// Delete runs (or resumes) the deletion of userID. username is the sign-in
// name of the identity when known, and may be empty.
func (w *AccountDeletionWorkflow) Delete(ctx context.Context, userID, username string) (*models.DeletionResponse, error) {
	if userID == "" {
		return nil, callable.Unauthenticated("User must be authenticated to delete their account.")
	}

	logger := logging.FromContext(ctx).With(zap.String("user_id", userID))
	logger.Info("Starting account deletion")

	run, err := w.startRun(ctx, userID, username)
	if err != nil {
		return nil, deletionError(err)
	}
	logger = logger.With(zap.String("run_id", run.RunID), zap.Int("attempt", run.Attempts))

	for _, step := range w.steps() {
		if run.IsStepCompleted(step.name) {
			logger.Info("Skipping completed deletion step", zap.String("step", step.name))
			continue
		}

		if err := step.run(ctx, run); err != nil {
			logger.Error("Deletion step failed", zap.String("step", step.name), zap.Error(err))
			run.MarkFailed(err, w.now())
			if perr := w.progress.PutDeletionRun(ctx, run); perr != nil {
				logger.Error("Failed to record deletion failure", zap.Error(perr))
			}
			return nil, deletionError(err)
		}

		run.MarkStepCompleted(step.name, w.now())
		if err := w.progress.PutDeletionRun(ctx, run); err != nil {
			return nil, deletionError(err)
		}
		logger.Info("Deletion step completed", zap.String("step", step.name))
	}

	run.MarkCompleted(w.now())
	if err := w.progress.PutDeletionRun(ctx, run); err != nil {
		logger.Warn("Failed to record deletion completion", zap.Error(err))
	}

	w.archiveReceipt(ctx, logger, run)

	logger.Info("Account deletion completed; data will be permanently deleted after the grace period",
		zap.Time("deletion_scheduled_at", run.DeletionScheduledAt),
		zap.Int("requests_deleted", run.RequestsDeleted),
	)

	return &models.DeletionResponse{
		Success: true,
		Message: models.DeletionMessage,
	}, nil
}

// startRun loads an unfinished run for userID or starts a new one, and persists it
func (w *AccountDeletionWorkflow) startRun(ctx context.Context, userID, username string) (*models.DeletionRun, error) {
	now := w.now()

	run, err := w.progress.GetDeletionRun(ctx, userID)
	switch {
	case errors.Is(err, services.ErrItemNotFound):
		run = models.NewDeletionRun(userID, now)
	case err != nil:
		return nil, err
	case run.Status == models.DeletionStatusCompleted:
		run = run.Replace(now)
	default:
		run.Resume(now)
	}
	if username != "" {
		run.Username = username
	}

	if err := w.progress.PutDeletionRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (w *AccountDeletionWorkflow) steps() []deletionStep {
	return []deletionStep{
		{name: models.DeletionStepMarkProfile, run: w.markProfile},
		{name: models.DeletionStepDeleteDonors, run: w.deleteDonors},
		{name: models.DeletionStepDeleteProvider, run: w.deleteProvider},
		{name: models.DeletionStepDeleteRequests, run: w.deleteRequests},
		{name: models.DeletionStepDeleteIdentity, run: w.deleteIdentity},
	}
}

func (w *AccountDeletionWorkflow) markProfile(ctx context.Context, run *models.DeletionRun) error {
	mark := models.ProfileDeletionMarkAt(w.now(), run.DeletionScheduledAt)
	return w.store.MarkProfileForDeletion(ctx, run.UserID, mark)
}

func (w *AccountDeletionWorkflow) deleteDonors(ctx context.Context, run *models.DeletionRun) error {
	var g errgroup.Group
	for _, id := range models.DonorRecordIDs(run.UserID) {
		id := id
		g.Go(func() error {
			return w.store.DeleteDonorRecord(ctx, id)
		})
	}
	return g.Wait()
}

func (w *AccountDeletionWorkflow) deleteProvider(ctx context.Context, run *models.DeletionRun) error {
	_, err := w.store.GetHealthcareProvider(ctx, run.UserID)
	if errors.Is(err, services.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := w.store.DeleteHealthcareProvider(ctx, run.UserID); err != nil {
		return err
	}
	run.ProviderDeleted = true
	return nil
}

func (w *AccountDeletionWorkflow) deleteRequests(ctx context.Context, run *models.DeletionRun) error {
	ids, err := w.store.QueryBloodRequestIDsByRequester(ctx, run.UserID)
	if err != nil {
		return err
	}

	// only requests still present are queried, so each attempt adds what it deleted
	var deleted atomic.Int64
	var g errgroup.Group
	g.SetLimit(maxConcurrentDeletes)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := w.store.DeleteBloodRequest(ctx, id); err != nil {
				return err
			}
			deleted.Add(1)
			return nil
		})
	}
	err = g.Wait()
	run.RequestsDeleted += int(deleted.Load())
	return err
}

func (w *AccountDeletionWorkflow) deleteIdentity(ctx context.Context, run *models.DeletionRun) error {
	sentBefore := run.IdentityDeleteSent
	if !sentBefore {
		run.IdentityDeleteSent = true
		if err := w.progress.PutDeletionRun(ctx, run); err != nil {
			run.IdentityDeleteSent = false
			return err
		}
	}

	err := w.identities.DeleteIdentity(ctx, run.UserID, run.Username)
	if errors.Is(err, services.ErrIdentityNotFound) {
		if sentBefore {
			// an earlier attempt's delete landed before its outcome was recorded
			return nil
		}
		run.IdentityDeleteSent = false
	}
	return err
}

func (w *AccountDeletionWorkflow) archiveReceipt(ctx context.Context, logger *zap.Logger, run *models.DeletionRun) {
	if w.receipts == nil {
		return
	}
	result, err := w.receipts.UploadDeletionReceipt(ctx, models.NewDeletionReceipt(run))
	if err != nil {
		logger.Warn("Failed to archive deletion receipt", zap.Error(err))
		return
	}
	logger.Info("Archived deletion receipt", zap.String("key", result.Key))
}

func deletionError(err error) error {
	return callable.Internal(fmt.Sprintf("Failed to delete account: %s", err.Error()), err)
}

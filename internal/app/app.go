// Package app wires configuration and AWS clients into the callable handlers.
// Each Lambda binary and the local server build their functions from here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"blood-donation-functions/internal/callable"
	"blood-donation-functions/internal/config"
	"blood-donation-functions/internal/handlers"
	"blood-donation-functions/internal/logging"
	"blood-donation-functions/internal/services"
)

// Callable function names, used as Lambda names and local server routes
const (
	FunctionPlacesAutocomplete = "placesAutocomplete"
	FunctionGetPlaceDetails    = "getPlaceDetails"
	FunctionDeleteUser         = "deleteUser"
)

// App holds the shared dependencies of one execution environment
type App struct {
	Config *config.Config
	Logger *zap.Logger
	AWS    *services.AWSClients
}

// New loads configuration, builds the logger and the AWS clients
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	clients, err := services.NewAWSClients(ctx)
	if err != nil {
		return nil, err
	}

	return &App{
		Config: cfg,
		Logger: logger,
		AWS:    clients,
	}, nil
}

// PlacesCredentials prefers PLACES_API_KEY and falls back to Secrets Manager
func (a *App) PlacesCredentials() services.CredentialChain {
	return services.CredentialChain{
		services.StaticCredential(a.Config.Places.APIKey),
		services.NewSecretsManagerCredential(a.AWS.SecretsManager, a.Config.Places.APIKeySecretID),
	}
}

// PlacesClient creates the Places API client from configuration
func (a *App) PlacesClient() *services.PlacesClient {
	return services.NewPlacesClient(a.Config.Places.BaseURL, a.Config.Places.HTTPTimeout)
}

// PlaceSearch builds the placesAutocomplete function
func (a *App) PlaceSearch() callable.Func {
	return handlers.NewPlaceSearchHandler(a.PlacesClient(), a.PlacesCredentials()).Handle
}

// PlaceDetails builds the getPlaceDetails function
func (a *App) PlaceDetails() callable.Func {
	return handlers.NewPlaceDetailHandler(a.PlacesClient(), a.PlacesCredentials()).Handle
}

// AccountDeletion builds the deleteUser function
func (a *App) AccountDeletion() (callable.Func, error) {
	if err := a.Config.ValidateDeletion(); err != nil {
		return nil, fmt.Errorf("delete user function is not configured: %w", err)
	}

	store := services.NewAccountStore(a.AWS.DynamoDB, services.AccountTables{
		Users:          a.Config.Tables.Users,
		Donors:         a.Config.Tables.Donors,
		Providers:      a.Config.Tables.Providers,
		BloodRequests:  a.Config.Tables.BloodRequests,
		RequesterIndex: a.Config.Tables.RequesterIndex,
		Deletions:      a.Config.Tables.Deletions,
	})
	identities := services.NewCognitoIdentityProvider(a.AWS.Cognito, a.Config.Cognito.UserPoolID)

	// receipts stays a nil interface when no bucket is configured
	var receipts handlers.ReceiptArchiver
	if archive := services.NewReceiptArchive(a.AWS.S3, a.Config.S3.ReceiptBucket); archive.Enabled() {
		receipts = archive
	} else {
		a.Logger.Info("Deletion receipts disabled; DELETION_RECEIPTS_BUCKET not set")
	}

	return handlers.NewAccountDeletionWorkflow(store, store, identities, receipts).Handle, nil
}

// Functions returns every configured callable function keyed by name.
// deleteUser is left out when its tables or user pool are not configured.
func (a *App) Functions() map[string]callable.Func {
	functions := map[string]callable.Func{
		FunctionPlacesAutocomplete: a.PlaceSearch(),
		FunctionGetPlaceDetails:    a.PlaceDetails(),
	}

	deleteUser, err := a.AccountDeletion()
	if err != nil {
		a.Logger.Warn("Skipping function", zap.String("function", FunctionDeleteUser), zap.Error(err))
		return functions
	}
	functions[FunctionDeleteUser] = deleteUser

	return functions
}

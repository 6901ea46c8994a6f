// Package handlers holds the bodies of the callable functions. Each handler
// depends on small interfaces so it can run against fakes in tests.
package handlers

import (
	"context"

	"blood-donation-functions/internal/models"
)

// CredentialSource supplies the Places API key
type CredentialSource interface {
	PlacesAPIKey(ctx context.Context) (string, error)
}

// PlacesAPI is the Places API surface used by the search and details handlers
type PlacesAPI interface {
	Autocomplete(ctx context.Context, apiKey string, req models.AutocompleteRequest) (*models.AutocompleteResponse, error)
	GetPlace(ctx context.Context, apiKey, placeID string, fields ...string) (*models.Place, error)
}

package handlers

import (
	"context"

	"go.uber.org/zap"

	"blood-donation-functions/internal/callable"
	"blood-donation-functions/internal/logging"
	"blood-donation-functions/internal/models"
	"blood-donation-functions/internal/services"
)

// PlaceDetailHandler resolves a place ID to coordinates and a display name
type PlaceDetailHandler struct {
	places      PlacesAPI
	credentials CredentialSource
}

// NewPlaceDetailHandler creates a details handler
func NewPlaceDetailHandler(places PlacesAPI, credentials CredentialSource) *PlaceDetailHandler {
	return &PlaceDetailHandler{
		places:      places,
		credentials: credentials,
	}
}

// Handle is the callable entry point
func (h *PlaceDetailHandler) Handle(ctx context.Context, req callable.Request) (interface{}, error) {
	var detail models.PlaceDetailRequest
	if err := callable.DecodeData(req.Data, &detail, "placeId required."); err != nil {
		return nil, err
	}
	return h.Details(ctx, detail.PlaceID)
}

// Details fetches one place. A record without a location is NOT_FOUND.
func (h *PlaceDetailHandler) Details(ctx context.Context, placeID string) (*models.PlaceDetailResult, error) {
	logger := logging.FromContext(ctx)

	if placeID == "" {
		return nil, callable.InvalidArgument("placeId required.")
	}

	apiKey, err := h.credentials.PlacesAPIKey(ctx)
	if err != nil {
		logger.Error("Places API key unavailable", zap.Error(err))
		return nil, callable.FailedPrecondition("Google Places API key is not configured.")
	}

	logger.Info("Fetching place details", zap.String("place_id", placeID))

	place, err := h.places.GetPlace(ctx, apiKey, placeID,
		services.PlaceFieldID,
		services.PlaceFieldLocation,
		services.PlaceFieldDisplayName,
	)
	if err != nil {
		return nil, callable.Internal(err.Error(), err)
	}

	logger.Debug("Place details response", zap.Any("place", place))

	if place.Location == nil {
		return nil, callable.NotFound("No coordinates found for this place.")
	}

	result := &models.PlaceDetailResult{
		Lat: place.Location.Latitude,
		Lng: place.Location.Longitude,
	}
	if place.DisplayName != nil {
		result.Name = place.DisplayName.Text
	}

	return result, nil
}

package callable

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"blood-donation-functions/internal/logging"
)

const maxBodyBytes = 1 << 20

// TokenVerifier turns a bearer token into a verified identity
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// HS256Verifier verifies locally issued HS256 JWTs; used by the local server only
type HS256Verifier struct {
	Secret []byte
}

// Verify parses and validates token, returning the identity in its sub claim
func (v HS256Verifier) Verify(token string) (*Identity, error) {
	if len(v.Secret) == 0 {
		return nil, errors.New("verifier has no secret")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{UID: sub, Username: usernameFrom(claims), Claims: claims}, nil
}

// IdentityFromRequest verifies the bearer token on r. A missing or invalid
// token yields a nil identity; the function decides whether that is allowed.
func IdentityFromRequest(r *http.Request, verifier TokenVerifier) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" || verifier == nil {
		return nil, ErrNoIdentity
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrNoIdentity
	}
	return verifier.Verify(token)
}

// NewRouter serves each function at POST /{name}
func NewRouter(functions map[string]Func, verifier TokenVerifier, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	for name, fn := range functions {
		r.Post("/"+name, httpHandler(name, fn, verifier, logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func httpHandler(name string, fn Func, verifier TokenVerifier, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.With(
			zap.String("function", name),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		ctx := logging.ContextWithLogger(r.Context(), reqLogger)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, InvalidArgument("Failed to read request body."))
			return
		}

		data, err := DecodeEnvelope(body)
		if err != nil {
			writeError(w, AsError(err))
			return
		}

		identity, err := IdentityFromRequest(r, verifier)
		if err != nil && !errors.Is(err, ErrNoIdentity) {
			reqLogger.Warn("Rejected bearer token", zap.Error(err))
		}

		status, respBody := Invoke(ctx, fn, Request{Data: data, Auth: identity})
		writeResponse(w, status, respBody)
	}
}

func writeError(w http.ResponseWriter, ce *Error) {
	status, body := encodeError(ce)
	writeResponse(w, status, body)
}

func writeResponse(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Package callable implements the request/response protocol shared by the
// functions: a JSON body {"data": ...} in, {"result": ...} or
// {"error": {"status", "message"}} out.
package callable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"blood-donation-functions/internal/logging"
)

// Identity is the verified caller identity attached by the transport.
// Username is the identity provider's sign-in name when the token carries
// one; it may differ from UID.
type Identity struct {
	UID      string
	Username string
	Claims   map[string]interface{}
}

// usernameClaims are checked in order for the sign-in name
var usernameClaims = []string{"cognito:username", "username"}

func usernameFrom(claims map[string]interface{}) string {
	for _, key := range usernameClaims {
		if name, ok := claims[key].(string); ok && name != "" {
			return name
		}
	}
	return ""
}

// Request is a decoded callable invocation
type Request struct {
	Data json.RawMessage
	Auth *Identity
}

// UID returns the verified caller ID, or "" when the call is anonymous
func (r Request) UID() string {
	if r.Auth == nil {
		return ""
	}
	return r.Auth.UID
}

// Func is a callable function body
type Func func(ctx context.Context, req Request) (interface{}, error)

type requestEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type resultEnvelope struct {
	Result interface{} `json:"result"`
}

type errorBody struct {
	Status  Code   `json:"status"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// DecodeEnvelope extracts the data field from a request body.
// An empty body is treated as a call with null data.
func DecodeEnvelope(body []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var env requestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, InvalidArgument("Request body must be a JSON object with a data field.")
	}
	return env.Data, nil
}

// DecodeData unmarshals request data into v; message is returned on type mismatch
func DecodeData(data json.RawMessage, v interface{}, message string) error {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Code: CodeInvalidArgument, Message: message, Err: err}
	}
	return nil
}

// Invoke runs fn and encodes its outcome as a callable response
func Invoke(ctx context.Context, fn Func, req Request) (int, []byte) {
	logger := logging.FromContext(ctx)

	result, err := fn(ctx, req)
	if err != nil {
		ce := AsError(err)
		fields := []zap.Field{zap.String("status", string(ce.Code)), zap.String("message", ce.Message)}
		if ce.Err != nil {
			fields = append(fields, zap.Error(ce.Err))
		}
		if ce.Code == CodeInternal {
			logger.Error("Callable failed", fields...)
		} else {
			logger.Info("Callable rejected", fields...)
		}
		return encodeError(ce)
	}

	body, err := json.Marshal(resultEnvelope{Result: result})
	if err != nil {
		logger.Error("Failed to marshal callable result", zap.Error(err))
		return encodeError(Internal("Failed to encode response", err))
	}
	return http.StatusOK, body
}

func encodeError(ce *Error) (int, []byte) {
	body, err := json.Marshal(errorEnvelope{Error: errorBody{Status: ce.Code, Message: ce.Message}})
	if err != nil {
		return http.StatusInternalServerError, []byte(`{"error":{"status":"INTERNAL","message":"Internal server error"}}`)
	}
	return ce.Code.HTTPStatus(), body
}

// ErrNoIdentity is returned by verifiers when the request carries no credentials
var ErrNoIdentity = errors.New("no identity")

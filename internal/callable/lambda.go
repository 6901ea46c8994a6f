package callable

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"blood-donation-functions/internal/logging"
)

// responseHeaders are set on every API Gateway response
var responseHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
	"Access-Control-Allow-Methods": "POST,OPTIONS",
	"Content-Type":                 "application/json",
}

// LambdaHandler adapts fn to an API Gateway proxy integration
func LambdaHandler(name string, fn Func, logger *zap.Logger) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if request.HTTPMethod == http.MethodOptions {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: responseHeaders}, nil
		}

		reqLogger := logger.With(
			zap.String("function", name),
			zap.String("request_id", request.RequestContext.RequestID),
		)
		ctx = logging.ContextWithLogger(ctx, reqLogger)

		if request.HTTPMethod != "" && request.HTTPMethod != http.MethodPost {
			status, body := encodeError(InvalidArgument("Request must be a POST."))
			return proxyResponse(status, body), nil
		}

		body := []byte(request.Body)
		if request.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(request.Body)
			if err != nil {
				status, errBody := encodeError(InvalidArgument("Request body is not valid base64."))
				return proxyResponse(status, errBody), nil
			}
			body = decoded
		}

		data, err := DecodeEnvelope(body)
		if err != nil {
			status, errBody := encodeError(AsError(err))
			return proxyResponse(status, errBody), nil
		}

		status, respBody := Invoke(ctx, fn, Request{
			Data: data,
			Auth: IdentityFromAuthorizer(request.RequestContext.Authorizer),
		})
		return proxyResponse(status, respBody), nil
	}
}

func proxyResponse(status int, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    responseHeaders,
		Body:       string(body),
	}
}

// IdentityFromAuthorizer reads the caller verified by API Gateway.
// Cognito user pool authorizers expose claims.sub and claims.cognito:username;
// Lambda authorizers expose their context values and principalId at the top level.
func IdentityFromAuthorizer(authorizer map[string]interface{}) *Identity {
	if len(authorizer) == 0 {
		return nil
	}

	if claims, ok := authorizer["claims"].(map[string]interface{}); ok {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return &Identity{UID: sub, Username: usernameFrom(claims), Claims: claims}
		}
	}

	for _, key := range []string{"sub", "principalId"} {
		if uid, ok := authorizer[key].(string); ok && uid != "" {
			return &Identity{UID: uid, Username: usernameFrom(authorizer), Claims: authorizer}
		}
	}

	return nil
}

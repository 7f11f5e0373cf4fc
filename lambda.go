package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
)

// lambdaHandlerFunc is the signature handed to lambda.Start
type lambdaHandlerFunc func(ctx context.Context, event interface{}) (interface{}, error)

// newLambdaHandler serves API Gateway v1 (REST API, ALB) and v2 (HTTP API,
// function URL) events through router.
func newLambdaHandler(router *gin.Engine, logger *slog.Logger) lambdaHandlerFunc {
	v1 := ginadapter.New(router)
	v2 := ginadapter.NewV2(router)

	return func(ctx context.Context, event interface{}) (interface{}, error) {
		eventBytes, err := json.Marshal(event)
		if err != nil {
			logger.Error("Failed to marshal event", "error", err)
			return textResponse(500, "Failed to process event"), err
		}

		var reqV2 events.APIGatewayV2HTTPRequest
		if err := json.Unmarshal(eventBytes, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
			logger.Debug("Handling APIGatewayV2HTTPRequest", "method", reqV2.RequestContext.HTTP.Method, "path", reqV2.RawPath)
			return v2.ProxyWithContext(ctx, reqV2)
		}

		var reqV1 events.APIGatewayProxyRequest
		if err := json.Unmarshal(eventBytes, &reqV1); err == nil && reqV1.HTTPMethod != "" {
			logger.Debug("Handling APIGatewayProxyRequest", "method", reqV1.HTTPMethod, "path", reqV1.Path)
			return v1.ProxyWithContext(ctx, reqV1)
		}

		logger.Warn("Unable to parse event as API Gateway v1 or v2", "type", fmt.Sprintf("%T", event))
		return textResponse(500, "Unsupported event type - this function expects API Gateway or Lambda Function URL events"),
			fmt.Errorf("unsupported event type: %T", event)
	}
}

func textResponse(status int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}

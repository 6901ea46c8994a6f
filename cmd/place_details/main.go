package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"blood-donation-functions/internal/app"
	"blood-donation-functions/internal/callable"
)

var application *app.App

func init() {
	var err error
	application, err = app.New(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize %s: %v", app.FunctionGetPlaceDetails, err)
	}
}

func main() {
	defer application.Logger.Sync()

	lambda.Start(callable.LambdaHandler(app.FunctionGetPlaceDetails, application.PlaceDetails(), application.Logger))
}

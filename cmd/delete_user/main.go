package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"blood-donation-functions/internal/app"
	"blood-donation-functions/internal/callable"
)

var (
	application *app.App
	deleteUser  callable.Func
)

func init() {
	var err error
	application, err = app.New(context.Background())
	if err != nil {
		log.Fatalf("Failed to initialize %s: %v", app.FunctionDeleteUser, err)
	}

	deleteUser, err = application.AccountDeletion()
	if err != nil {
		application.Logger.Fatal("Failed to build account deletion workflow", zap.Error(err))
	}
}

func main() {
	defer application.Logger.Sync()

	lambda.Start(callable.LambdaHandler(app.FunctionDeleteUser, deleteUser, application.Logger))
}

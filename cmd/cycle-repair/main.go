// Command cycle-repair is a Lambda run on an EventBridge schedule. It breaks
// prerequisite cycles in the listed scopes and reports their health.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"conceptgraph/infrastructure/config"
	"conceptgraph/infrastructure/di"
)

func main() {
	coldStartTime := time.Now()
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	defer container.Logger.Sync()

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)))

	h := &repairHandler{svc: container.Service, logger: container.Logger}
	lambda.Start(h.Handle)
}

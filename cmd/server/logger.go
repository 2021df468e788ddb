package main

import (
	"os"

	"go.uber.org/zap"
)

// buildLogger picks the zap preset from APP_ENV.
func buildLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

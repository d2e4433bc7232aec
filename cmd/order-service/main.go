package main

import (
	"context"
	stdlog "log"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/app"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/config"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	application, err := app.NewApplication(context.Background(), config.OrderService)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}

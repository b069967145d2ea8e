package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/d-savelev/tasklane/internal/app/apiapp"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	a := apiapp.New(ctx)
	if err := a.Run(ctx); err != nil {
		panic(err)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/workflow"
)

func main() {
	pollMillis := flag.Int("poll-interval-ms", 500, "Outbox poll interval in milliseconds")
	batchSize := flag.Int("batch-size", 50, "Rows claimed per poll")
	maxAttempts := flag.Int("max-attempts", 20, "Publish attempts before a row goes DEAD")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	dispatcher := workflow.NewOutboxDispatcher(db, logger)
	dispatcher.PollInterval = time.Duration(*pollMillis) * time.Millisecond
	dispatcher.BatchSize = *batchSize
	dispatcher.MaxAttempts = *maxAttempts

	fmt.Printf("outbox dispatcher %s started (poll=%s batch=%d)\n",
		dispatcher.DispatcherID, dispatcher.PollInterval, dispatcher.BatchSize)
	dispatcher.Run(sigCtx)
	fmt.Println("outbox dispatcher stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/mmdatafocus/kinship_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	userID := flag.Int("user-id", 0, "Run dedup for one user id")
	allUsers := flag.Bool("all", false, "Run dedup for every user with entities")
	apply := flag.Bool("apply", false, "Apply merges (default dry-run: list clusters only)")
	reportPath := flag.String("report", "", "Optional: write the cluster listing to an xlsx file")
	lockTTLSeconds := flag.Int("lock-ttl-seconds", 600, "Per-user run lock TTL")
	lastStats := flag.Bool("last-stats", false, "Print the cached stats of the previous apply run and exit")
	flag.Parse()

	if *lastStats {
		if *userID <= 0 {
			fmt.Fprintln(os.Stderr, "--last-stats requires --user-id")
			os.Exit(1)
		}
		config.ConnectRedisWithRetry()
		stats, found, err := workflow.LastBatchStats(*userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read cached stats: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Printf("user %d: no cached stats\n", *userID)
			return
		}
		fmt.Printf("user %d: merged groups: %d, duplicates removed: %d, failed groups: %d\n",
			*userID, stats.MergedGroups, stats.TotalDuplicatesRemoved, stats.FailedGroups)
		return
	}

	if *allUsers && *userID > 0 {
		fmt.Fprintln(os.Stderr, "--user-id and --all are mutually exclusive")
		os.Exit(1)
	}
	if !*allUsers && *userID <= 0 {
		fmt.Fprintln(os.Stderr, "either --user-id or --all is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	config.ConnectRedisWithRetry()
	logger := logrus.New()

	ctx := utils.SetIsAdminInContext(context.Background(), true)

	userIds := []int{*userID}
	if *allUsers {
		var err error
		userIds, err = models.ListUserIds(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list users: %v\n", err)
			os.Exit(1)
		}
	}

	combined := &workflow.BatchReport{Apply: *apply}
	exitCode := 0

	for _, id := range userIds {
		// One dedup run per user at a time; a held lock means another
		// operator (or a previous run) is still working on this user.
		lock, err := acquireUserLock(ctx, id, time.Duration(*lockTTLSeconds)*time.Second)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				fmt.Printf("user %d: dedup already running, skipped\n", id)
				continue
			}
			fmt.Fprintf(os.Stderr, "user %d: lock error: %v\n", id, err)
			exitCode = 1
			continue
		}

		report, err := workflow.RunDedupe(ctx, db, logger, workflow.DedupeOptions{UserID: id, Apply: *apply})
		releaseLock(ctx, lock)

		combined.Users = append(combined.Users, id)
		combined.Outcomes = append(combined.Outcomes, report.Outcomes...)
		combined.Stats = workflow.BatchStats{
			MergedGroups:           combined.Stats.MergedGroups + report.Stats.MergedGroups,
			TotalDuplicatesRemoved: combined.Stats.TotalDuplicatesRemoved + report.Stats.TotalDuplicatesRemoved,
			FailedGroups:           combined.Stats.FailedGroups + report.Stats.FailedGroups,
		}

		if err != nil {
			// Storage unavailability is fatal: remaining users are not
			// attempted because progress cannot be guaranteed.
			fmt.Fprintf(os.Stderr, "user %d: batch aborted: %v\n", id, err)
			printReport(combined, *apply)
			os.Exit(1)
		}
	}

	printReport(combined, *apply)

	if *reportPath != "" {
		if err := workflow.WriteClusterReportXLSX(*reportPath, combined); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			exitCode = 1
		} else {
			fmt.Printf("report written to %s\n", *reportPath)
		}
	}

	os.Exit(exitCode)
}

func acquireUserLock(ctx context.Context, userId int, ttl time.Duration) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	return locker.Obtain(ctx, fmt.Sprintf("dedupe:user:%d", userId), ttl, nil)
}

func releaseLock(ctx context.Context, lock *redislock.Lock) {
	if lock != nil {
		_ = lock.Release(ctx)
	}
}

func printReport(report *workflow.BatchReport, apply bool) {
	for _, outcome := range report.Outcomes {
		cluster := outcome.Cluster

		var dups []string
		for _, d := range cluster.Duplicates {
			dups = append(dups, fmt.Sprintf("%q (id=%d)", d.DisplayName, d.ID))
		}
		fmt.Printf("user %d: primary %q (id=%d) <- %s [%s]\n",
			cluster.UserID,
			cluster.Primary.DisplayName, cluster.Primary.ID,
			strings.Join(dups, ", "),
			strings.Join(cluster.MatchReasons, ", "))

		if apply && outcome.Result != nil {
			switch {
			case outcome.Result.Merged:
				fmt.Printf("  merged: %d duplicates removed, %d records re-parented\n",
					outcome.Result.DuplicatesRemoved, outcome.Result.ReparentedRecords)
			case outcome.Result.Skipped:
				fmt.Printf("  skipped: %s\n", skipReason(outcome))
			default:
				fmt.Printf("  failed: %s\n", outcome.Reason)
			}
		}
	}

	if apply {
		fmt.Printf("merged groups: %d, duplicates removed: %d, failed groups: %d\n",
			report.Stats.MergedGroups, report.Stats.TotalDuplicatesRemoved, report.Stats.FailedGroups)
	} else {
		fmt.Printf("dry-run: %d cluster(s) found\n", len(report.Outcomes))
	}
}

// skipReason falls back to a fixed label for skips without an error, e.g. a
// cluster whose duplicates list was empty.
func skipReason(outcome *workflow.ClusterOutcome) string {
	if outcome.Reason == "" {
		return "nothing to merge"
	}
	return outcome.Reason
}

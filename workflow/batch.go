package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BatchStats aggregates one dedup batch run. Counters are explicit values
// folded per cluster; there is no shared mutable state.
type BatchStats struct {
	MergedGroups           int `json:"merged_groups"`
	TotalDuplicatesRemoved int `json:"total_duplicates_removed"`
	FailedGroups           int `json:"failed_groups"`
}

func (s BatchStats) add(other BatchStats) BatchStats {
	return BatchStats{
		MergedGroups:           s.MergedGroups + other.MergedGroups,
		TotalDuplicatesRemoved: s.TotalDuplicatesRemoved + other.TotalDuplicatesRemoved,
		FailedGroups:           s.FailedGroups + other.FailedGroups,
	}
}

// ClusterOutcome retains one cluster's listing and, in apply mode, its
// merge result and failure reason.
type ClusterOutcome struct {
	Cluster *DuplicateCluster
	Result  *MergeResult
	Reason  string
}

// BatchReport is the output of one dedup run: every cluster the matcher
// found (merged, failed, or dry-run inspected) plus the aggregate stats.
type BatchReport struct {
	Apply    bool
	Users    []int
	Outcomes []*ClusterOutcome
	Stats    BatchStats
}

// DedupeOptions selects the batch scope: one user, or every user owning
// entities (UserID == 0). Apply=false only lists clusters.
type DedupeOptions struct {
	UserID int
	Apply  bool
}

// statsCacheLifespan bounds how long the last-run stats stay readable for
// operators (redis key dedupe:stats:<user>).
const statsCacheLifespan = 24 * time.Hour

// Seams for DB-free tests of the batch fold semantics.
var (
	findDuplicateClusters = FindDuplicateClusters
	mergeCluster          = MergeCluster
)

// RunDedupe drives the matcher and the merge executor across every cluster
// of the selected users. Clusters are processed independently: one failed
// cluster never stops the rest. Only storage unavailability aborts the run,
// returning the partial report alongside the error.
func RunDedupe(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts DedupeOptions) (*BatchReport, error) {
	report := &BatchReport{Apply: opts.Apply}

	userIds := []int{opts.UserID}
	if opts.UserID <= 0 {
		var err error
		userIds, err = models.ListUserIds(ctx)
		if err != nil {
			return report, fmt.Errorf("%w: listing users: %v", utils.ErrorStorageUnavailable, err)
		}
	}
	report.Users = userIds

	for _, userId := range userIds {
		userStats, err := runDedupeForUser(ctx, db, logger, userId, opts.Apply, report)
		report.Stats = report.Stats.add(userStats)
		if err != nil {
			return report, err
		}
		if opts.Apply {
			cacheBatchStats(userId, userStats)
		}
	}
	return report, nil
}

func runDedupeForUser(ctx context.Context, db *gorm.DB, logger *logrus.Logger, userId int, apply bool, report *BatchReport) (BatchStats, error) {
	var stats BatchStats

	clusters, err := findDuplicateClusters(ctx, db, userId)
	if err != nil {
		config.LogError(logger, "workflow", "runDedupeForUser", fmt.Sprintf("user=%d", userId), nil, err)
		return stats, fmt.Errorf("%w: matching user %d: %v", utils.ErrorStorageUnavailable, userId, err)
	}

	for _, cluster := range clusters {
		outcome := &ClusterOutcome{Cluster: cluster}
		report.Outcomes = append(report.Outcomes, outcome)

		if !apply {
			continue
		}

		// Cancellation is only meaningful between clusters; a started
		// transaction always runs to commit or abort.
		if ctx.Err() != nil {
			outcome.Reason = ctx.Err().Error()
			stats.FailedGroups++
			return stats, fmt.Errorf("%w: %v", utils.ErrorStorageUnavailable, ctx.Err())
		}

		result := mergeCluster(ctx, db, logger, cluster)
		outcome.Result = &result

		switch {
		case result.Merged:
			stats.MergedGroups++
			stats.TotalDuplicatesRemoved += result.DuplicatesRemoved
		case result.Skipped && result.Err == nil:
			// Nothing to merge; listed but not counted either way.
		default:
			outcome.Reason = result.Err.Error()
			stats.FailedGroups++
			if errors.Is(result.Err, utils.ErrorStorageUnavailable) {
				// Progress cannot be guaranteed; stop dispatching clusters.
				return stats, result.Err
			}
		}
	}
	return stats, nil
}

// cacheBatchStats keeps the latest apply stats visible to operators.
// Best effort; a cold or absent redis never fails the batch.
func cacheBatchStats(userId int, stats BatchStats) {
	_ = config.SetRedisObject(fmt.Sprintf("dedupe:stats:%d", userId), stats, statsCacheLifespan)
}

// LastBatchStats returns the cached stats of the most recent apply run for
// a user, if redis still holds them.
func LastBatchStats(userId int) (*BatchStats, bool, error) {
	var stats BatchStats
	found, err := config.GetRedisObject(fmt.Sprintf("dedupe:stats:%d", userId), &stats)
	if err != nil || !found {
		return nil, false, err
	}
	return &stats, true, nil
}

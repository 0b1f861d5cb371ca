package workflow

// NOTE: These tests are intentionally DB-free. The matcher and the merge
// executor are stubbed through the package seams so the batch fold semantics
// can be validated on their own:
// - per-cluster failure isolation (one failure never stops the rest)
// - storage unavailability aborting the remaining clusters
// - dry-run listing without mutation
// Full MySQL integration tests belong in an environment that can run the
// database.

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func stubClusters(n int) []*DuplicateCluster {
	clusters := make([]*DuplicateCluster, 0, n)
	for i := 0; i < n; i++ {
		primaryId := (i + 1) * 10
		clusters = append(clusters, &DuplicateCluster{
			UserID:       1,
			Primary:      &models.Entity{ID: primaryId, UserID: 1, DisplayName: fmt.Sprintf("Primary %d", i)},
			Duplicates:   []*models.Entity{{ID: primaryId + 1, UserID: 1}},
			MatchReasons: []string{MatchReasonSharedEmail},
		})
	}
	return clusters
}

func withStubs(t *testing.T, matcher func(context.Context, *gorm.DB, int) ([]*DuplicateCluster, error), merger func(context.Context, *gorm.DB, *logrus.Logger, *DuplicateCluster) MergeResult) {
	t.Helper()
	origMatch, origMerge := findDuplicateClusters, mergeCluster
	findDuplicateClusters = matcher
	mergeCluster = merger
	t.Cleanup(func() {
		findDuplicateClusters = origMatch
		mergeCluster = origMerge
	})
}

func TestRunDedupeDryRunListsWithoutMerging(t *testing.T) {
	merged := 0
	withStubs(t,
		func(ctx context.Context, db *gorm.DB, userId int) ([]*DuplicateCluster, error) {
			return stubClusters(3), nil
		},
		func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cluster *DuplicateCluster) MergeResult {
			merged++
			return MergeResult{Cluster: cluster, Merged: true}
		},
	)

	report, err := RunDedupe(context.Background(), nil, logrus.New(), DedupeOptions{UserID: 1, Apply: false})
	if err != nil {
		t.Fatalf("RunDedupe: %v", err)
	}
	if merged != 0 {
		t.Fatal("dry-run must not invoke the merge executor")
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected 3 listed clusters, got %d", len(report.Outcomes))
	}
	if report.Stats != (BatchStats{}) {
		t.Fatalf("dry-run stats must be zero, got %+v", report.Stats)
	}
}

func TestRunDedupeIsolatesClusterFailures(t *testing.T) {
	withStubs(t,
		func(ctx context.Context, db *gorm.DB, userId int) ([]*DuplicateCluster, error) {
			return stubClusters(4), nil
		},
		func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cluster *DuplicateCluster) MergeResult {
			if cluster.Primary.ID == 20 {
				return MergeResult{
					Cluster: cluster,
					Skipped: true,
					Err:     fmt.Errorf("%w: primary raced away", utils.ErrorRecordNotFound),
				}
			}
			return MergeResult{Cluster: cluster, Merged: true, DuplicatesRemoved: 1}
		},
	)

	report, err := RunDedupe(context.Background(), nil, logrus.New(), DedupeOptions{UserID: 1, Apply: true})
	if err != nil {
		t.Fatalf("a failed cluster must not abort the batch: %v", err)
	}
	want := BatchStats{MergedGroups: 3, TotalDuplicatesRemoved: 3, FailedGroups: 1}
	if report.Stats != want {
		t.Fatalf("stats: got %+v, want %+v", report.Stats, want)
	}

	// Every cluster the matcher found is accounted for in the report.
	if len(report.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(report.Outcomes))
	}
	failures := 0
	for _, o := range report.Outcomes {
		if o.Reason != "" {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected 1 retained failure reason, got %d", failures)
	}
}

func TestRunDedupeStorageFailureAbortsRemaining(t *testing.T) {
	attempted := 0
	withStubs(t,
		func(ctx context.Context, db *gorm.DB, userId int) ([]*DuplicateCluster, error) {
			return stubClusters(5), nil
		},
		func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cluster *DuplicateCluster) MergeResult {
			attempted++
			if attempted == 2 {
				return MergeResult{
					Cluster: cluster,
					Err:     fmt.Errorf("%w: connection lost", utils.ErrorStorageUnavailable),
				}
			}
			return MergeResult{Cluster: cluster, Merged: true, DuplicatesRemoved: 1}
		},
	)

	report, err := RunDedupe(context.Background(), nil, logrus.New(), DedupeOptions{UserID: 1, Apply: true})
	if !errors.Is(err, utils.ErrorStorageUnavailable) {
		t.Fatalf("expected storage unavailability to propagate, got %v", err)
	}
	if attempted != 2 {
		t.Fatalf("remaining clusters must not be attempted, attempted=%d", attempted)
	}
	// Partial stats still account for what happened before the abort.
	want := BatchStats{MergedGroups: 1, TotalDuplicatesRemoved: 1, FailedGroups: 1}
	if report.Stats != want {
		t.Fatalf("partial stats: got %+v, want %+v", report.Stats, want)
	}
}

func TestRunDedupeNoClusters(t *testing.T) {
	withStubs(t,
		func(ctx context.Context, db *gorm.DB, userId int) ([]*DuplicateCluster, error) {
			return nil, nil
		},
		func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cluster *DuplicateCluster) MergeResult {
			t.Fatal("merge must not run without clusters")
			return MergeResult{}
		},
	)

	report, err := RunDedupe(context.Background(), nil, logrus.New(), DedupeOptions{UserID: 1, Apply: true})
	if err != nil {
		t.Fatalf("RunDedupe: %v", err)
	}
	if report.Stats != (BatchStats{}) {
		t.Fatalf("expected zero stats, got %+v", report.Stats)
	}
	if len(report.Outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(report.Outcomes))
	}
}

func TestRunDedupeCancellationStopsBetweenClusters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempted := 0
	withStubs(t,
		func(ctx context.Context, db *gorm.DB, userId int) ([]*DuplicateCluster, error) {
			return stubClusters(3), nil
		},
		func(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cluster *DuplicateCluster) MergeResult {
			attempted++
			cancel()
			return MergeResult{Cluster: cluster, Merged: true, DuplicatesRemoved: 1}
		},
	)

	report, err := RunDedupe(ctx, nil, logrus.New(), DedupeOptions{UserID: 1, Apply: true})
	if !errors.Is(err, utils.ErrorStorageUnavailable) {
		t.Fatalf("cancellation surfaces as an aborting error, got %v", err)
	}
	if attempted != 1 {
		t.Fatalf("the in-flight cluster finishes, later ones stop; attempted=%d", attempted)
	}
	if report.Stats.MergedGroups != 1 {
		t.Fatalf("the completed cluster still counts: %+v", report.Stats)
	}
}

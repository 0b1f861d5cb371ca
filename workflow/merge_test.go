package workflow

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func TestClassifyMergeErrorNotFound(t *testing.T) {
	err := classifyMergeError(fmt.Errorf("%w: cluster entities missing", utils.ErrorRecordNotFound))
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("got %v", err)
	}

	err = classifyMergeError(fmt.Errorf("loading primary: %w", gorm.ErrRecordNotFound))
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("gorm not-found must map to ErrorRecordNotFound, got %v", err)
	}
}

func TestClassifyMergeErrorDuplicateKeyIsConflict(t *testing.T) {
	err := classifyMergeError(&gosqlmysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if !errors.Is(err, utils.ErrorMergeConflict) {
		t.Fatalf("duplicate-key must map to ErrorMergeConflict, got %v", err)
	}
}

func TestClassifyMergeErrorConnectionFailuresAreFatal(t *testing.T) {
	for _, cause := range []error{
		context.DeadlineExceeded,
		context.Canceled,
		driver.ErrBadConn,
		gosqlmysql.ErrInvalidConn,
	} {
		err := classifyMergeError(fmt.Errorf("tx: %w", cause))
		if !errors.Is(err, utils.ErrorStorageUnavailable) {
			t.Errorf("%v must map to ErrorStorageUnavailable, got %v", cause, err)
		}
	}
}

func TestClassifyMergeErrorPassesThroughUnknown(t *testing.T) {
	cause := errors.New("some constraint thing")
	if got := classifyMergeError(cause); got != cause {
		t.Fatalf("unknown errors pass through, got %v", got)
	}
	if classifyMergeError(nil) != nil {
		t.Fatal("nil stays nil")
	}
}

func ident(id int, entityId int, identifierType models.IdentifierType, token string, primary bool) *models.Identifier {
	return &models.Identifier{
		ID:             id,
		EntityID:       entityId,
		IdentifierType: identifierType,
		BlindIndex:     token,
		IsPrimary:      &primary,
	}
}

func TestPlanIdentifierMergeCollapsesSharedValues(t *testing.T) {
	primary := []*models.Identifier{
		ident(1, 10, models.IdentifierTypeEmail, "tok-a", false),
	}
	dups := []*models.Identifier{
		ident(2, 11, models.IdentifierTypeEmail, "tok-a", false),
		ident(3, 11, models.IdentifierTypePhone, "tok-b", false),
	}

	plan := planIdentifierMerge(primary, dups)
	if len(plan.DropIds) != 1 || plan.DropIds[0] != 2 {
		t.Fatalf("the value the primary already carries must be dropped, got %+v", plan)
	}
	if len(plan.MoveIds) != 1 || plan.MoveIds[0] != 3 {
		t.Fatalf("the new value must move, got %+v", plan)
	}
}

func TestPlanIdentifierMergePrimaryFlagWins(t *testing.T) {
	primary := []*models.Identifier{
		ident(1, 10, models.IdentifierTypeEmail, "tok-a", true),
	}
	dups := []*models.Identifier{
		ident(2, 11, models.IdentifierTypeEmail, "tok-b", true),
	}

	plan := planIdentifierMerge(primary, dups)
	if len(plan.DemoteIds) != 1 || plan.DemoteIds[0] != 2 {
		t.Fatalf("a flagged duplicate must lose its flag when the primary has one, got %+v", plan)
	}
}

func TestPlanIdentifierMergeKeepsOneFlagWhenPrimaryHasNone(t *testing.T) {
	primary := []*models.Identifier{
		ident(1, 10, models.IdentifierTypeEmail, "tok-a", false),
	}
	dups := []*models.Identifier{
		ident(2, 11, models.IdentifierTypeEmail, "tok-b", true),
		ident(3, 12, models.IdentifierTypeEmail, "tok-c", true),
	}

	plan := planIdentifierMerge(primary, dups)
	if len(plan.MoveIds) != 1 || plan.MoveIds[0] != 2 {
		t.Fatalf("the first flagged duplicate keeps its flag, got %+v", plan)
	}
	if len(plan.DemoteIds) != 1 || plan.DemoteIds[0] != 3 {
		t.Fatalf("the second flagged duplicate must be demoted, got %+v", plan)
	}
}

func TestPlanIdentifierMergeConservesEveryRow(t *testing.T) {
	primary := []*models.Identifier{
		ident(1, 10, models.IdentifierTypeEmail, "tok-a", true),
	}
	dups := []*models.Identifier{
		ident(2, 11, models.IdentifierTypeEmail, "tok-a", false),
		ident(3, 11, models.IdentifierTypeEmail, "tok-b", true),
		ident(4, 12, models.IdentifierTypePhone, "tok-c", false),
		ident(5, 12, models.IdentifierTypePhone, "tok-c", false),
	}

	plan := planIdentifierMerge(primary, dups)
	if got := len(plan.MoveIds) + len(plan.DemoteIds) + len(plan.DropIds); got != len(dups) {
		t.Fatalf("every duplicate row must be accounted for: %d of %d in %+v", got, len(dups), plan)
	}
	// Dropped rows are only those whose value survives on another row.
	if len(plan.DropIds) != 2 {
		t.Fatalf("expected tok-a and the second tok-c dropped, got %+v", plan)
	}
}

func TestPlanIdentifierMergeSecondPassMovesNothing(t *testing.T) {
	primary := []*models.Identifier{
		ident(1, 10, models.IdentifierTypeEmail, "tok-a", true),
	}
	dups := []*models.Identifier{
		ident(2, 11, models.IdentifierTypeEmail, "tok-b", false),
	}
	plan := planIdentifierMerge(primary, dups)
	if len(plan.MoveIds) != 1 {
		t.Fatalf("setup: %+v", plan)
	}

	// After the merge the moved row belongs to the primary; offering the
	// merged state again must not move or demote anything.
	merged := append(primary, ident(2, 10, models.IdentifierTypeEmail, "tok-b", false))
	again := planIdentifierMerge(merged, merged)
	if len(again.MoveIds) != 0 || len(again.DemoteIds) != 0 {
		t.Fatalf("re-planning merged state must be inert, got %+v", again)
	}
}

func TestPlanMembershipUnion(t *testing.T) {
	existing := []int{100}
	dupRows := []membershipRow{
		{ID: 1, Ref: 100}, // primary already a member
		{ID: 2, Ref: 200},
		{ID: 3, Ref: 200}, // shared between two duplicates
	}

	moveIds, dropIds := planMembershipUnion(existing, dupRows)
	if len(moveIds) != 1 || moveIds[0] != 2 {
		t.Fatalf("moves: got %v", moveIds)
	}
	if len(dropIds) != 2 {
		t.Fatalf("drops: got %v", dropIds)
	}

	// Re-offering the unioned state moves nothing.
	moveIds, _ = planMembershipUnion([]int{100, 200}, []membershipRow{{ID: 2, Ref: 200}})
	if len(moveIds) != 0 {
		t.Fatalf("second pass must be inert, got %v", moveIds)
	}
}

func TestPlanRelationshipMergeRepointsBothEndpoints(t *testing.T) {
	edges := []relationshipEdge{
		{ID: 1, From: 11, To: 30, Kind: "colleague"}, // duplicate as source
		{ID: 2, From: 40, To: 11, Kind: "family"},    // duplicate as target
	}

	moves, dropIds := planRelationshipMerge(edges, 10, []int{11})
	if len(dropIds) != 0 {
		t.Fatalf("no drops expected, got %v", dropIds)
	}
	if len(moves) != 2 {
		t.Fatalf("both rows must be re-pointed, got %+v", moves)
	}
	if moves[0] != (relationshipMove{ID: 1, From: 10, To: 30}) {
		t.Errorf("source endpoint: got %+v", moves[0])
	}
	if moves[1] != (relationshipMove{ID: 2, From: 40, To: 10}) {
		t.Errorf("target endpoint: got %+v", moves[1])
	}
}

func TestPlanRelationshipMergeDropsSelfReferential(t *testing.T) {
	// A relationship between the primary and a duplicate collapses into a
	// self-reference once the endpoints merge.
	edges := []relationshipEdge{
		{ID: 1, From: 10, To: 11, Kind: "partner"},
		{ID: 2, From: 11, To: 12, Kind: "partner"}, // between two duplicates
	}

	moves, dropIds := planRelationshipMerge(edges, 10, []int{11, 12})
	if len(moves) != 0 {
		t.Fatalf("no moves expected, got %+v", moves)
	}
	if len(dropIds) != 2 {
		t.Fatalf("both rows become self-referential, got %v", dropIds)
	}
}

func TestPlanRelationshipMergeCollapsesDuplicateEdges(t *testing.T) {
	// The primary's own edge claims (10, 30, friend) first; the duplicate's
	// remapped row would collide and is dropped instead.
	edges := []relationshipEdge{
		{ID: 1, From: 10, To: 30, Kind: "friend"},
		{ID: 2, From: 11, To: 30, Kind: "friend"},
		{ID: 3, From: 11, To: 30, Kind: "colleague"}, // different kind survives
	}

	moves, dropIds := planRelationshipMerge(edges, 10, []int{11})
	if len(dropIds) != 1 || dropIds[0] != 2 {
		t.Fatalf("the colliding edge must be dropped, got %v", dropIds)
	}
	if len(moves) != 1 || moves[0].ID != 3 {
		t.Fatalf("the distinct kind must move, got %+v", moves)
	}
}

func TestPlanRelationshipMergeSecondPassIsInert(t *testing.T) {
	edges := []relationshipEdge{
		{ID: 1, From: 11, To: 30, Kind: "friend"},
	}
	moves, dropIds := planRelationshipMerge(edges, 10, []int{11})
	if len(moves) != 1 || len(dropIds) != 0 {
		t.Fatalf("setup: %+v %v", moves, dropIds)
	}

	merged := []relationshipEdge{
		{ID: 1, From: moves[0].From, To: moves[0].To, Kind: "friend"},
	}
	moves, dropIds = planRelationshipMerge(merged, 10, []int{11})
	if len(moves) != 0 || len(dropIds) != 0 {
		t.Fatalf("re-planning merged state must be inert, got %+v %v", moves, dropIds)
	}
}

func TestMergeClusterWithoutDuplicatesIsSkipped(t *testing.T) {
	cluster := &DuplicateCluster{
		UserID:  1,
		Primary: &models.Entity{ID: 10, UserID: 1, DisplayName: "Solo"},
	}
	result := MergeCluster(context.Background(), nil, logrus.New(), cluster)
	if !result.Skipped || result.Merged {
		t.Fatalf("a cluster with no duplicates must be skipped before touching storage: %+v", result)
	}
	if result.Err != nil {
		t.Fatalf("skip is not an error: %v", result.Err)
	}
}

package workflow

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MergeResult is the tagged outcome of merging one cluster. Errors never
// propagate out of the executor; the batch runner folds results instead.
type MergeResult struct {
	Cluster             *DuplicateCluster
	Merged              bool
	Skipped             bool
	DuplicatesRemoved   int
	ReparentedRecords   int
	DroppedIdentifier   int
	DroppedMembership   int
	DroppedRelationship int
	Err                 error
}

// mergeSummary is the outbox payload for a committed merge.
type mergeSummary struct {
	PrimaryId         int      `json:"primary_id"`
	DuplicateIds      []int    `json:"duplicate_ids"`
	MatchReasons      []string `json:"match_reasons"`
	ReparentedRecords int      `json:"reparented_records"`
}

// MergeCluster re-parents every dependent record of the cluster's duplicates
// onto the primary and deletes the duplicate entity rows, inside a single
// transaction. Content is conserved: only ownership changes, except
// identifier/membership/relationship rows whose logical value already exists
// on the primary, which are collapsed rather than duplicated.
func MergeCluster(ctx context.Context, db *gorm.DB, logger *logrus.Logger, cluster *DuplicateCluster) MergeResult {
	result := MergeResult{Cluster: cluster}
	if len(cluster.Duplicates) == 0 {
		result.Skipped = true
		return result
	}
	dupIds := cluster.DuplicateIds()

	err := db.Transaction(func(tx *gorm.DB) error {
		// Detect already-merged or raced-away clusters before mutating.
		allIds := append([]int{cluster.Primary.ID}, dupIds...)
		var present int64
		err := tx.WithContext(ctx).
			Model(&models.Entity{}).
			Where("user_id = ? AND id IN ?", cluster.UserID, allIds).
			Count(&present).Error
		if err != nil {
			return err
		}
		if present != int64(len(allIds)) {
			return fmt.Errorf("%w: cluster entities missing (%d of %d present)",
				utils.ErrorRecordNotFound, present, len(allIds))
		}

		reparented, err := reparentPlainDependents(ctx, tx, cluster.Primary.ID, dupIds)
		if err != nil {
			return err
		}
		result.ReparentedRecords = reparented

		moved, dropped, err := reparentIdentifiers(ctx, tx, cluster.Primary.ID, dupIds)
		if err != nil {
			return err
		}
		result.ReparentedRecords += moved
		result.DroppedIdentifier = dropped

		movedMemberships, droppedMemberships, err := unionMemberships(ctx, tx, cluster.Primary.ID, dupIds)
		if err != nil {
			return err
		}
		result.ReparentedRecords += movedMemberships
		result.DroppedMembership = droppedMemberships

		movedRelationships, droppedRelationships, err := reparentRelationships(ctx, tx, cluster.Primary.ID, dupIds)
		if err != nil {
			return err
		}
		result.ReparentedRecords += movedRelationships
		result.DroppedRelationship = droppedRelationships

		// Duplicates are deleted only after every dependent has been
		// re-parented or collapsed.
		deleted := tx.WithContext(ctx).
			Where("user_id = ? AND id IN ?", cluster.UserID, dupIds).
			Delete(&models.Entity{})
		if deleted.Error != nil {
			return deleted.Error
		}
		if deleted.RowsAffected != int64(len(dupIds)) {
			return fmt.Errorf("%w: expected to delete %d duplicates, deleted %d",
				utils.ErrorMergeConflict, len(dupIds), deleted.RowsAffected)
		}

		summary := mergeSummary{
			PrimaryId:         cluster.Primary.ID,
			DuplicateIds:      dupIds,
			MatchReasons:      cluster.MatchReasons,
			ReparentedRecords: result.ReparentedRecords,
		}
		return models.PublishEntityEvent(ctx, tx, cluster.UserID, time.Now().UTC(),
			cluster.Primary.ID, models.EntityEventActionMerge, summary, nil)
	})
	if err != nil {
		result.Err = classifyMergeError(err)
		result.Skipped = errors.Is(result.Err, utils.ErrorRecordNotFound)
		result.ReparentedRecords = 0
		result.DroppedIdentifier = 0
		result.DroppedMembership = 0
		result.DroppedRelationship = 0
		config.LogError(logger, "workflow", "MergeCluster",
			fmt.Sprintf("user=%d primary=%d", cluster.UserID, cluster.Primary.ID), dupIds, result.Err)
		return result
	}

	result.Merged = true
	result.DuplicatesRemoved = len(dupIds)
	return result
}

// reparentPlainDependents moves the record types without value-level dedup
// rules. Communications follow their conversation implicitly.
func reparentPlainDependents(ctx context.Context, tx *gorm.DB, primaryId int, dupIds []int) (int, error) {
	moved := 0
	for _, model := range []interface{}{
		&models.Interaction{},
		&models.Conversation{},
		&models.Reminder{},
		&models.Gift{},
		&models.Attachment{},
	} {
		res := tx.WithContext(ctx).
			Model(model).
			Where("entity_id IN ?", dupIds).
			Update("entity_id", primaryId)
		if res.Error != nil {
			return 0, res.Error
		}
		moved += int(res.RowsAffected)
	}
	return moved, nil
}

// identifierMergePlan assigns every duplicate identifier a fate before any
// row is touched.
type identifierMergePlan struct {
	MoveIds   []int // re-point entity_id at the primary
	DemoteIds []int // re-point and clear the primary flag
	DropIds   []int // (type, blind-index) already on the primary
}

// planIdentifierMerge decides each duplicate identifier's fate: values the
// primary already carries are dropped (the logical value survives on the
// primary), everything else moves. At most one row per (entity, type) keeps
// the primary flag after the move; the primary's own flag always wins.
func planIdentifierMerge(primary []*models.Identifier, dups []*models.Identifier) identifierMergePlan {
	existing := map[string]bool{}
	flagged := map[models.IdentifierType]bool{}
	for _, ident := range primary {
		existing[string(ident.IdentifierType)+"|"+ident.BlindIndex] = true
		if ident.IsPrimary != nil && *ident.IsPrimary {
			flagged[ident.IdentifierType] = true
		}
	}

	var plan identifierMergePlan
	for _, ident := range dups {
		key := string(ident.IdentifierType) + "|" + ident.BlindIndex
		if existing[key] {
			plan.DropIds = append(plan.DropIds, ident.ID)
			continue
		}
		existing[key] = true

		isFlagged := ident.IsPrimary != nil && *ident.IsPrimary
		if isFlagged && flagged[ident.IdentifierType] {
			plan.DemoteIds = append(plan.DemoteIds, ident.ID)
			continue
		}
		if isFlagged {
			flagged[ident.IdentifierType] = true
		}
		plan.MoveIds = append(plan.MoveIds, ident.ID)
	}
	return plan
}

// reparentIdentifiers moves duplicate identifiers onto the primary per the
// merge plan.
func reparentIdentifiers(ctx context.Context, tx *gorm.DB, primaryId int, dupIds []int) (moved int, dropped int, err error) {
	var primaryIdents []*models.Identifier
	if err := tx.WithContext(ctx).
		Where("entity_id = ?", primaryId).
		Find(&primaryIdents).Error; err != nil {
		return 0, 0, err
	}
	var dupIdents []*models.Identifier
	if err := tx.WithContext(ctx).
		Where("entity_id IN ?", dupIds).
		Order("id").
		Find(&dupIdents).Error; err != nil {
		return 0, 0, err
	}

	plan := planIdentifierMerge(primaryIdents, dupIdents)
	if len(plan.DropIds) > 0 {
		if err := tx.WithContext(ctx).
			Where("id IN ?", plan.DropIds).
			Delete(&models.Identifier{}).Error; err != nil {
			return 0, 0, err
		}
	}
	if len(plan.MoveIds) > 0 {
		if err := tx.WithContext(ctx).
			Model(&models.Identifier{}).
			Where("id IN ?", plan.MoveIds).
			Update("entity_id", primaryId).Error; err != nil {
			return 0, 0, err
		}
	}
	if len(plan.DemoteIds) > 0 {
		if err := tx.WithContext(ctx).
			Model(&models.Identifier{}).
			Where("id IN ?", plan.DemoteIds).
			Updates(map[string]interface{}{"entity_id": primaryId, "is_primary": false}).Error; err != nil {
			return 0, 0, err
		}
	}
	return len(plan.MoveIds) + len(plan.DemoteIds), len(plan.DropIds), nil
}

// unionMemberships moves tag/group memberships, never creating a duplicate
// membership row on the primary.
func unionMemberships(ctx context.Context, tx *gorm.DB, primaryId int, dupIds []int) (moved int, dropped int, err error) {
	m, d, err := unionMembershipTable(ctx, tx, &models.TagMembership{}, "tag_id", primaryId, dupIds)
	if err != nil {
		return 0, 0, err
	}
	moved, dropped = m, d

	m, d, err = unionMembershipTable(ctx, tx, &models.GroupMembership{}, "group_id", primaryId, dupIds)
	if err != nil {
		return 0, 0, err
	}
	return moved + m, dropped + d, nil
}

// membershipRow carries the columns the union decision needs.
type membershipRow struct {
	ID  int
	Ref int
}

// planMembershipUnion keeps the first duplicate row per ref and drops refs
// the primary already has, so the union never collides on the membership
// unique index.
func planMembershipUnion(existingRefs []int, dupRows []membershipRow) (moveIds []int, dropIds []int) {
	seen := map[int]bool{}
	for _, ref := range existingRefs {
		seen[ref] = true
	}
	for _, row := range dupRows {
		if seen[row.Ref] {
			dropIds = append(dropIds, row.ID)
			continue
		}
		seen[row.Ref] = true
		moveIds = append(moveIds, row.ID)
	}
	return moveIds, dropIds
}

func unionMembershipTable(ctx context.Context, tx *gorm.DB, model interface{}, refColumn string, primaryId int, dupIds []int) (moved int, dropped int, err error) {
	var existingRefs []int
	if err := tx.WithContext(ctx).
		Model(model).
		Where("entity_id = ?", primaryId).
		Pluck(refColumn, &existingRefs).Error; err != nil {
		return 0, 0, err
	}
	var dupRows []membershipRow
	if err := tx.WithContext(ctx).
		Model(model).
		Select("id, "+refColumn+" AS ref").
		Where("entity_id IN ?", dupIds).
		Order("id").
		Scan(&dupRows).Error; err != nil {
		return 0, 0, err
	}

	moveIds, dropIds := planMembershipUnion(existingRefs, dupRows)
	if len(dropIds) > 0 {
		if err := tx.WithContext(ctx).Where("id IN ?", dropIds).Delete(model).Error; err != nil {
			return 0, 0, err
		}
	}
	if len(moveIds) > 0 {
		if err := tx.WithContext(ctx).
			Model(model).
			Where("id IN ?", moveIds).
			Update("entity_id", primaryId).Error; err != nil {
			return 0, 0, err
		}
	}
	return len(moveIds), len(dropIds), nil
}

// relationshipEdge carries one relationship row's endpoints for the merge
// decision.
type relationshipEdge struct {
	ID   int
	From int
	To   int
	Kind string
}

// relationshipMove re-points one row's endpoints.
type relationshipMove struct {
	ID   int
	From int
	To   int
}

// planRelationshipMerge decides the fate of every relationship touching the
// merged identities. Both endpoints are remapped onto the primary; rows that
// would become self-referential are dropped, and of rows collapsing onto the
// same (from, to, kind) edge only the first survives, with edges already on
// the primary taking precedence.
func planRelationshipMerge(edges []relationshipEdge, primaryId int, dupIds []int) (moves []relationshipMove, dropIds []int) {
	dup := map[int]bool{}
	for _, id := range dupIds {
		dup[id] = true
	}
	remap := func(id int) int {
		if dup[id] {
			return primaryId
		}
		return id
	}

	type edgeKey struct {
		from, to int
		kind     string
	}
	seen := map[edgeKey]bool{}
	// Rows not touching a duplicate stay as they are and claim their edge
	// first, so a remapped row never displaces an original.
	for _, e := range edges {
		if !dup[e.From] && !dup[e.To] {
			seen[edgeKey{e.From, e.To, e.Kind}] = true
		}
	}
	for _, e := range edges {
		if !dup[e.From] && !dup[e.To] {
			continue
		}
		from, to := remap(e.From), remap(e.To)
		if from == to {
			dropIds = append(dropIds, e.ID)
			continue
		}
		key := edgeKey{from, to, e.Kind}
		if seen[key] {
			dropIds = append(dropIds, e.ID)
			continue
		}
		seen[key] = true
		moves = append(moves, relationshipMove{ID: e.ID, From: from, To: to})
	}
	return moves, dropIds
}

// reparentRelationships remaps both relationship endpoints onto the primary.
func reparentRelationships(ctx context.Context, tx *gorm.DB, primaryId int, dupIds []int) (moved int, dropped int, err error) {
	ids := append([]int{primaryId}, dupIds...)
	var rows []*models.Relationship
	if err := tx.WithContext(ctx).
		Where("entity_id IN ? OR related_entity_id IN ?", ids, ids).
		Order("id").
		Find(&rows).Error; err != nil {
		return 0, 0, err
	}

	edges := make([]relationshipEdge, 0, len(rows))
	for _, r := range rows {
		edges = append(edges, relationshipEdge{ID: r.ID, From: r.EntityID, To: r.RelatedEntityID, Kind: r.Kind})
	}
	moves, dropIds := planRelationshipMerge(edges, primaryId, dupIds)

	if len(dropIds) > 0 {
		if err := tx.WithContext(ctx).
			Where("id IN ?", dropIds).
			Delete(&models.Relationship{}).Error; err != nil {
			return 0, 0, err
		}
	}
	for _, move := range moves {
		if err := tx.WithContext(ctx).
			Model(&models.Relationship{}).
			Where("id = ?", move.ID).
			Updates(map[string]interface{}{"entity_id": move.From, "related_entity_id": move.To}).Error; err != nil {
			return 0, 0, err
		}
	}
	return len(moves), len(dropIds), nil
}

// classifyMergeError maps storage-layer failures onto the executor's error
// kinds: duplicate-key violations become merge conflicts, missing rows stay
// not-found, connection/timeout failures become storage-unavailable (fatal
// for the rest of the batch).
func classifyMergeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, utils.ErrorRecordNotFound):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", utils.ErrorRecordNotFound, err)
	case errors.Is(err, utils.ErrorMergeConflict):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, gosqlmysql.ErrInvalidConn):
		return fmt.Errorf("%w: %v", utils.ErrorStorageUnavailable, err)
	}

	var mysqlErr *gosqlmysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1062: duplicate entry on a unique index.
		if mysqlErr.Number == 1062 {
			return fmt.Errorf("%w: %v", utils.ErrorMergeConflict, err)
		}
	}
	return err
}

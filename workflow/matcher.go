package workflow

import (
	"context"
	"sort"
	"strings"

	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MatchReasonSharedEmail      = "shared_email"
	MatchReasonSharedPhone      = "shared_phone"
	MatchReasonSharedExternalId = "shared_external_id"
	MatchReasonSharedIdentifier = "shared_identifier"
	MatchReasonSimilarName      = "similar_name"
)

// NameSimilarityThreshold is the documented cut-off for the similar_name
// signal: token-overlap ratio of 0.80 or above clusters a pair. Chosen so
// "J Smith" vs "John Smith" matches (initials count as shared tokens) while
// unrelated names sharing one surname out of three tokens do not.
var NameSimilarityThreshold = decimal.RequireFromString("0.8")

// DuplicateCluster is a transitively connected group of entities believed to
// represent one real identity. Ephemeral; exists only for one matching run.
type DuplicateCluster struct {
	UserID       int
	Primary      *models.Entity
	Duplicates   []*models.Entity
	MatchReasons []string
}

func (c *DuplicateCluster) DuplicateIds() []int {
	ids := make([]int, 0, len(c.Duplicates))
	for _, d := range c.Duplicates {
		ids = append(ids, d.ID)
	}
	return ids
}

// NameSimilarity is the deterministic similarity function behind the
// similar_name signal: case-fold, strip punctuation, tokenize; score is
// 2*shared/(lenA+lenB) where a single-letter token counts as shared with a
// longer token starting with the same letter (initials).
func NameSimilarity(a, b string) decimal.Decimal {
	ta := nameTokens(a)
	tb := nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return decimal.Zero
	}

	used := make([]bool, len(tb))
	shared := 0
	for _, tokA := range ta {
		for j, tokB := range tb {
			if used[j] {
				continue
			}
			if tokensMatch(tokA, tokB) {
				used[j] = true
				shared++
				break
			}
		}
	}

	return decimal.NewFromInt(int64(2 * shared)).
		Div(decimal.NewFromInt(int64(len(ta) + len(tb))))
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	// Initial vs full token ("j" ~ "john").
	if len(a) == 1 && strings.HasPrefix(b, a) {
		return true
	}
	if len(b) == 1 && strings.HasPrefix(a, b) {
		return true
	}
	return false
}

func nameTokens(name string) []string {
	lowered := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lowered {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// unionFind is a disjoint-set over entity ids with path compression and
// union by size, giving near-linear transitive clustering.
type unionFind struct {
	parent map[int]int
	size   map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[int]int{}, size: map[int]int{}}
}

func (u *unionFind) find(x int) int {
	root, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		u.size[x] = 1
		return x
	}
	if root != x {
		u.parent[x] = u.find(root)
	}
	return u.parent[x]
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// FindDuplicateClusters scans one owner's entities and returns duplicate
// clusters with match reasons. Identifier values participate only as
// blind-index tokens; nothing is decrypted.
//
// Token matches come from a grouped identifier query, so the pairwise name
// comparison only runs over the bucketed remainder, not the full O(n²) grid.
func FindDuplicateClusters(ctx context.Context, tx *gorm.DB, userId int) ([]*DuplicateCluster, error) {
	entities, err := loadEntities(ctx, tx, userId)
	if err != nil {
		return nil, err
	}
	if len(entities) < 2 {
		return nil, nil
	}
	byId := map[int]*models.Entity{}
	for _, e := range entities {
		byId[e.ID] = e
	}

	uf := newUnionFind()

	// pairReasons accumulates reason tags keyed by the id pair until the
	// final clusters are known.
	pairReasons := map[[2]int]map[string]bool{}
	addPair := func(a, b int, reason string) {
		if a > b {
			a, b = b, a
		}
		key := [2]int{a, b}
		if pairReasons[key] == nil {
			pairReasons[key] = map[string]bool{}
		}
		pairReasons[key][reason] = true
		uf.union(a, b)
	}

	// Signal 1+2: identical blind-index token per identifier type.
	tokenGroups, err := models.SharedTokenGroups(ctx, tx, userId)
	if err != nil {
		return nil, err
	}
	matchedByToken := map[int]bool{}
	for _, group := range tokenGroups {
		reason := reasonForIdentifierType(group.IdentifierType)
		ids := group.EntityIds
		for i := 0; i < len(ids); i++ {
			if byId[ids[i]] == nil {
				continue
			}
			matchedByToken[ids[i]] = true
			if i > 0 {
				addPair(ids[i-1], ids[i], reason)
			}
		}
	}

	// Signal 3: name similarity over the unmatched remainder.
	var remainder []*models.Entity
	for _, e := range entities {
		if matchedByToken[e.ID] {
			continue
		}
		remainder = append(remainder, e)
	}
	for _, pair := range similarNamePairs(remainder) {
		addPair(pair[0], pair[1], MatchReasonSimilarName)
	}

	// Collect connected components, dropping singletons.
	members := map[int][]int{}
	for id := range byId {
		root := uf.find(id)
		members[root] = append(members[root], id)
	}
	reasonsByCluster := map[int]map[string]bool{}
	for pair, reasons := range pairReasons {
		root := uf.find(pair[0])
		if reasonsByCluster[root] == nil {
			reasonsByCluster[root] = map[string]bool{}
		}
		for reason := range reasons {
			reasonsByCluster[root][reason] = true
		}
	}

	var roots []int
	for root, ids := range members {
		if len(ids) > 1 {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)

	var clusters []*DuplicateCluster
	for _, root := range roots {
		ids := members[root]
		counts, err := models.DependentCounts(ctx, tx, ids)
		if err != nil {
			return nil, err
		}

		clusterEntities := make([]*models.Entity, 0, len(ids))
		for _, id := range ids {
			clusterEntities = append(clusterEntities, byId[id])
		}
		sortForPrimary(clusterEntities, counts)

		cluster := &DuplicateCluster{
			UserID:     userId,
			Primary:    clusterEntities[0],
			Duplicates: clusterEntities[1:],
		}
		for reason := range reasonsByCluster[root] {
			cluster.MatchReasons = append(cluster.MatchReasons, reason)
		}
		sort.Strings(cluster.MatchReasons)
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// similarNamePairs compares entities whose names share at least one token
// and returns the id pairs at or above the similarity threshold. Bucketing
// by every token keeps reordered forms ("Smith, John" vs "John Smith") in a
// shared bucket without the full pairwise grid; each pair is compared once.
func similarNamePairs(entities []*models.Entity) [][2]int {
	buckets := map[string][]*models.Entity{}
	for _, e := range entities {
		seen := map[string]bool{}
		for _, token := range nameTokens(e.DisplayName) {
			if seen[token] {
				continue
			}
			seen[token] = true
			buckets[token] = append(buckets[token], e)
		}
	}

	compared := map[[2]int]bool{}
	var pairs [][2]int
	for _, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i].ID, bucket[j].ID
				if a > b {
					a, b = b, a
				}
				key := [2]int{a, b}
				if compared[key] {
					continue
				}
				compared[key] = true
				sim := NameSimilarity(bucket[i].DisplayName, bucket[j].DisplayName)
				if sim.GreaterThanOrEqual(NameSimilarityThreshold) {
					pairs = append(pairs, key)
				}
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

func reasonForIdentifierType(t models.IdentifierType) string {
	switch t {
	case models.IdentifierTypeEmail:
		return MatchReasonSharedEmail
	case models.IdentifierTypePhone:
		return MatchReasonSharedPhone
	case models.IdentifierTypeExternalId:
		return MatchReasonSharedExternalId
	}
	return MatchReasonSharedIdentifier
}

// sortForPrimary orders cluster members so the primary comes first: highest
// completeness (non-empty profile fields + dependent record count), then
// earliest creation time, then lowest id. Deterministic by construction.
func sortForPrimary(entities []*models.Entity, dependentCounts map[int]int) {
	completeness := func(e *models.Entity) int {
		return e.ProfileFieldCount() + dependentCounts[e.ID]
	}
	sort.SliceStable(entities, func(i, j int) bool {
		ci, cj := completeness(entities[i]), completeness(entities[j])
		if ci != cj {
			return ci > cj
		}
		if !entities[i].CreatedAt.Equal(entities[j].CreatedAt) {
			return entities[i].CreatedAt.Before(entities[j].CreatedAt)
		}
		return entities[i].ID < entities[j].ID
	})
}

func loadEntities(ctx context.Context, tx *gorm.DB, userId int) ([]*models.Entity, error) {
	var entities []*models.Entity
	err := tx.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("id").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return entities, nil
}

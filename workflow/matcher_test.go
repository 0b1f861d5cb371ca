package workflow

import (
	"testing"
	"time"

	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/shopspring/decimal"
)

func TestNameSimilarityIdenticalNames(t *testing.T) {
	if !NameSimilarity("John Smith", "john smith").Equal(decimal.NewFromInt(1)) {
		t.Fatal("identical names (case-insensitive) must score 1")
	}
}

func TestNameSimilarityInitialMatchesFullToken(t *testing.T) {
	sim := NameSimilarity("J Smith", "John Smith")
	if sim.LessThan(NameSimilarityThreshold) {
		t.Fatalf("initial form must clear the threshold, got %s", sim)
	}
}

func TestNameSimilarityPunctuationIgnored(t *testing.T) {
	sim := NameSimilarity("O'Brien, Pat", "pat obrien")
	if sim.LessThan(NameSimilarityThreshold) {
		t.Fatalf("punctuation variants must clear the threshold, got %s", sim)
	}
}

func TestNameSimilarityUnrelatedNamesBelowThreshold(t *testing.T) {
	cases := [][2]string{
		{"John Smith", "Jane Doe"},
		{"Anna Lee Smith", "Bob Carter Smith"},
		{"Jonathan", "Jo Kim"},
	}
	for _, c := range cases {
		sim := NameSimilarity(c[0], c[1])
		if sim.GreaterThanOrEqual(NameSimilarityThreshold) {
			t.Errorf("%q vs %q: %s should be below threshold", c[0], c[1], sim)
		}
	}
}

func TestNameSimilarityEmptyNames(t *testing.T) {
	if !NameSimilarity("", "John").Equal(decimal.Zero) {
		t.Fatal("empty name must score zero")
	}
}

func TestUnionFindTransitiveClustering(t *testing.T) {
	uf := newUnionFind()
	// A-B and B-C connect; A-C share no direct signal.
	uf.union(1, 2)
	uf.union(2, 3)
	uf.union(7, 8)

	if uf.find(1) != uf.find(3) {
		t.Fatal("transitive members must share a root")
	}
	if uf.find(1) == uf.find(7) {
		t.Fatal("disconnected components must not share a root")
	}
	if uf.find(99) != 99 {
		t.Fatal("unseen id must be its own root")
	}
}

func TestSimilarNamePairsFindsReorderedNames(t *testing.T) {
	entities := []*models.Entity{
		{ID: 1, DisplayName: "Smith, John"},
		{ID: 2, DisplayName: "John Smith"},
		{ID: 3, DisplayName: "Jane Doe"},
	}
	pairs := similarNamePairs(entities)
	if len(pairs) != 1 || pairs[0] != [2]int{1, 2} {
		t.Fatalf("reordered forms of one name must pair up, got %v", pairs)
	}
}

func TestSimilarNamePairsFindsTrailingInitialForms(t *testing.T) {
	entities := []*models.Entity{
		{ID: 4, DisplayName: "John S"},
		{ID: 5, DisplayName: "John Smith"},
	}
	pairs := similarNamePairs(entities)
	if len(pairs) != 1 || pairs[0] != [2]int{4, 5} {
		t.Fatalf("trailing-initial form must pair with the full name, got %v", pairs)
	}
}

func TestSimilarNamePairsComparesEachPairOnce(t *testing.T) {
	// Both tokens are shared, so the pair lands in two buckets.
	entities := []*models.Entity{
		{ID: 6, DisplayName: "Anna Lee"},
		{ID: 7, DisplayName: "Lee Anna"},
	}
	pairs := similarNamePairs(entities)
	if len(pairs) != 1 {
		t.Fatalf("expected a single deduplicated pair, got %v", pairs)
	}
}

func TestSortForPrimaryPrefersCompleteness(t *testing.T) {
	now := time.Now()
	rich := &models.Entity{ID: 2, DisplayName: "John Smith", Company: "Acme", CreatedAt: now}
	poor := &models.Entity{ID: 1, DisplayName: "J Smith", CreatedAt: now.Add(-time.Hour)}

	entities := []*models.Entity{poor, rich}
	sortForPrimary(entities, map[int]int{1: 0, 2: 3})
	if entities[0].ID != 2 {
		t.Fatalf("richer entity must be primary, got id=%d", entities[0].ID)
	}
}

func TestSortForPrimaryTieBreaksOnCreationThenId(t *testing.T) {
	now := time.Now()
	older := &models.Entity{ID: 5, DisplayName: "A B", CreatedAt: now.Add(-time.Hour)}
	newer := &models.Entity{ID: 4, DisplayName: "A B", CreatedAt: now}

	entities := []*models.Entity{newer, older}
	sortForPrimary(entities, map[int]int{})
	if entities[0].ID != 5 {
		t.Fatalf("earlier creation wins the tie, got id=%d", entities[0].ID)
	}

	twinA := &models.Entity{ID: 9, DisplayName: "A B", CreatedAt: now}
	twinB := &models.Entity{ID: 3, DisplayName: "A B", CreatedAt: now}
	entities = []*models.Entity{twinA, twinB}
	sortForPrimary(entities, map[int]int{})
	if entities[0].ID != 3 {
		t.Fatalf("lowest id wins the final tie, got id=%d", entities[0].ID)
	}
}

func TestReasonForIdentifierType(t *testing.T) {
	cases := map[models.IdentifierType]string{
		models.IdentifierTypeEmail:      MatchReasonSharedEmail,
		models.IdentifierTypePhone:      MatchReasonSharedPhone,
		models.IdentifierTypeExternalId: MatchReasonSharedExternalId,
		models.IdentifierTypeUrl:        MatchReasonSharedIdentifier,
	}
	for identifierType, want := range cases {
		if got := reasonForIdentifierType(identifierType); got != want {
			t.Errorf("%s: got %s, want %s", identifierType, got, want)
		}
	}
}

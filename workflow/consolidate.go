package workflow

import (
	"strings"
)

// ConsolidatedContact is the single candidate attribute set produced from
// several normalized records describing the same external contact.
type ConsolidatedContact struct {
	Name         string
	Email        string
	Phone        string
	Organization string
	Notes        string
	ExternalId   string
	Sources      []string
	Metadata     map[string]string
}

// Name ranking weights. The part count dominates so that a two-part name
// always outranks a longer one-part name; length only breaks ties.
const (
	namePartWeight   = 1_000_000
	nameLengthWeight = 100
	fieldIncrement   = 10
)

// nameRank orders name candidates: part count first, total length second.
func nameRank(name string) int {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return 0
	}
	return len(parts)*namePartWeight + len(name)*nameLengthWeight
}

// SelectBestName picks the most complete name among candidates: the name
// with the most whitespace-separated parts wins; among equal part counts the
// longer wins. Empty candidate sets yield nil.
func SelectBestName(candidates []string) *string {
	var best string
	bestRank := 0
	for _, c := range candidates {
		if rank := nameRank(c); rank > bestRank {
			best = c
			bestRank = rank
		}
	}
	if bestRank == 0 {
		return nil
	}
	return &best
}

// selectMostSpecific applies the same part-count-then-length heuristic to
// free-text fields, so "Acme Corporation Ltd" beats "Acme".
func selectMostSpecific(candidates []string) string {
	best := SelectBestName(candidates)
	if best == nil {
		return ""
	}
	return *best
}

// firstNonEmpty keeps exact short values (emails, phones, external ids)
// in candidate order.
func firstNonEmpty(candidates []string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// CompletenessScore ranks how much useful information a consolidated contact
// carries. The name component dominates via the part-count rule; each
// additional non-empty field contributes a fixed increment, so a strict
// superset of another contact's non-empty fields never scores lower.
func CompletenessScore(c *ConsolidatedContact) int {
	score := nameRank(c.Name)
	for _, field := range []string{c.Email, c.Phone, c.Organization} {
		if field != "" {
			score += fieldIncrement
		}
	}
	return score
}

// ConsolidateContacts selects the most complete value per field across
// records believed to describe one external contact, and unions their
// source metadata.
func ConsolidateContacts(recs []*NormalizedContact) *ConsolidatedContact {
	if len(recs) == 0 {
		return nil
	}

	var names, emails, phones, orgs, notes, externalIds []string
	for _, rec := range recs {
		names = append(names, rec.Name)
		emails = append(emails, rec.Email)
		phones = append(phones, rec.Phone)
		orgs = append(orgs, rec.Organization)
		notes = append(notes, rec.Notes)
		externalIds = append(externalIds, rec.ExternalId)
	}

	out := &ConsolidatedContact{
		Email:        firstNonEmpty(emails),
		Phone:        firstNonEmpty(phones),
		Organization: selectMostSpecific(orgs),
		Notes:        selectMostSpecific(notes),
		ExternalId:   firstNonEmpty(externalIds),
		Metadata:     map[string]string{},
	}
	if best := SelectBestName(names); best != nil {
		out.Name = *best
	}

	seenSources := map[string]bool{}
	for _, rec := range recs {
		if rec.Source != "" && !seenSources[rec.Source] {
			seenSources[rec.Source] = true
			out.Sources = append(out.Sources, rec.Source)
		}
		for k, v := range rec.Metadata {
			if _, exists := out.Metadata[k]; !exists && v != "" {
				out.Metadata[k] = v
			}
		}
	}
	return out
}

// GroupByIdentity buckets normalized records that describe the same external
// contact: shared external id first, then shared email. Records with neither
// stay singleton groups.
func GroupByIdentity(recs []*NormalizedContact) [][]*NormalizedContact {
	byExternalId := map[string][]*NormalizedContact{}
	byEmail := map[string][]*NormalizedContact{}
	var order []string
	var rest []*NormalizedContact

	for _, rec := range recs {
		switch {
		case rec.ExternalId != "":
			key := "x:" + rec.ExternalId
			if len(byExternalId[rec.ExternalId]) == 0 {
				order = append(order, key)
			}
			byExternalId[rec.ExternalId] = append(byExternalId[rec.ExternalId], rec)
		case rec.Email != "":
			key := "e:" + rec.Email
			if len(byEmail[rec.Email]) == 0 {
				order = append(order, key)
			}
			byEmail[rec.Email] = append(byEmail[rec.Email], rec)
		default:
			rest = append(rest, rec)
		}
	}

	var groups [][]*NormalizedContact
	for _, key := range order {
		if strings.HasPrefix(key, "x:") {
			groups = append(groups, byExternalId[key[2:]])
		} else {
			groups = append(groups, byEmail[key[2:]])
		}
	}
	for _, rec := range rest {
		groups = append(groups, []*NormalizedContact{rec})
	}
	return groups
}

package workflow

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/ttacon/libphonenumber"
)

// ExternalContactRecord is one raw contact as produced by a provider fetcher
// (mail, calendar, contacts API). Ephemeral; never persisted.
type ExternalContactRecord struct {
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	Organization string            `json:"organization"`
	Notes        string            `json:"notes"`
	ExternalId   string            `json:"external_id"`
	Source       string            `json:"source"`
	Metadata     map[string]string `json:"metadata"`
}

// NormalizedContact is the comparable form of an external record: name
// whitespace collapsed, email case-folded, phone rendered in E.164.
type NormalizedContact struct {
	Name         string
	Email        string
	Phone        string
	Organization string
	Notes        string
	ExternalId   string
	Source       string
	Metadata     map[string]string
}

// SkippedRecord reports one rejected record of a batch, import-job style:
// the batch keeps going, the reject is accounted for.
type SkippedRecord struct {
	Record *ExternalContactRecord
	Reason string
}

var validate = validator.New()

// NormalizeContact canonicalizes one raw record or rejects it with an
// ErrorInvalidContact-wrapped error (missing name, malformed email/phone).
func NormalizeContact(rec *ExternalContactRecord) (*NormalizedContact, error) {
	name := collapseWhitespace(rec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", utils.ErrorInvalidContact)
	}

	email := strings.ToLower(strings.TrimSpace(rec.Email))
	if email != "" {
		if err := validate.Var(email, "email"); err != nil {
			return nil, fmt.Errorf("%w: malformed email %q", utils.ErrorInvalidContact, rec.Email)
		}
	}

	phone, err := normalizePhone(rec.Phone)
	if err != nil {
		return nil, err
	}

	return &NormalizedContact{
		Name:         name,
		Email:        email,
		Phone:        phone,
		Organization: collapseWhitespace(rec.Organization),
		Notes:        strings.TrimSpace(rec.Notes),
		ExternalId:   strings.TrimSpace(rec.ExternalId),
		Source:       strings.TrimSpace(rec.Source),
		Metadata:     rec.Metadata,
	}, nil
}

// NormalizeAll canonicalizes a batch. Malformed records are reported as
// skipped; the rest of the batch is unaffected.
func NormalizeAll(recs []*ExternalContactRecord) ([]*NormalizedContact, []*SkippedRecord) {
	var normalized []*NormalizedContact
	var skipped []*SkippedRecord
	for _, rec := range recs {
		n, err := NormalizeContact(rec)
		if err != nil {
			skipped = append(skipped, &SkippedRecord{Record: rec, Reason: err.Error()})
			continue
		}
		normalized = append(normalized, n)
	}
	return normalized, skipped
}

// CountryCode is the default region for phone numbers written without a
// country prefix.
var CountryCode = "US"

// normalizePhone parses and validates the number, then formats it E.164 so
// equal numbers written in different national formats compare equal.
func normalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	p, err := libphonenumber.Parse(trimmed, CountryCode)
	if err != nil {
		return "", fmt.Errorf("%w: malformed phone %q", utils.ErrorInvalidContact, raw)
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("%w: malformed phone %q", utils.ErrorInvalidContact, raw)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/kinship_backend/config"
	"github.com/mmdatafocus/kinship_backend/models"
	"github.com/mmdatafocus/kinship_backend/secure"
	"github.com/mmdatafocus/kinship_backend/utils"
	"github.com/mmdatafocus/kinship_backend/workflow"
	"github.com/sirupsen/logrus"
)

// importFile is the export format produced by the provider fetchers.
type importFile struct {
	Records []*workflow.ExternalContactRecord `json:"records"`
}

func main() {
	userID := flag.Int("user-id", 0, "Required: user id that will own the imported entities")
	filePath := flag.String("file", "", "Required: provider export JSON file")
	defaultSource := flag.String("source", "", "Optional: source label for records without one")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "--user-id is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*filePath) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	var file importFile
	if err := utils.UnmarshalFromJSON(data, &file); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	if *defaultSource != "" {
		for _, rec := range file.Records {
			if rec.Source == "" {
				rec.Source = *defaultSource
			}
		}
	}

	vault, err := secure.NewVaultFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vault init: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	logger := logrus.New()

	ctx := utils.SetUserIdInContext(context.Background(), *userID)

	normalized, skipped := workflow.NormalizeAll(file.Records)
	for _, s := range skipped {
		fmt.Printf("skipped %q: %s\n", s.Record.Name, s.Reason)
	}

	imported := 0
	failed := 0
	for _, group := range workflow.GroupByIdentity(normalized) {
		candidate := workflow.ConsolidateContacts(group)
		if candidate == nil {
			continue
		}

		entity, err := createEntityFromCandidate(ctx, vault, candidate)
		if err != nil {
			config.LogError(logger, "contact-import", "main", fmt.Sprintf("user=%d", *userID), candidate.Name, err)
			fmt.Printf("failed %q: %v\n", candidate.Name, err)
			failed++
			continue
		}
		imported++
		fmt.Printf("imported %q (id=%d, sources=%s)\n",
			entity.DisplayName, entity.ID, strings.Join(candidate.Sources, ","))
	}

	fmt.Printf("imported: %d, skipped: %d, failed: %d\n", imported, len(skipped), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func createEntityFromCandidate(ctx context.Context, vault secure.Vault, candidate *workflow.ConsolidatedContact) (*models.Entity, error) {
	input := &models.NewEntity{
		EntityType:  models.EntityTypePerson,
		DisplayName: candidate.Name,
		Company:     candidate.Organization,
		Notes:       candidate.Notes,
	}

	source := ""
	if len(candidate.Sources) > 0 {
		source = candidate.Sources[0]
	}
	addIdentifier := func(identifierType models.IdentifierType, value string, primary bool) {
		if value == "" {
			return
		}
		ident := &models.NewIdentifier{
			IdentifierType: identifierType,
			Value:          value,
			Source:         source,
			IsPrimary:      primary,
		}
		input.Identifiers = append(input.Identifiers, ident.WithVault(vault))
	}
	addIdentifier(models.IdentifierTypeEmail, candidate.Email, true)
	addIdentifier(models.IdentifierTypePhone, candidate.Phone, true)
	addIdentifier(models.IdentifierTypeExternalId, candidate.ExternalId, false)

	return models.CreateEntity(ctx, input)
}

package workflow

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteClusterReportXLSX exports the cluster listing of a dedup run so an
// operator can review what was (or would be) merged.
func WriteClusterReportXLSX(path string, report *BatchReport) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "UserId")
	f.SetCellValue(sheet, "B1", "Primary")
	f.SetCellValue(sheet, "C1", "PrimaryId")
	f.SetCellValue(sheet, "D1", "Duplicates")
	f.SetCellValue(sheet, "E1", "DuplicateIds")
	f.SetCellValue(sheet, "F1", "MatchReasons")
	f.SetCellValue(sheet, "G1", "Outcome")

	for i, outcome := range report.Outcomes {
		row := i + 2
		cluster := outcome.Cluster

		var dupNames []string
		for _, d := range cluster.Duplicates {
			dupNames = append(dupNames, d.DisplayName)
		}

		f.SetCellValue(sheet, "A"+fmt.Sprint(row), cluster.UserID)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), cluster.Primary.DisplayName)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), cluster.Primary.ID)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), strings.Join(dupNames, ", "))
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), fmt.Sprint(cluster.DuplicateIds()))
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), strings.Join(cluster.MatchReasons, ", "))
		f.SetCellValue(sheet, "G"+fmt.Sprint(row), outcomeLabel(report.Apply, outcome))
	}

	return f.SaveAs(path)
}

func outcomeLabel(apply bool, outcome *ClusterOutcome) string {
	if !apply {
		return "dry-run"
	}
	result := outcome.Result
	switch {
	case result == nil:
		return "not attempted"
	case result.Merged:
		return fmt.Sprintf("merged (%d duplicates removed, %d records re-parented)",
			result.DuplicatesRemoved, result.ReparentedRecords)
	case result.Skipped:
		if outcome.Reason == "" {
			return "skipped: nothing to merge"
		}
		return "skipped: " + outcome.Reason
	default:
		return "failed: " + outcome.Reason
	}
}

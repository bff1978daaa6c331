// Package export writes audit workbooks for payroll review. Office managers
// live in spreadsheets; the XLSX is the handoff format, not an API.
package export

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/brushhour/fieldclock/internal/store"
)

var evaluationHeader = []string{
	"event_id", "seq", "verdict", "distance_m", "radius_m", "within_grace",
	"evaluated_at", "override_approver", "override_reason",
}

var backlogHeader = []string{
	"event_id", "type", "enqueued_at", "retry_count", "last_attempt_at",
}

// WriteAuditWorkbook writes one workbook with an Evaluations sheet covering
// the given event IDs and a Sync Backlog sheet with the current queue
// contents.
func WriteAuditWorkbook(ctx context.Context, s store.Store, eventIDs []string, path string) error {
	f := xlsx.NewFile()

	evalSheet, err := f.AddSheet("Evaluations")
	if err != nil {
		return eris.Wrap(err, "export: add evaluations sheet")
	}
	addRow(evalSheet, evaluationHeader)

	rows := 0
	for _, eventID := range eventIDs {
		verdicts, err := s.ListEvaluations(ctx, eventID)
		if err != nil {
			return eris.Wrapf(err, "export: evaluations for %s", eventID)
		}
		for i, v := range verdicts {
			approver, reason := "", ""
			if v.Override != nil {
				approver = v.Override.ApproverID
				reason = v.Override.Reason
			}
			addRow(evalSheet, []string{
				eventID,
				strconv.Itoa(i + 1),
				string(v.Kind),
				formatMeters(v.DistanceMeters),
				formatMeters(v.RadiusMeters),
				strconv.FormatBool(v.WithinGrace),
				v.EvaluatedAt.UTC().Format(time.RFC3339),
				approver,
				reason,
			})
			rows++
		}
	}

	backlogSheet, err := f.AddSheet("Sync Backlog")
	if err != nil {
		return eris.Wrap(err, "export: add backlog sheet")
	}
	addRow(backlogSheet, backlogHeader)

	ops, err := s.ListOperations(ctx)
	if err != nil {
		return eris.Wrap(err, "export: list operations")
	}
	for _, op := range ops {
		lastAttempt := ""
		if op.LastAttemptAt != nil {
			lastAttempt = op.LastAttemptAt.UTC().Format(time.RFC3339)
		}
		addRow(backlogSheet, []string{
			op.EventID,
			string(op.Type),
			op.EnqueuedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(op.RetryCount),
			lastAttempt,
		})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: audit workbook written",
		zap.String("path", path),
		zap.Int("evaluations", rows),
		zap.Int("backlog", len(ops)),
	)
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func formatMeters(m float64) string {
	return strconv.FormatFloat(m, 'f', 1, 64)
}

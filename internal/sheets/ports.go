package sheets

import (
	"context"

	"claims/internal/core"
)

// ReportWriter is the outbound port for the approved-claims report. The
// category name travels alongside the expense because the report is read
// by humans who do not know category IDs.
type ReportWriter interface {
	Append(ctx context.Context, e core.Expense, categoryName string) (rowRef string, err error)
}

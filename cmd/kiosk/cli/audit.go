package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/odyssey-erp/kiosk-inventory/internal/inventory"
	"github.com/odyssey-erp/kiosk-inventory/internal/reconcile"
)

// Auditor produces a reconciliation report for one counter.
type Auditor interface {
	AuditProduct(ctx context.Context, ref inventory.StockRef) (reconcile.Report, error)
}

// AuditOptions configures the audit command.
type AuditOptions struct {
	Kind   string
	ID     string
	Stdout io.Writer
	Stderr io.Writer
}

// Exit codes of AuditCommand.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInconsistent = 10
)

// AuditCommand prints the report as JSON. It exits with ExitInconsistent
// when the counter drifts or a transaction disagrees with the ledger.
func AuditCommand(ctx context.Context, auditor Auditor, opts AuditOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	ref, err := inventory.ParseRef(opts.Kind, opts.ID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: %v\n", err)
		return ExitFailure
	}
	report, err := auditor.AuditProduct(ctx, ref)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: %v\n", err)
		return ExitFailure
	}
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "audit: encode json: %v\n", err)
		return ExitFailure
	}
	if !report.Consistent() {
		return ExitInconsistent
	}
	return ExitOK
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hermes-erp/hermes/jobs"
)

// LedgerCheckOptions defines available flags for the ledger check command.
type LedgerCheckOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LedgerCheckSummary describes the JSON output of ledger check.
type LedgerCheckSummary struct {
	OK         bool             `json:"ok"`
	Unbalanced []UnbalancedItem `json:"unbalanced"`
}

// UnbalancedItem is one journal entry whose lines do not balance.
type UnbalancedItem struct {
	EntryID   int64  `json:"entry_id"`
	Reference string `json:"reference"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

// LedgerCLI runs ledger consistency checks from the command line.
type LedgerCLI struct {
	source jobs.IntegritySource
}

// NewLedgerCLI constructs the helper.
func NewLedgerCLI(source jobs.IntegritySource) *LedgerCLI {
	return &LedgerCLI{source: source}
}

// CheckCommand lists unbalanced entries and returns the process exit code:
// 0 when the ledger balances, 10 when entries are flagged, 1 on failure.
func (c *LedgerCLI) CheckCommand(ctx context.Context, opts LedgerCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.source == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger check: not configured")
		return 1
	}
	issues, err := c.source.UnbalancedEntries(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger check: %v\n", err)
		return 1
	}
	summary := LedgerCheckSummary{OK: len(issues) == 0, Unbalanced: make([]UnbalancedItem, 0, len(issues))}
	for _, im := range issues {
		summary.Unbalanced = append(summary.Unbalanced, UnbalancedItem{
			EntryID:   im.EntryID,
			Reference: im.Reference,
			Debit:     im.Debit.StringFixed(2),
			Credit:    im.Credit.StringFixed(2),
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger check: encode json: %v\n", err)
			return 1
		}
	} else {
		renderCheckHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderCheckHuman(w io.Writer, summary LedgerCheckSummary) {
	if summary.OK {
		_, _ = fmt.Fprintln(w, "ledger balanced")
		return
	}
	_, _ = fmt.Fprintf(w, "%d unbalanced entries\n", len(summary.Unbalanced))
	for _, item := range summary.Unbalanced {
		_, _ = fmt.Fprintf(w, "  #%d %s debit=%s credit=%s\n", item.EntryID, item.Reference, item.Debit, item.Credit)
	}
}

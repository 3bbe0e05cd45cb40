package runner

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/ayounce80/sfmc-inv2/internal/inventory"
)

// Metadata keys set on merged multi-account results.
const (
	MetaMultiAccount = "multi_bu"
	MetaAccountCount = "bu_count"
)

// runMultiAccount runs name once per child account and merges the results.
// Accounts run in order. A failing or panicking account is logged, recorded
// as an AccountError and marks the merged result failed; the rest still run.
func (r *Runner) runMultiAccount(ctx context.Context, name string, opts inventory.Options, accounts []string) *inventory.ExtractorResult {
	merged := inventory.NewResult(name)
	merged.Success = true
	succeeded := 0

	for _, accountID := range accounts {
		var res *inventory.ExtractorResult
		err := r.accounts.Do(ctx, name, func(ctx context.Context) error {
			var err error
			if recovered := panics.Try(func() { res, err = r.extractForAccount(ctx, name, accountID, opts) }); recovered != nil {
				return recovered.AsError()
			}
			return err
		})
		if err != nil {
			r.logger.Error("extractor failed for account",
				zap.String("extractor", name),
				zap.String("account_id", accountID),
				zap.Error(err))
			merged.Success = false
			merged.AddError(inventory.ErrorTypeAccount, fmt.Sprintf("account %s: %v", accountID, err))
			continue
		}

		succeeded++
		merged.Items = append(merged.Items, res.Items...)
		merged.Relationships = append(merged.Relationships, res.Relationships...)
		merged.Errors = append(merged.Errors, res.Errors...)
		merged.PagesFetched += res.PagesFetched
		if !res.Success {
			merged.Success = false
		}
	}

	merged.SetMeta(MetaMultiAccount, true)
	merged.SetMeta(MetaAccountCount, succeeded)
	merged.Complete()
	return merged
}

// extractForAccount runs name against one account and tags its output with
// the account id.
func (r *Runner) extractForAccount(ctx context.Context, name, accountID string, opts inventory.Options) (*inventory.ExtractorResult, error) {
	ex, err := r.catalog.Extractor(name, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	opts.AccountID = accountID
	res, err := ex.Extract(ctx, opts)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("extractor %s returned no result", name)
	}

	for i := range res.Items {
		res.Items[i].SourceAccountID = accountID
	}
	for i, e := range res.Relationships {
		res.Relationships[i] = e.WithMeta(inventory.MetaSourceAccountID, accountID)
	}
	return res, nil
}

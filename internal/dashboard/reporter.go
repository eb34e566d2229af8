package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/NikkuNoShori/RepoMonitor/internal/domain"
	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
	"github.com/NikkuNoShori/RepoMonitor/internal/logging"
)

// Reporter merges a completed aggregation result into the shared view
// state exactly once per run.
type Reporter struct {
	store  *Store
	logger zerolog.Logger
}

// NewReporter creates a reporter writing into the given store.
func NewReporter(store *Store) *Reporter {
	return &Reporter{
		store:  store,
		logger: logging.NewLogger("reporter"),
	}
}

// Commit writes the result total into the view state in a single atomic
// update. The context is the liveness guard: an abandoned run arrives
// here with a cancelled context and nothing is written.
//
// With zero failures no warning is produced. With failures, exactly one
// consolidated warning names every failed item; never one warning per
// item. Committing the same result twice leaves the state unchanged.
func (r *Reporter) Commit(ctx context.Context, result domain.AggregateResult) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewCancelledError("commit suppressed, run abandoned", err)
	}

	warning := ""
	if len(result.Failed) > 0 {
		warning = fmt.Sprintf("failed to refresh open issues for %s; trigger another refresh to include them",
			strings.Join(result.Failed, ", "))

		r.logger.Warn().
			Str("run_id", result.RunID).
			Strs("failed", result.Failed).
			Msg(warning)
	}

	r.store.SetIssueTotals(result.Total, warning, result.CompletedAt)

	r.logger.Info().
		Str("run_id", result.RunID).
		Int("total", result.Total).
		Int("processed", result.Processed).
		Msg("aggregation result committed")

	return nil
}

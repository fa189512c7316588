package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/ledger"
)

const recoveryPageSize = 5000

// Recover rebuilds the engine from the journal, page by page. It returns the
// number of commands replayed. The engine must be empty.
func Recover(ctx context.Context, eng *ledger.Engine, journal domain.JournalStore, logger *slog.Logger) (int, error) {
	start := time.Now()
	total := 0
	var after uint64
	for {
		page, err := journal.Load(ctx, after, recoveryPageSize)
		if err != nil {
			return total, fmt.Errorf("service: recover: load journal after %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		if err := eng.Replay(ctx, page); err != nil {
			return total, fmt.Errorf("service: recover: %w", err)
		}
		total += len(page)
		after = page[len(page)-1].Seq
		logger.InfoContext(ctx, "journal page replayed",
			slog.Int("commands", len(page)),
			slog.Uint64("through_seq", after),
		)
	}

	if err := eng.Audit(); err != nil {
		return total, fmt.Errorf("service: recover: %w", err)
	}
	logger.InfoContext(ctx, "ledger recovered",
		slog.Int("commands", total),
		slog.Duration("elapsed", time.Since(start)),
	)
	return total, nil
}

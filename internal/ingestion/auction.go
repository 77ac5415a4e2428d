package ingestion

import (
	"context"
	"fmt"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/sources"
)

// RefreshAuction fetches the 09:26 call-auction snapshots for a date.
// With force, rows in the [09:20, 09:30) window are deleted first so the
// fresh pull fully replaces any partial earlier one. Auction-only fields are
// merged into DailyBasic without clobbering the valuation pull.
func (e *Engine) RefreshAuction(ctx context.Context, date string, codes []string, force bool) (int, error) {
	if force {
		deleted, err := e.auctions.DeleteWindow(date+"T09:20:00", date+"T09:30:00", codes)
		if err != nil {
			return 0, fmt.Errorf("failed to clear auction window: %w", err)
		}
		if deleted > 0 {
			e.log.Info().Str("date", date).Int64("deleted", deleted).Msg("Cleared auction window")
		}
	}

	snaps, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.AuctionSnapshot, error) {
		return e.source.AuctionByDate(ctx, date, codes)
	})
	if err != nil {
		return 0, fmt.Errorf("auction snapshots for %s: %w", date, err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	// An auction print above the daily limit is a vendor glitch, not data
	valid := snaps[:0]
	for _, s := range snaps {
		if s.PreClose > 0 && s.Price > s.PreClose*(1+domain.LimitPct(s.Code))+1e-9 {
			e.log.Warn().Str("code", s.Code).Float64("price", s.Price).
				Float64("pre_close", s.PreClose).Msg("Auction price beyond limit, dropping row")
			continue
		}
		valid = append(valid, s)
	}

	if err := e.auctions.UpsertBatch(valid); err != nil {
		return 0, fmt.Errorf("failed to store auction snapshots: %w", err)
	}

	for _, s := range valid {
		if err := e.basics.MergeAuctionFields(s.Code, date, s.TurnoverRate, s.VolumeRatio, s.FloatShare); err != nil {
			e.log.Warn().Str("code", s.Code).Err(err).Msg("Failed to merge auction fields")
		}
	}
	return len(valid), nil
}

// RefreshQuotes appends a realtime quote snapshot for the given codes to the
// quote history.
func (e *Engine) RefreshQuotes(ctx context.Context, codes []string) (int, error) {
	quotes, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.Quote, error) {
		return e.source.RealtimeQuotes(ctx, codes)
	})
	if err != nil {
		return 0, fmt.Errorf("realtime quotes: %w", err)
	}
	if len(quotes) == 0 {
		return 0, nil
	}
	if err := e.auctions.AppendQuotes(quotes); err != nil {
		return 0, fmt.Errorf("failed to append quote history: %w", err)
	}
	return len(quotes), nil
}

// IngestKplConcepts pulls the day's limit-up concept boards and memberships.
func (e *Engine) IngestKplConcepts(ctx context.Context, date string) (concepts, cons int, err error) {
	bundle, err := callWithRetry(e, ctx, func(ctx context.Context) (*sources.KplBundle, error) {
		return e.source.KplConceptsByDate(ctx, date)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("kpl concepts for %s: %w", date, err)
	}
	if bundle == nil {
		return 0, 0, nil
	}
	if len(bundle.Concepts) > 0 {
		if err := e.concepts.UpsertConcepts(bundle.Concepts); err != nil {
			return 0, 0, fmt.Errorf("failed to store kpl concepts: %w", err)
		}
	}
	if len(bundle.Cons) > 0 {
		if err := e.concepts.UpsertCons(bundle.Cons); err != nil {
			return len(bundle.Concepts), 0, fmt.Errorf("failed to store kpl memberships: %w", err)
		}
	}
	return len(bundle.Concepts), len(bundle.Cons), nil
}

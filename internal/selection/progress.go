package selection

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/market"
)

// progressSink serializes progress callbacks and keeps them monotone:
// processed and selected never decrease, total never changes. A panicking
// callback is swallowed and logged; the run continues.
type progressSink struct {
	mu        sync.Mutex
	fn        ProgressFunc
	total     int
	processed int
	selected  int
	log       zerolog.Logger
}

func newProgressSink(fn ProgressFunc, total int, log zerolog.Logger) *progressSink {
	return &progressSink{fn: fn, total: total, log: log}
}

// tick advances processed by one and reports the current selected count.
func (p *progressSink) tick(selected int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if selected > p.selected {
		p.selected = selected
	}
	p.emitLocked()
}

// final emits the closing tick with the definitive selected count.
func (p *progressSink) final(selected int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processed < p.total {
		p.processed = p.total
	}
	if selected > p.selected {
		p.selected = selected
	}
	p.emitLocked()
}

func (p *progressSink) processedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

func (p *progressSink) emitLocked() {
	if p.fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Warn().Interface("panic", rec).Msg("Progress callback panicked")
		}
	}()
	p.fn(p.processed, p.total, p.selected)
}

// sectorCache memoizes per-industry sector stats within one run so the
// workers don't re-query the same industry hundreds of times.
type sectorCache struct {
	mu    sync.Mutex
	repo  *market.MoneyFlowRepository
	stats map[string]*market.SectorStats
}

func newSectorCache(repo *market.MoneyFlowRepository) *sectorCache {
	return &sectorCache{repo: repo, stats: make(map[string]*market.SectorStats)}
}

// get returns the stats for an industry, nil when unknown or unavailable.
func (c *sectorCache) get(industry string) *market.SectorStats {
	if industry == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stats[industry]; ok {
		return s
	}
	s, err := c.repo.SectorStatsByName(industry)
	if err != nil {
		s = nil
	}
	c.stats[industry] = s
	return s
}

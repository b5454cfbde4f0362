// Package services – Sweeper
//
// TTL-based expiry is explicit in this system: reads already treat expired
// rows as absent, and this background sweep performs the physical removal
// plus the expiry side-effects (the invoice timeout notification).
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ndgaspar/go-commerce-backend/internal/repo"
)

// Sweeper periodically removes expired event-log rows and invoice
// transactions.
type Sweeper struct {
	DB       *gorm.DB
	Invoices *InvoiceService
	Interval time.Duration
	Log      zerolog.Logger
}

// Run blocks, sweeping every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep performs one pass. Errors are logged, not fatal: the next tick
// retries.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	if n, err := repo.DeleteExpiredEvents(ctx, s.DB, now.Unix()); err != nil {
		s.Log.Error().Err(err).Msg("event sweep failed")
	} else if n > 0 {
		s.Log.Debug().Int64("removed", n).Msg("expired events removed")
	}

	if n, err := s.Invoices.ExpireTransactions(ctx, now); err != nil {
		s.Log.Error().Err(err).Msg("transaction sweep failed")
	} else if n > 0 {
		s.Log.Debug().Int("removed", n).Msg("expired transactions removed")
	}
}

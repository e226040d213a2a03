// Package kiborsync tops up the rate table for every conventional bank on
// a schedule, so most ledger queries never need a per-loan backfill. It
// uses the same idempotent insert as the backfill workers and therefore
// cannot race-corrupt rows they write.
package kiborsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/config"
	"github.com/taimuradam/sugar-app/internal/dates"
	"github.com/taimuradam/sugar-app/internal/integrations/kibor"
	"github.com/taimuradam/sugar-app/internal/models"
	"github.com/taimuradam/sugar-app/internal/repository"
	"github.com/taimuradam/sugar-app/internal/utils/email"
)

// alertAfterFailures is how many consecutive failed passes trigger an
// operator email.
const alertAfterFailures = 3

// Syncer runs one top-up pass per cron tick.
type Syncer struct {
	repo   *repository.Repository
	client *kibor.Client
	mail   *email.Sender
	cfg    *config.Config
	log    *logrus.Logger

	failures int
}

// NewSyncer initializes a new rate syncer. mail may be nil when SMTP is
// not configured.
func NewSyncer(repo *repository.Repository, client *kibor.Client, mail *email.Sender, cfg *config.Config, log *logrus.Logger) *Syncer {
	return &Syncer{repo: repo, client: client, mail: mail, cfg: cfg, log: log}
}

// Run executes one sync pass. Errors are logged, counted and swallowed;
// the cron schedule simply tries again next tick.
func (s *Syncer) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.syncOnce(ctx); err != nil {
		s.failures++
		s.log.WithError(err).WithField("consecutive_failures", s.failures).Error("kibor sync pass failed")
		if s.failures == alertAfterFailures && s.mail != nil && s.cfg.AlertEmail != "" {
			if mailErr := s.mail.SendRateSyncAlert(s.cfg.AlertEmail, s.failures, err); mailErr != nil {
				s.log.WithError(mailErr).Warn("failed to send sync alert")
			}
		}
		return
	}
	s.failures = 0
}

// syncOnce fetches today's bulletin once and upserts every tenor for
// every conventional bank, under the resolved bulletin date.
func (s *Syncer) syncOnce(ctx context.Context) error {
	banks, err := s.repo.ListBanks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list banks: %w", err)
	}

	var conventional []models.Bank
	for _, b := range banks {
		if b.Type != models.BankTypeIslamic {
			conventional = append(conventional, b)
		}
	}
	if len(conventional) == 0 {
		return nil
	}

	target := dates.LastBusinessDay(dates.Today(s.cfg.Timezone))
	rates, err := s.client.Fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to fetch kibor rates: %w", err)
	}

	for _, bank := range conventional {
		for tenor, offer := range rates.ByTenor {
			err := s.repo.UpsertRateIfAbsent(ctx, models.Rate{
				BankID:        bank.ID,
				TenorMonths:   tenor,
				EffectiveDate: rates.EffectiveDate,
				AnnualRate:    offer,
			})
			if err != nil {
				return fmt.Errorf("bank %d tenor %dm: %w", bank.ID, tenor, err)
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"banks":          len(conventional),
		"effective_date": rates.EffectiveDate.String(),
	}).Info("kibor rates synced")
	return nil
}

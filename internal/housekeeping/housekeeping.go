// Package housekeeping runs the periodic maintenance job: pruning expired
// quota counters and posting the previous month's incident digest.
package housekeeping

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"tokasu/internal/domain"
	"tokasu/internal/incident"
)

type QuotaPruner interface {
	Prune(ctx context.Context, now time.Time, keepMonths int) (int, error)
}

type IncidentLister interface {
	ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.IncidentRecord, error)
}

type DigestPoster interface {
	PostDigest(ctx context.Context, label string, stats domain.IncidentStats) error
}

type Runner struct {
	Quota           QuotaPruner
	Incidents       IncidentLister
	Digest          DigestPoster // optional
	RetentionMonths int
	Location        *time.Location
}

type Result struct {
	QuotaKeysPruned int
	DigestMonth     string
	Stats           domain.IncidentStats
	DigestPosted    bool
}

// RunOnce prunes quota counters and, when a poster is configured, posts the
// digest for the calendar month before now.
func (r Runner) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	var res Result

	pruned, err := r.Quota.Prune(ctx, now, r.RetentionMonths)
	res.QuotaKeysPruned = pruned
	if err != nil {
		return res, fmt.Errorf("pruning quota: %w", err)
	}

	local := now.In(loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	prevStart := monthStart.AddDate(0, -1, 0)
	res.DigestMonth = prevStart.Format("2006-01")

	records, err := r.Incidents.ListByDateRange(ctx, prevStart, monthStart)
	if err != nil {
		return res, fmt.Errorf("listing incidents for %s: %w", res.DigestMonth, err)
	}
	res.Stats = incident.Summarize(records)

	if r.Digest != nil {
		if err := r.Digest.PostDigest(ctx, res.DigestMonth, res.Stats); err != nil {
			return res, err
		}
		res.DigestPosted = true
	}
	log.Printf("housekeeping done pruned=%d month=%s incidents=%d posted=%t", res.QuotaKeysPruned, res.DigestMonth, res.Stats.Total, res.DigestPosted)
	return res, nil
}

// Start runs r on the 5-field cron schedule until ctx is cancelled. An empty
// schedule disables the job.
func Start(ctx context.Context, schedule string, r Runner) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		log.Println("Housekeeping disabled (housekeeping_schedule not set)")
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid housekeeping_schedule '%s': %w", schedule, err)
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	log.Printf("Housekeeping scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next housekeeping at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Println("Housekeeping stopped")
				return
			case <-timer.C:
			}

			if _, err := r.RunOnce(ctx, time.Now()); err != nil {
				log.Printf("Housekeeping error: %v", err)
			}
		}
	}()
	return nil
}

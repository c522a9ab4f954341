package jobs

import (
	"context"
	"time"

	"github.com/joy095/carrental/logger"
	"github.com/robfig/cron/v3"
)

// sweepBatch bounds how many bookings one run looks up.
const sweepBatch = 50

// Sweeper is the part of the reconciliation engine the job drives.
type Sweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// PaymentSweepJob re-polls the gateway for bookings whose payment has been
// initiated but never confirmed by a webhook or the return redirect.
type PaymentSweepJob struct {
	sweeper    Sweeper
	staleAfter time.Duration
	timeout    time.Duration
}

func NewPaymentSweepJob(sweeper Sweeper, staleAfter time.Duration) *PaymentSweepJob {
	return &PaymentSweepJob{sweeper: sweeper, staleAfter: staleAfter, timeout: 2 * time.Minute}
}

// Run performs one sweep.
func (j *PaymentSweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	checked, err := j.sweeper.SweepStale(ctx, j.staleAfter, sweepBatch)
	if err != nil {
		logger.ErrorLogger.Errorf("Payment sweep failed after %d bookings: %v", checked, err)
		return
	}
	if checked > 0 {
		logger.InfoLogger.Infof("Payment sweep checked %d stale bookings", checked)
	}
}

// Schedule registers the job on a new cron scheduler and starts it. A tick
// that fires while the previous run is still going is skipped. The caller
// stops the scheduler on shutdown.
func Schedule(spec string, job *PaymentSweepJob) (*cron.Cron, error) {
	cronLog := cron.PrintfLogger(logger.InfoLogger)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	c.Start()
	logger.InfoLogger.Infof("Payment sweep scheduled (%s)", spec)
	return c, nil
}

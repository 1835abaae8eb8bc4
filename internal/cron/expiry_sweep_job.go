package cron

import (
	"context"
	"fmt"

	"github.com/homeplate-app/homeplate-backend/internal/orders"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
	"github.com/homeplate-app/homeplate-backend/pkg/metrics"
)

type sweeper interface {
	Sweep(ctx context.Context) (orders.SweepResult, error)
}

// ExpirySweepJobParams configure the stale-order sweep job.
type ExpirySweepJobParams struct {
	Logger  *logger.Logger
	Orders  sweeper
	Metrics *metrics.CronJobMetrics
}

// NewExpirySweepJob builds the cron job that rejects requested orders whose
// confirmation window has lapsed.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order sweeper required")
	}
	return &expirySweepJob{
		logg:    params.Logger,
		orders:  params.Orders,
		metrics: params.Metrics,
	}, nil
}

type expirySweepJob struct {
	logg    *logger.Logger
	orders  sweeper
	metrics *metrics.CronJobMetrics
}

func (j *expirySweepJob) Name() string { return "order-expiry-sweep" }

func (j *expirySweepJob) Run(ctx context.Context) error {
	result, err := j.orders.Sweep(ctx)
	if j.metrics != nil && result.Rejected > 0 {
		j.metrics.AddSwept(result.Rejected)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  result.Checked,
		"rejected": result.Rejected,
	})
	j.logg.Info(logCtx, "expiry sweep finished")
	return err
}

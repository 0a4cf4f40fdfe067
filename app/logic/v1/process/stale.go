package process

import (
	"context"
	"log/slog"
	"time"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/pkg/register"
	"github.com/quka-ai/knowledge-sync/pkg/safe"
)

const (
	DEFAULT_POLL_SPEC   = "@every 1m"
	DEFAULT_STALE_AFTER = 10 * time.Minute
	DEFAULT_POLL_BATCH  = 100
)

func init() {
	register.RegisterFunc[*Process](ProcessKey{}, func(p *Process) {
		spec, staleAfter, batch := pollSettings(p.Core().Cfg().Worker)
		if _, err := p.Cron().AddFunc(spec, func() {
			safe.RunWithLog(func() {
				redispatchStale(p, staleAfter, batch)
			}, "process.redispatchStale")
		}); err != nil {
			slog.Error("failed to register stale job poller", slog.String("spec", spec), slog.String("error", err.Error()))
			return
		}
		slog.Info("stale embedding job poller started", slog.String("spec", spec))
	})
}

func pollSettings(cfg core.WorkerConfig) (string, time.Duration, uint64) {
	spec := cfg.PollSpec
	if spec == "" {
		spec = DEFAULT_POLL_SPEC
	}
	staleAfter := time.Duration(cfg.StaleAfterSeconds) * time.Second
	if staleAfter <= 0 {
		staleAfter = DEFAULT_STALE_AFTER
	}
	batch := cfg.PollBatch
	if batch == 0 {
		batch = DEFAULT_POLL_BATCH
	}
	return spec, staleAfter, batch
}

// redispatchStale 重新投递长时间未被消费的 pending 任务，以及 worker 崩溃遗留的 processing 任务
func redispatchStale(p *Process, staleAfter time.Duration, batch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := p.Core().Ingest().Jobs.RedispatchStale(ctx, staleAfter, batch)
	if err != nil {
		slog.Error("failed to redispatch stale embedding jobs", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		slog.Info("stale embedding jobs redispatched", slog.Int("count", n))
	}
}

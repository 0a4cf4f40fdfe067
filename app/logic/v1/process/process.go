package process

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/pkg/queue"
	"github.com/quka-ai/knowledge-sync/pkg/register"
)

const DEFAULT_CONCURRENCY = 5

type Process struct {
	cron        *cron.Cron
	core        *core.Core
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
}

type ProcessKey struct{}

func NewProcess(core *core.Core) *Process {
	p := &Process{
		cron: cron.New(),
		core: core,
	}

	concurrency := core.Cfg().Worker.Concurrency
	if concurrency <= 0 {
		concurrency = DEFAULT_CONCURRENCY
	}

	p.asynqServer = asynq.NewServer(core.AsynqRedisOpt(), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue.EmbeddingQueueName: 1,
		},
		Logger: queue.NewAsynqLogger(),
	})
	p.asynqMux = core.Queue().SetupHandler(embeddingHandler(core))

	for _, h := range register.ResolveFuncHandlers[*Process](ProcessKey{}) {
		h(p)
	}

	return p
}

func (p *Process) Cron() *cron.Cron {
	return p.cron
}

func (p *Process) Core() *core.Core {
	return p.core
}

func (p *Process) Start() error {
	if err := p.asynqServer.Start(p.asynqMux); err != nil {
		return err
	}
	p.cron.Start()
	slog.Info("embedding consumer started")
	return nil
}

func (p *Process) Stop() {
	// 停止 cron 调度器
	if p.cron != nil {
		ctx := p.cron.Stop()
		<-ctx.Done()
	}

	p.asynqServer.Shutdown()
}

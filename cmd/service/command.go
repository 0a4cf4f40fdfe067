package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quka-ai/knowledge-sync/app/core"
	"github.com/quka-ai/knowledge-sync/app/logic/v1/process"
)

type Options struct {
	ConfigPath string
	// WithProcess 是否在 api 进程内同时消费向量化任务
	WithProcess bool
}

func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	// Add flags for generic options
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "init api by given config, read env when empty")
}

func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "service",
		Short: "knowledge sync api service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&opts.WithProcess, "with-process", true, "consume embedding jobs in the api process")
	return cmd
}

func Run(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	defer app.Close()

	if opts.WithProcess {
		p := process.NewProcess(app)
		if err := p.Start(); err != nil {
			return err
		}
		defer p.Stop()
	}
	return serve(app)
}

func NewProcessCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "embedding job consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunProcess(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func RunProcess(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	defer app.Close()

	p := process.NewProcess(app)
	if err := p.Start(); err != nil {
		return err
	}
	fmt.Println("Process starting...")
	sigs := make(chan os.Signal, 1)
	// 监听 os.Interrupt (Ctrl+C) 和 syscall.SIGTERM (kill)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	// 阻塞等待信号
	<-sigs
	p.Stop()
	return nil
}

type ReembedOptions struct {
	Options
	SourceID    string
	Concurrency int
	Timeout     time.Duration
}

// NewReembedCommand 模型或维度变更后，重新投递知识源下全部内容的向量化任务
func NewReembedCommand() *cobra.Command {
	opts := &ReembedOptions{}
	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "re-embed every content item of a knowledge source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunReembed(cmd.Context(), opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.SourceID, "source", "s", "", "knowledge source id")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "enqueue concurrency, worker config is used when 0")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func RunReembed(ctx context.Context, opts *ReembedOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	defer app.Close()

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = app.Cfg().Worker.ReembedConcurrency
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	res, err := app.Ingest().Reembed.ReembedSource(ctx, opts.SourceID, concurrency)
	if err != nil {
		return err
	}
	slog.Info("reembed finished", slog.String("source", opts.SourceID), slog.Int("total", res.Total),
		slog.Int64("enqueued", res.Enqueued), slog.Int64("failed", res.Failed))

	out, _ := json.Marshal(res)
	fmt.Println(string(out))
	return nil
}

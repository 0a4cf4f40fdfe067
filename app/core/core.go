package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quka-ai/knowledge-sync/app/core/srv"
	"github.com/quka-ai/knowledge-sync/app/ingest"
	"github.com/quka-ai/knowledge-sync/app/store/sqlstore"
	"github.com/quka-ai/knowledge-sync/pkg/object-storage/s3"
	"github.com/quka-ai/knowledge-sync/pkg/queue"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

type Core struct {
	cfg CoreConfig
	srv *srv.Srv

	stores     func() *sqlstore.Provider
	redis      redis.UniversalClient
	asynq      *asynq.Client
	queue      *queue.EmbeddingQueue
	storage    *FileStorage
	httpEngine *gin.Engine

	metrics *Metrics
	ingest  *ingest.Ingest
}

func setupLogger(cfg Log) {
	var writer io.Writer = os.Stdout
	if cfg.Path != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    500, // megabytes
			MaxBackups: 3,
			MaxAge:     28,   //days
			Compress:   true, // disabled by default
		}
	}
	l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(l)
}

func MustSetupCore(cfg CoreConfig) *Core {
	setupLogger(cfg.Log)
	utils.SetupIDWorker(1)

	core := &Core{
		cfg:        cfg,
		metrics:    NewMetrics("quka", "knowledge_sync"),
		httpEngine: gin.New(),
	}

	var err error
	core.srv, err = srv.SetupSrvs(
		srv.ApplyAI(cfg.AI),
		srv.ApplyRateLimit(cfg.AI.Embedding.RateLimit, cfg.AI.Embedding.RateBurst),
	)
	if err != nil {
		panic(err)
	}

	// setup store, the vector column follows the embedder dimensions
	setupSqlStore(core)
	setupRedis(core)
	setupQueue(core)
	setupObjectStorage(core)

	setupIngest(core)
	return core
}

func setupSqlStore(core *Core) {
	core.stores = sqlstore.MustSetup(core.cfg.Postgres)
	// 执行数据库表初始化
	if err := core.stores().Install(core.srv.AI().Dimensions()); err != nil {
		panic(err)
	}
	slog.Info("setupSqlStore done")
}

func (c RedisConfig) universalOptions() *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Addrs:        []string{c.Addr},
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  seconds(c.DialTimeout),
		ReadTimeout:  seconds(c.ReadTimeout),
		WriteTimeout: seconds(c.WriteTimeout),
	}
	if c.Cluster {
		opts.Addrs = c.ClusterAddrs
		opts.Password = c.ClusterPasswd
		opts.DB = 0
	}
	return opts
}

func setupRedis(core *Core) {
	core.redis = redis.NewUniversalClient(core.cfg.Redis.universalOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := core.redis.Ping(ctx).Err(); err != nil {
		panic(fmt.Errorf("failed to connect redis: %w", err))
	}
}

// AsynqRedisOpt 与 go-redis 使用同一份配置
func (c *Core) AsynqRedisOpt() asynq.RedisConnOpt {
	r := c.cfg.Redis
	if r.Cluster {
		return asynq.RedisClusterClientOpt{
			Addrs:    r.ClusterAddrs,
			Password: r.ClusterPasswd,
		}
	}
	return asynq.RedisClientOpt{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

func setupQueue(core *Core) {
	core.asynq = asynq.NewClient(core.AsynqRedisOpt())
	core.queue = queue.NewEmbeddingQueue(core.cfg.Redis.Prefix(), core.asynq, asynq.NewInspector(core.AsynqRedisOpt()))
}

func setupObjectStorage(core *Core) {
	conf := core.cfg.ObjectStorage
	if conf.S3 == nil {
		slog.Warn("object storage is not configured, file content is disabled")
		return
	}
	cli := s3.NewS3Client(conf.S3.Endpoint, conf.S3.Region, conf.S3.Bucket, conf.S3.AccessKey, conf.S3.SecretKey,
		s3.WithPathStyle(conf.S3.UsePathStyle),
		s3.WithPublicURL(conf.StaticDomain))
	core.storage = NewFileStorage(cli)
}

func setupIngest(core *Core) {
	stores := core.Store()
	deps := ingest.Deps{
		Sources:    stores.KnowledgeSourceStore(),
		Contents:   stores.ContentItemStore(),
		Jobs:       stores.EmbeddingJobStore(),
		Vectors:    stores.VectorStore(),
		Tx:         stores,
		Embedder:   core.srv.AI().Embedder(),
		Extractor:  core.srv.AI().Extractor(),
		Dispatcher: core.queue,
		Locker:     NewRedisLocker(core.redis, core.cfg.Redis.Prefix()),
		Limiter:    core.srv.EmbeddingLimiter(),
		Metrics:    core.metrics,
	}
	if core.storage != nil {
		deps.Blob = core.storage
	}
	if reader := core.srv.AI().Reader(); reader != nil {
		deps.Reader = reader
	}

	opts := core.cfg.IngestOptions()
	opts.Dimensions = core.srv.AI().Dimensions()
	core.ingest = ingest.New(deps, opts)
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) HttpEngine() *gin.Engine {
	return s.httpEngine
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

func (s *Core) Store() *sqlstore.Provider {
	return s.stores()
}

func (s *Core) Srv() *srv.Srv {
	return s.srv
}

func (s *Core) Redis() redis.UniversalClient {
	return s.redis
}

func (s *Core) Queue() *queue.EmbeddingQueue {
	return s.queue
}

// FileStorage returns nil when object storage is not configured.
func (s *Core) FileStorage() *FileStorage {
	return s.storage
}

func (s *Core) Ingest() *ingest.Ingest {
	return s.ingest
}

func (s *Core) Close() error {
	s.queue.Shutdown()
	return s.redis.Close()
}

package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/quka-ai/knowledge-sync/app/core/srv"
	"github.com/quka-ai/knowledge-sync/app/ingest"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := &CoreConfig{}
	if err = toml.Unmarshal(raw, conf); err != nil {
		panic(err)
	}

	return *conf
}

func LoadBaseConfigFromENV() CoreConfig {
	var c CoreConfig
	c.FromENV()
	return c
}

type CoreConfig struct {
	Addr          string              `toml:"addr"`
	Log           Log                 `toml:"log"`
	Postgres      PGConfig            `toml:"postgres"`
	Redis         RedisConfig         `toml:"redis"`
	ObjectStorage ObjectStorageDriver `toml:"object_storage"`

	AI srv.AIConfig `toml:"ai"`

	Ingest IngestConfig `toml:"ingest"`
	Search SearchConfig `toml:"search"`
	Worker WorkerConfig `toml:"worker"`

	Security   Security   `toml:"security"`
	Prometheus Prometheus `toml:"prometheus"`
}

type ObjectStorageDriver struct {
	StaticDomain string    `toml:"static_domain"`
	Driver       string    `toml:"driver"`
	S3           *S3Config `toml:"s3"`
}

type S3Config struct {
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// Security 静态 token 鉴权，token 对应的 owner 作为知识源的归属
type Security struct {
	Tokens map[string]string `toml:"tokens"` // token -> owner id
}

type Prometheus struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type RetryConfig struct {
	Attempts    uint `toml:"attempts"`
	BaseDelayMS int  `toml:"base_delay_ms"`
	MaxDelayMS  int  `toml:"max_delay_ms"`
}

type IngestConfig struct {
	MaxInputChars int   `toml:"max_input_chars"`
	MaxFileSizeMB int64 `toml:"max_file_size_mb"`
	// 同步模式下等待向量化的时间，超时后返回 processing
	SyncTimeoutSeconds    int         `toml:"sync_timeout_seconds"`
	LockTTLSeconds        int         `toml:"lock_ttl_seconds"`
	EmbedTimeoutSeconds   int         `toml:"embed_timeout_seconds"`
	ExtractTimeoutSeconds int         `toml:"extract_timeout_seconds"`
	BlobTimeoutSeconds    int         `toml:"blob_timeout_seconds"`
	CrawlTimeoutSeconds   int         `toml:"crawl_timeout_seconds"`
	Retry                 RetryConfig `toml:"retry"`
}

type SearchConfig struct {
	TopK                int     `toml:"top_k"`
	MaxTopK             int     `toml:"max_top_k"`
	Threshold           float64 `toml:"threshold"`
	Diagnostics         bool    `toml:"diagnostics"`
	DiagnosticThreshold float64 `toml:"diagnostic_threshold"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
}

type WorkerConfig struct {
	Concurrency int `toml:"concurrency"`
	// PollSpec cron 表达式，定时重新投递滞留的 pending 任务
	PollSpec           string `toml:"poll_spec"`
	StaleAfterSeconds  int    `toml:"stale_after_seconds"`
	PollBatch          uint64 `toml:"poll_batch"`
	ReembedConcurrency int    `toml:"reembed_concurrency"`
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// IngestOptions merges the configured values over the defaults.
func (c CoreConfig) IngestOptions() ingest.Options {
	opts := ingest.DefaultOptions()
	in := c.Ingest

	if c.AI.Embedding.Dimensions > 0 {
		opts.Dimensions = c.AI.Embedding.Dimensions
	}
	if in.MaxInputChars > 0 {
		opts.MaxInputChars = in.MaxInputChars
	}
	if in.MaxFileSizeMB > 0 {
		opts.MaxFileSize = in.MaxFileSizeMB << 20
	}
	if in.SyncTimeoutSeconds > 0 {
		opts.SyncTimeout = seconds(in.SyncTimeoutSeconds)
	}
	if in.LockTTLSeconds > 0 {
		opts.LockTTL = seconds(in.LockTTLSeconds)
	}
	if in.EmbedTimeoutSeconds > 0 {
		opts.EmbedCall.Timeout = seconds(in.EmbedTimeoutSeconds)
	}
	if in.ExtractTimeoutSeconds > 0 {
		opts.ExtractCall.Timeout = seconds(in.ExtractTimeoutSeconds)
	}
	if in.BlobTimeoutSeconds > 0 {
		opts.BlobCall.Timeout = seconds(in.BlobTimeoutSeconds)
	}
	if in.CrawlTimeoutSeconds > 0 {
		opts.CrawlCall.Timeout = seconds(in.CrawlTimeoutSeconds)
	}
	if in.Retry.Attempts > 0 {
		for _, p := range []*uint{&opts.EmbedCall.Attempts, &opts.BlobCall.Attempts, &opts.MatchCall.Attempts} {
			*p = in.Retry.Attempts
		}
	}
	if in.Retry.BaseDelayMS > 0 {
		opts.EmbedCall.BaseDelay = time.Duration(in.Retry.BaseDelayMS) * time.Millisecond
		opts.BlobCall.BaseDelay = opts.EmbedCall.BaseDelay
	}
	if in.Retry.MaxDelayMS > 0 {
		opts.EmbedCall.MaxDelay = time.Duration(in.Retry.MaxDelayMS) * time.Millisecond
		opts.BlobCall.MaxDelay = opts.EmbedCall.MaxDelay
	}

	s := c.Search
	if s.TopK > 0 {
		opts.SearchTopK = s.TopK
	}
	if s.MaxTopK > 0 {
		opts.MaxTopK = s.MaxTopK
	}
	if s.Threshold > 0 {
		opts.Threshold = s.Threshold
	}
	opts.Diagnostics = s.Diagnostics
	if s.DiagnosticThreshold > 0 {
		opts.DiagnoseFrom = s.DiagnosticThreshold
	}
	if s.TimeoutSeconds > 0 {
		opts.MatchCall.Timeout = seconds(s.TimeoutSeconds)
	}
	return opts
}

func (c *CoreConfig) FromENV() {
	c.Addr = os.Getenv("QUKA_SYNC_SERVICE_ADDRESS")
	c.Log.FromENV()
	c.Postgres.FromENV()
	c.Redis.FromENV()
	c.AI.Embedding.Token = os.Getenv("QUKA_SYNC_EMBEDDING_TOKEN")
	c.AI.Embedding.Endpoint = os.Getenv("QUKA_SYNC_EMBEDDING_ENDPOINT")
	c.AI.Embedding.Model = os.Getenv("QUKA_SYNC_EMBEDDING_MODEL")
	if v, err := strconv.Atoi(os.Getenv("QUKA_SYNC_EMBEDDING_DIMENSIONS")); err == nil {
		c.AI.Embedding.Dimensions = v
	}
}

type PGConfig struct {
	DSN string `toml:"dsn"`
}

func (m *PGConfig) FromENV() {
	m.DSN = os.Getenv("QUKA_SYNC_POSTGRESQL_DSN")
}

func (c PGConfig) FormatDSN() string {
	return c.DSN
}

type RedisConfig struct {
	// 单机模式配置
	Addr     string `toml:"addr"`     // Redis地址，格式: host:port
	Password string `toml:"password"` // Redis密码
	DB       int    `toml:"db"`       // Redis数据库索引 (0-15)

	// 集群模式配置
	Cluster       bool     `toml:"cluster"`        // 是否启用集群模式
	ClusterAddrs  []string `toml:"cluster_addrs"`  // 集群节点地址列表
	ClusterPasswd string   `toml:"cluster_passwd"` // 集群密码

	// 连接池配置
	PoolSize     int `toml:"pool_size"`      // 连接池大小，默认10
	MinIdleConns int `toml:"min_idle_conns"` // 最小空闲连接数，默认0
	MaxRetries   int `toml:"max_retries"`    // 最大重试次数，默认3
	DialTimeout  int `toml:"dial_timeout"`   // 连接超时(秒)，默认5
	ReadTimeout  int `toml:"read_timeout"`   // 读超时(秒)，默认3
	WriteTimeout int `toml:"write_timeout"`  // 写超时(秒)，默认3

	// 队列配置
	KeyPrefix string `toml:"key_prefix"` // Redis键前缀，用于隔离不同环境/应用
}

func (r *RedisConfig) FromENV() {
	r.Addr = os.Getenv("QUKA_REDIS_ADDR")
	r.Password = os.Getenv("QUKA_REDIS_PASSWORD")
	if dbStr := os.Getenv("QUKA_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
}

func (r RedisConfig) Prefix() string {
	if r.KeyPrefix == "" {
		return "quka"
	}
	return r.KeyPrefix
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("QUKA_SYNC_LOG_LEVEL")
	l.Path = os.Getenv("QUKA_SYNC_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

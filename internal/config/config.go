// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Tika        TikaConfig        `mapstructure:"tika"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Events      EventsConfig      `mapstructure:"events"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Knowledge   KnowledgeConfig   `mapstructure:"knowledge"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// SSEHeartbeatSeconds SSE 连接的心跳间隔
	SSEHeartbeatSeconds int `mapstructure:"sse_heartbeat_seconds"`
}

// DatabaseConfig 存储目录库（catalog）的连接配置。
// Driver 取值 mysql 或 sqlite。
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置，Addr 为空时不启用向量缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// CacheTTLHours 向量缓存的过期时间，0 表示永不过期
	CacheTTLHours int `mapstructure:"cache_ttl_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// IngestConfig 控制后台处理任务的调度方式。
// Dispatcher 取值 pool（进程内有界队列）或 kafka。
type IngestConfig struct {
	Dispatcher string `mapstructure:"dispatcher"`
	Workers    int    `mapstructure:"workers"`
	QueueSize  int    `mapstructure:"queue_size"`
	SeedDir    string `mapstructure:"seed_dir"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// VectorStoreConfig 选择向量索引后端：elasticsearch、qdrant 或 memory。
type VectorStoreConfig struct {
	Backend       string              `mapstructure:"backend"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Qdrant        QdrantConfig        `mapstructure:"qdrant"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// QdrantConfig 存储 Qdrant gRPC 连接配置。
type QdrantConfig struct {
	Addr       string `mapstructure:"addr"`
	Collection string `mapstructure:"collection"`
}

// StorageConfig 选择原始文件的存储后端：minio 或 local。
type StorageConfig struct {
	Backend  string      `mapstructure:"backend"`
	LocalDir string      `mapstructure:"local_dir"`
	MinIO    MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Provider 取值 openai（任意 OpenAI 兼容接口）或 hashing（离线特征哈希）。
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"`
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// EventsConfig 选择事件总线：local 或 nats。
type EventsConfig struct {
	Backend    string `mapstructure:"backend"`
	NatsURL    string `mapstructure:"nats_url"`
	Subject    string `mapstructure:"subject"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// AuthConfig 为空 JWTSecret 时关闭接口鉴权。
type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpireHours int    `mapstructure:"token_expire_hours"`
}

// KnowledgeConfig 描述知识库本身：名字、领域以及协议分类词表。
type KnowledgeConfig struct {
	ServerName string           `mapstructure:"server_name"`
	Domain     string           `mapstructure:"domain"`
	Version    string           `mapstructure:"version"`
	Categories []CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig 一个协议分类及其描述。
type CategoryConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// DefaultCategories 未在配置中声明分类时使用的协议词表。
var DefaultCategories = []CategoryConfig{
	{Name: "pcie", Description: "PCI Express specifications and standards"},
	{Name: "ucie", Description: "Universal Chiplet Interconnect Express"},
	{Name: "ethernet", Description: "Ethernet networking protocols"},
	{Name: "usb", Description: "Universal Serial Bus specifications"},
	{Name: "sata", Description: "Serial ATA storage interface"},
	{Name: "nvme", Description: "NVM Express storage protocol"},
	{Name: "ddr", Description: "DDR memory specifications"},
	{Name: "thunderbolt", Description: "Thunderbolt interface standards"},
	{Name: "displayport", Description: "DisplayPort video interface"},
	{Name: "hdmi", Description: "HDMI multimedia interface"},
}

// CategoryList 返回生效的分类列表。
func (k KnowledgeConfig) CategoryList() []CategoryConfig {
	if len(k.Categories) == 0 {
		return DefaultCategories
	}
	return k.Categories
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.sse_heartbeat_seconds", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/catalog.db")

	v.SetDefault("redis.cache_ttl_hours", 24*7)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kafka.topic", "document-processing")
	v.SetDefault("kafka.group_id", "mcp-knowledge-go-consumer")

	v.SetDefault("ingest.dispatcher", "pool")
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_size", 64)

	v.SetDefault("tika.server_url", "http://localhost:9998")

	v.SetDefault("vector_store.backend", "memory")
	v.SetDefault("vector_store.elasticsearch.index_name", "protocols_knowledge")
	v.SetDefault("vector_store.qdrant.addr", "localhost:6334")
	v.SetDefault("vector_store.qdrant.collection", "protocols_knowledge")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data/uploads")

	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)

	v.SetDefault("events.backend", "local")
	v.SetDefault("events.subject", "knowledge.documents.processed")
	v.SetDefault("events.buffer_size", 32)

	v.SetDefault("auth.token_expire_hours", 24*30)

	v.SetDefault("knowledge.server_name", "Protocol Knowledge Server")
	v.SetDefault("knowledge.domain", "protocols")
	v.SetDefault("knowledge.version", "1.0.0")
}

// Load 读取 .env、YAML 配置文件以及 KB_ 前缀的环境变量。
// 配置文件不存在时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("访问配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，结果写入 Conf，失败时 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

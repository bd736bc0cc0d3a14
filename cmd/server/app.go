package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcp-knowledge-go/internal/chunker"
	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/mcpserver"
	"mcp-knowledge-go/internal/pipeline"
	"mcp-knowledge-go/internal/protocols"
	"mcp-knowledge-go/internal/repository"
	"mcp-knowledge-go/internal/service"
	"mcp-knowledge-go/internal/vectorstore"
	"mcp-knowledge-go/internal/vectorstore/memory"
	"mcp-knowledge-go/pkg/database"
	"mcp-knowledge-go/pkg/embedding"
	"mcp-knowledge-go/pkg/es"
	"mcp-knowledge-go/pkg/events"
	"mcp-knowledge-go/pkg/kafka"
	"mcp-knowledge-go/pkg/log"
	"mcp-knowledge-go/pkg/qdrant"
	"mcp-knowledge-go/pkg/storage"
	"mcp-knowledge-go/pkg/tika"
	"mcp-knowledge-go/pkg/workerpool"
)

// app 持有一次运行中装配好的全部组件。
type app struct {
	cfg        config.Config
	docRepo    repository.DocumentRepository
	adapter    *vectorstore.Adapter
	bus        events.Bus
	ingest     service.IngestService
	query      service.QueryService
	documents  service.DocumentService
	dispatcher *mcpserver.Dispatcher

	pool         *workerpool.Pool
	stopConsumer context.CancelFunc
	consumerDone chan struct{}
	closers      []func() error
}

// newApp 按配置初始化存储、索引、事件总线与后台处理，并注册 MCP 工具。
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	// 1. 目录库与 Redis
	database.InitDB(cfg.Database)
	a.docRepo = repository.NewDocumentRepository(database.DB)

	// 2. Embedding 客户端，配置了 Redis 时加缓存
	embedder, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if rdb := database.InitRedis(cfg.Redis); rdb != nil {
		ttl := time.Duration(cfg.Redis.CacheTTLHours) * time.Hour
		embedder = embedding.NewCachedClient(embedder, repository.NewEmbeddingCacheRepository(rdb, ttl), cfg.Embedding.Model)
		a.closers = append(a.closers, rdb.Close)
	}

	// 3. 向量索引
	index, err := a.newIndex(ctx)
	if err != nil {
		return nil, err
	}
	a.adapter = vectorstore.NewAdapter(index, embedder)

	// 4. 原始文件存储
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("初始化文件存储失败: %w", err)
	}
	log.Infof("文件存储后端: %s", store.Backend())

	// 5. 事件总线
	a.bus, err = events.New(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("初始化事件总线失败: %w", err)
	}
	a.closers = append(a.closers, a.bus.Close)

	// 6. 文件处理管道与任务投递
	processor := pipeline.NewProcessor(store, chunker.New(tika.NewClient(cfg.Tika)), a.adapter, a.docRepo, a.bus)
	taskDispatcher, err := a.newTaskDispatcher(processor)
	if err != nil {
		return nil, err
	}

	// 7. Service 与 MCP 工具
	categories := cfg.Knowledge.CategoryList()
	a.ingest = service.NewIngestService(store, a.docRepo, taskDispatcher, cfg.Knowledge.Domain)
	a.query = service.NewQueryService(a.adapter, a.docRepo, categories)
	a.documents = service.NewDocumentService(a.docRepo)

	a.dispatcher = mcpserver.NewDispatcher(cfg.Knowledge.Domain, cfg.Knowledge.Version)
	if err := a.dispatcher.Register(mcpserver.KnowledgeTools(cfg.Knowledge.Domain, a.query, a.documents)...); err != nil {
		return nil, err
	}
	if err := protocols.Register(a.dispatcher, a.query, categories); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) newIndex(ctx context.Context) (vectorstore.Index, error) {
	dims := a.cfg.Embedding.Dimensions
	switch a.cfg.VectorStore.Backend {
	case "elasticsearch":
		idx, err := es.InitES(a.cfg.VectorStore.Elasticsearch, dims)
		if err != nil {
			return nil, fmt.Errorf("es 初始化失败: %w", err)
		}
		return idx, nil
	case "qdrant":
		store, err := qdrant.New(ctx, a.cfg.VectorStore.Qdrant, dims)
		if err != nil {
			return nil, fmt.Errorf("qdrant 初始化失败: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "memory", "":
		log.Warnf("使用内存向量索引，重启后索引内容丢失")
		return memory.New(a.cfg.Knowledge.Domain + "_knowledge"), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", a.cfg.VectorStore.Backend)
	}
}

func (a *app) newTaskDispatcher(processor *pipeline.Processor) (pipeline.Dispatcher, error) {
	switch a.cfg.Ingest.Dispatcher {
	case "kafka":
		producer := kafka.NewProducer(a.cfg.Kafka)
		a.closers = append(a.closers, producer.Close)

		// 后台 Kafka 消费者，close 时停止
		consumerCtx, cancel := context.WithCancel(context.Background())
		a.stopConsumer = cancel
		a.consumerDone = make(chan struct{})
		go func() {
			defer close(a.consumerDone)
			kafka.StartConsumer(consumerCtx, a.cfg.Kafka, processor)
		}()
		return producer, nil
	case "pool", "":
		a.pool = workerpool.New(a.cfg.Ingest.Workers, a.cfg.Ingest.QueueSize)
		return pipeline.NewPoolDispatcher(a.pool, processor), nil
	default:
		return nil, fmt.Errorf("unknown ingest dispatcher %q", a.cfg.Ingest.Dispatcher)
	}
}

// close 等待排队中的文档处理完成，再按逆序释放资源。
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		if err := a.pool.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("停止处理队列: %w", err))
		}
	}
	if a.stopConsumer != nil {
		a.stopConsumer()
		select {
		case <-a.consumerDone:
		case <-ctx.Done():
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bwmarrin/snowflake"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"askhc/src/config"
	"askhc/src/core/chat"
	"askhc/src/core/document"
	"askhc/src/core/rag"
	"askhc/src/core/system"
	"askhc/src/fsutil"
	"askhc/src/infrastructure/integrations/ollama"
	"askhc/src/infrastructure/integrations/openai"
	"askhc/src/infrastructure/job"
	"askhc/src/infrastructure/log"
	"askhc/src/storage/chromem"
	"askhc/src/storage/elastic"
	"askhc/src/storage/minioctrl"
	"askhc/src/storage/valkey"
	"askhc/src/storage/weaviate"
)

const healthTimeout = 5 * time.Second

// app holds the components shared by the commands
type app struct {
	cfg      *config.Config
	files    fsutil.FileStore
	store    rag.VectorStore
	embedder rag.Embedder
	llm      rag.LLMProvider
	chain    *rag.Chain
	docs     *document.Service
	chat     *chat.Service
	health   *system.HealthService

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error(err, "failed to close component")
		}
	}
}

// buildApp wires the storage, providers and services from cfg
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	files, err := newFileStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.files = files

	store, storeCheck, err := newVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store

	embedder, llm, err := newProviders(cfg)
	if err != nil {
		return nil, err
	}
	a.embedder = embedder
	a.llm = llm

	a.chain = rag.NewChain(embedder, store, llm, cfg.Retriever.K, cfg.Chat.HistoryWindow)
	a.docs = document.NewService(files, store, embedder,
		document.NewSplitter(cfg.Chunk.Size, cfg.Chunk.Overlap), cfg.Embedding.BatchSize)

	a.health = system.NewHealthService(cfg.App.Name, cfg.App.Version, healthTimeout)
	a.health.AddCheck("vectorstore", storeCheck)
	a.health.AddCheck("llm", llm.Ping)
	a.health.AddCheck("filestore", func(ctx context.Context) error {
		_, err := files.List(ctx)
		return err
	})

	history, err := a.newHistoryStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.chat = chat.NewService(a.chain, a.docs, history)

	log.Info("components ready",
		"storage", cfg.Storage.Driver,
		"vectorstore", cfg.VectorStore.Driver,
		"provider", cfg.LLM.Provider,
		"history", cfg.Chat.HistoryStore,
	)
	return a, nil
}

// newHistoryStore returns the chat history backend. The valkey store also
// registers a health check.
func (a *app) newHistoryStore() (chat.HistoryStore, error) {
	if a.cfg.Chat.HistoryStore != config.HistoryStoreValkey {
		return chat.NewHistory(), nil
	}

	client, err := valkey.NewClient(a.cfg.Valkey.Address, a.cfg.Valkey.Password, a.cfg.Valkey.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})

	store := valkey.NewHistoryStore(client, a.cfg.Chat.HistoryTTL)
	a.health.AddCheck("history", store.Ping)
	return store, nil
}

func newFileStore(ctx context.Context, cfg *config.Config) (fsutil.FileStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageMinio:
		minioService, err := minioctrl.NewMinioService(
			cfg.Minio.Endpoint,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio service: %w", err)
		}
		return fsutil.NewMinioFileStore(ctx, minioService, cfg.Minio.DocumentsBucket)
	default:
		return fsutil.NewLocalFileStore(cfg.Data.DocumentsDir)
	}
}

// newVectorStore returns the store and a reachability check for /health
func newVectorStore(cfg *config.Config) (rag.VectorStore, system.Check, error) {
	switch cfg.VectorStore.Driver {
	case config.VectorStoreWeaviate:
		u, err := url.Parse(cfg.Weaviate.URL)
		if err != nil || u.Host == "" {
			return nil, nil, fmt.Errorf("invalid weaviate url %q", cfg.Weaviate.URL)
		}
		wc, err := weaviateClient.NewClient(weaviateClient.Config{
			Host:   u.Host,
			Scheme: u.Scheme,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create weaviate client: %w", err)
		}
		sdk := weaviate.NewSDK(wc, cfg.VectorStore.Collection)
		return sdk, sdk.Ping, nil

	case config.VectorStoreElasticsearch:
		es, err := elastic.NewClient(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password, nil)
		if err != nil {
			return nil, nil, err
		}
		store := elastic.NewStore(es, cfg.VectorStore.Collection)
		return store, store.Ping, nil

	default:
		dir := cfg.VectorStore.ChromemDir
		if cfg.VectorStore.InMemory {
			dir = ""
		}
		store, err := chromem.NewStore(dir, cfg.VectorStore.Collection)
		if err != nil {
			return nil, nil, err
		}
		return store, func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		}, nil
	}
}

// newProviders returns the embedder and the language model of the
// configured provider
func newProviders(cfg *config.Config) (rag.Embedder, rag.LLMProvider, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOllama:
		oc, err := ollama.NewClient(
			cfg.Ollama.URL,
			&http.Client{Timeout: cfg.LLM.Timeout},
			cfg.Ollama.Model,
			cfg.Ollama.EmbeddingModel,
			cfg.LLM.MaxTokens,
			cfg.LLM.Temperature,
		)
		if err != nil {
			return nil, nil, err
		}
		return oc, oc, nil

	default:
		if cfg.OpenAI.APIKey == "" {
			return nil, nil, errors.New("NEBIUS_API_KEY (or OPENAI_API_KEY) is not set")
		}
		oc, err := openai.NewClient(openai.ClientConfig{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			ChatModel:      cfg.LLM.Model,
			EmbeddingModel: cfg.Embedding.Model,
			MaxTokens:      cfg.LLM.MaxTokens,
			Temperature:    cfg.LLM.Temperature,
			BatchSize:      cfg.Embedding.BatchSize,
			MaxRetries:     cfg.LLM.MaxRetries,
			RetryDelay:     cfg.LLM.RetryDelay,
			Timeout:        cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return oc, oc, nil
	}
}

// jobQueue is the publisher/subscriber pair of the configured broker
type jobQueue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	// in-process pub/sub: publisher and subscriber are the same value
	shared bool
}

func (q *jobQueue) Close() error {
	err := q.publisher.Close()
	if q.subscriber != nil && !q.shared {
		err = errors.Join(err, q.subscriber.Close())
	}
	return err
}

// newJobQueue connects the broker. withSubscriber is false for commands that
// only publish.
func newJobQueue(cfg *config.Config, logger watermill.LoggerAdapter, withSubscriber bool) (*jobQueue, error) {
	if cfg.Jobs.Broker == config.BrokerAMQP {
		publisher, err := job.NewAMQPPublisher(cfg.AMQP.URL, logger)
		if err != nil {
			return nil, err
		}
		q := &jobQueue{publisher: publisher}
		if withSubscriber {
			subscriber, err := job.NewAMQPSubscriber(cfg.AMQP.URL, logger)
			if err != nil {
				publisher.Close()
				return nil, err
			}
			q.subscriber = subscriber
		}
		return q, nil
	}

	pubSub := job.NewGoChannel(logger)
	return &jobQueue{publisher: pubSub, subscriber: pubSub, shared: true}, nil
}

// newJobRepository opens the job store. The returned function releases it.
func newJobRepository(ctx context.Context, cfg *config.Config) (job.JobRepository, func() error, error) {
	if cfg.Jobs.Store != config.JobStorePostgres {
		return job.NewMemoryJobRepository(), func() error { return nil }, nil
	}

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN()), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	repo := job.NewPostgresJobRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return repo, sqlDB.Close, nil
}

// newJobService builds the job service with the document tasks registered
func newJobService(ctx context.Context, a *app, publisher message.Publisher, logger watermill.LoggerAdapter) (*job.JobService, error) {
	repo, closeRepo, err := newJobRepository(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	node, err := snowflake.NewNode(a.cfg.Jobs.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	svc := job.NewJobService(publisher, repo, logger, node)
	job.RegisterDocumentTasks(svc, a.docs)
	return svc, nil
}

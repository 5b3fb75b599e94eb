package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdfrag/src/core/knowledgebase"
	"pdfrag/src/core/rag"
	"pdfrag/src/fsutil"
	"pdfrag/src/infrastructure/integrations/anthropic"
	"pdfrag/src/infrastructure/integrations/ollama"
	"pdfrag/src/infrastructure/integrations/openai"
	"pdfrag/src/infrastructure/integrations/pdf"
	"pdfrag/src/infrastructure/integrations/unstructured"
	"pdfrag/src/log"
	"pdfrag/src/storage/memory"
	"pdfrag/src/storage/minioctrl"
	"pdfrag/src/storage/postgres/chatctrl"
	"pdfrag/src/storage/postgres/documentctrl"
	"pdfrag/src/storage/weaviate"
)

// app holds the collaborators shared by the commands.
type app struct {
	db       *gorm.DB
	pipeline *rag.Pipeline
	docs     *knowledgebase.DocumentService
	chat     *knowledgebase.ChatService
	system   *knowledgebase.SystemService
	blobs    knowledgebase.BlobStore
	ids      *snowflake.Node
}

func (a *app) Close() {
	if a.db == nil {
		return
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}
}

func pipelineConfig() rag.Config {
	cfg := rag.DefaultConfig()
	cfg.ChunkSize = viper.GetInt("rag.chunk_size")
	cfg.ChunkOverlap = viper.GetInt("rag.chunk_overlap")
	cfg.BatchSize = viper.GetInt("rag.batch_size")
	cfg.TopK = viper.GetInt("rag.top_k")
	cfg.RelevanceThreshold = viper.GetFloat64("rag.relevance_threshold")
	cfg.SearchTimeout = viper.GetDuration("rag.search_timeout")
	cfg.GenerationTimeout = viper.GetDuration("rag.generation_timeout")
	cfg.UpsertRate = viper.GetFloat64("rag.upsert_rate")
	cfg.SystemPrompt = viper.GetString("rag.system_prompt")
	return cfg
}

func newOllamaClient() (*ollama.Client, error) {
	model := ""
	if viper.GetString("generation.provider") == "ollama" {
		model = viper.GetString("generation.model")
	}
	return ollama.NewClient(viper.GetString("ollama.url"), &http.Client{},
		ollama.WithEmbeddingModel(viper.GetString("rag.embedding_model")),
		ollama.WithChatModel(model),
		ollama.WithTemperature(viper.GetFloat64("generation.temperature")),
		ollama.WithMaxTokens(viper.GetInt("generation.max_tokens")),
	)
}

func newVectorStore(oc *ollama.Client) (rag.VectorStore, knowledgebase.Pinger, error) {
	switch backend := viper.GetString("vector.backend"); backend {
	case "memory":
		store := memory.NewStore(memory.NewHashEmbedder(256))
		return store, store, nil
	case "weaviate":
		wc, err := weaviateClient.NewClient(weaviateClient.Config{
			Host:   viper.GetString("weaviate.url"),
			Scheme: viper.GetString("weaviate.scheme"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Weaviate client: %w", err)
		}
		var opts []weaviate.Option
		if alpha := viper.GetFloat64("weaviate.hybrid_alpha"); alpha > 0 {
			hybrid := weaviate.DefaultHybridConfig()
			hybrid.Alpha = float32(alpha)
			opts = append(opts, weaviate.WithHybrid(hybrid))
		}
		store := weaviate.NewStore(wc, oc, opts...)
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", backend)
	}
}

func newGenerator(oc *ollama.Client) (rag.Generator, knowledgebase.Pinger, error) {
	switch provider := viper.GetString("generation.provider"); provider {
	case "ollama":
		return oc, oc, nil
	case "openai":
		g, err := openai.NewGenerator(openai.Config{
			APIKey:      viper.GetString("openai.api_key"),
			BaseURL:     viper.GetString("openai.base_url"),
			Model:       viper.GetString("generation.model"),
			Temperature: viper.GetFloat64("generation.temperature"),
			MaxTokens:   viper.GetInt("generation.max_tokens"),
		})
		if err != nil {
			return nil, nil, err
		}
		return g, nil, nil
	case "anthropic":
		g, err := anthropic.NewGenerator(anthropic.Config{
			APIKey:      viper.GetString("anthropic.api_key"),
			Model:       viper.GetString("generation.model"),
			Temperature: viper.GetFloat64("generation.temperature"),
			MaxTokens:   viper.GetInt("generation.max_tokens"),
		})
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	default:
		return nil, nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}

func newDocumentSource() (knowledgebase.DocumentSource, knowledgebase.Pinger, error) {
	switch backend := viper.GetString("extractor.backend"); backend {
	case "pdf":
		return pdf.NewExtractor(), nil, nil
	case "unstructured":
		s := unstructured.NewUnstructuredService(viper.GetString("unstructured.url"), &http.Client{
			Timeout: 5 * time.Minute,
		})
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor backend %q", backend)
	}
}

func newBlobStore(ctx context.Context) (knowledgebase.BlobStore, knowledgebase.Pinger, error) {
	switch backend := viper.GetString("storage.backend"); backend {
	case "local":
		fs, err := fsutil.NewLocalFileStore(viper.GetString("storage.local_root"))
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	case "minio":
		ms, err := minioctrl.NewMinioService(minioctrl.Config{
			Endpoint:        viper.GetString("minio.endpoint"),
			AccessKeyID:     viper.GetString("minio.access_key"),
			SecretAccessKey: viper.GetString("minio.secret_key"),
			UseSSL:          viper.GetBool("minio.use_ssl"),
			Bucket:          viper.GetString("minio.bucket"),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := ms.EnsureBucketExists(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
		return ms, ms, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func openDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
		viper.GetString("postgres.sslmode"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// buildApp wires every collaborator from configuration.
func buildApp(ctx context.Context) (*app, error) {
	ids, err := snowflake.NewNode(viper.GetInt64("node.id"))
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	oc, err := newOllamaClient()
	if err != nil {
		return nil, err
	}
	store, storePinger, err := newVectorStore(oc)
	if err != nil {
		return nil, err
	}
	generator, generatorPinger, err := newGenerator(oc)
	if err != nil {
		return nil, err
	}
	source, sourcePinger, err := newDocumentSource()
	if err != nil {
		return nil, err
	}
	blobs, blobPinger, err := newBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	pipeline, err := rag.NewPipeline(store, generator, pipelineConfig())
	if err != nil {
		return nil, err
	}

	components := map[string]knowledgebase.Pinger{
		"vector_store": storePinger,
		"storage":      blobPinger,
	}
	if generatorPinger != nil {
		components["generator"] = generatorPinger
	}
	if sourcePinger != nil {
		components["extractor"] = sourcePinger
	}
	if viper.GetString("vector.backend") == "weaviate" && viper.GetString("generation.provider") != "ollama" {
		components["embedder"] = oc
	}

	docOpts := []knowledgebase.DocumentOption{knowledgebase.WithBlobStore(blobs)}
	var chatOpts []knowledgebase.ChatOption

	a := &app{pipeline: pipeline, blobs: blobs, ids: ids}
	if viper.GetBool("postgres.enabled") {
		db, err := openDatabase()
		if err != nil {
			return nil, err
		}
		a.db = db

		documents := documentctrl.NewRepository(db)
		chats := chatctrl.NewRepository(db)
		for _, m := range []migrator{documents, chats} {
			if err := m.Migrate(ctx); err != nil {
				a.Close()
				return nil, err
			}
		}
		components["database"] = documents
		docOpts = append(docOpts, knowledgebase.WithCatalog(documents))
		chatOpts = append(chatOpts, knowledgebase.WithHistory(chats))
	}

	a.docs = knowledgebase.NewDocumentService(pipeline, source, ids, docOpts...)
	a.chat = knowledgebase.NewChatService(pipeline, ids, chatOpts...)
	a.system = knowledgebase.NewSystemService(components, 5*time.Second)
	return a, nil
}

var errNoDatabase = errors.New("this command needs postgres.enabled=true")

package cmd

import (
	"strings"

	"github.com/spf13/viper"
)

func settingDefaultConfig() {
	// Enable automatic environment variable binding, rag.chunk_size reads RAG_CHUNK_SIZE
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Server and logging
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", "5s")
	viper.SetDefault("server.max_upload_size", 32<<20)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	// Pipeline
	viper.SetDefault("rag.chunk_size", 800)
	viper.SetDefault("rag.chunk_overlap", 50)
	viper.SetDefault("rag.batch_size", 96)
	viper.SetDefault("rag.top_k", 4)
	viper.SetDefault("rag.relevance_threshold", 0.2)
	viper.SetDefault("rag.embedding_model", "nomic-embed-text")
	viper.SetDefault("rag.search_timeout", "10s")
	viper.SetDefault("rag.generation_timeout", "2m")
	viper.SetDefault("rag.upsert_rate", 0)
	viper.SetDefault("rag.system_prompt", "You are a helpful assistant.")

	// Vector store
	viper.BindEnv("weaviate.url", "WEAVIATE_URL")
	viper.SetDefault("vector.backend", "weaviate")
	viper.SetDefault("weaviate.url", "localhost:8080")
	viper.SetDefault("weaviate.scheme", "http")
	viper.SetDefault("weaviate.hybrid_alpha", 0)

	// Generation
	viper.BindEnv("ollama.url", "OLLAMA_URL")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	viper.SetDefault("generation.provider", "ollama")
	viper.SetDefault("generation.model", "")
	viper.SetDefault("generation.temperature", 0.5)
	viper.SetDefault("generation.max_tokens", 1024)
	viper.SetDefault("ollama.url", "http://localhost:11434")

	// Map environment variables to Viper keys for PostgreSQL
	viper.BindEnv("postgres.host", "POSTGRES_HOST")
	viper.BindEnv("postgres.port", "POSTGRES_PORT")
	viper.BindEnv("postgres.user", "POSTGRES_USER")
	viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	viper.BindEnv("postgres.db", "POSTGRES_DB")
	viper.SetDefault("postgres.enabled", true)
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "postgres")
	viper.SetDefault("postgres.password", "postgres")
	viper.SetDefault("postgres.db", "pdfrag")
	viper.SetDefault("postgres.sslmode", "disable")

	// Artifact storage
	viper.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("minio.bucket", "MINIO_BUCKET")
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.local_root", "./data/documents")
	viper.SetDefault("minio.endpoint", "localhost:9000")
	viper.SetDefault("minio.access_key", "minioadmin")
	viper.SetDefault("minio.secret_key", "minioadmin")
	viper.SetDefault("minio.use_ssl", false)
	viper.SetDefault("minio.bucket", "documents")

	// Text extraction
	viper.BindEnv("unstructured.url", "UNSTRUCTURED_API_URL")
	viper.SetDefault("extractor.backend", "pdf")
	viper.SetDefault("unstructured.url", "http://localhost:8000")

	// Map environment variables to Viper keys for RabbitMQ
	viper.BindEnv("amqp.url", "AMQP_URL")
	viper.SetDefault("amqp.url", "")
	viper.SetDefault("jobs.max_retries", 3)

	viper.SetDefault("node.id", 1)
}

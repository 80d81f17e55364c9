package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"document-chat/internal/chunker"
	"document-chat/internal/models"
)

const (
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
	ProviderNone   = "none"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"
)

type Config struct {
	VectorStore  VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval    RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Citation     CitationConfig    `yaml:"citation" toml:"citation"`
	Generation   GenerationConfig  `yaml:"generation" toml:"generation"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm" toml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm" toml:"inference_llm"`
	Database     DatabaseConfig    `yaml:"database" toml:"database"`
	Log          LogConfig         `yaml:"log" toml:"log"`
}

type VectorStoreConfig struct {
	Backend          string `yaml:"backend" toml:"backend" validate:"oneof=chromem pgvector"`
	PersistDirectory string `yaml:"persist_directory" toml:"persist_directory"`
	CollectionName   string `yaml:"collection_name" toml:"collection_name" validate:"required"`
	InMemory         bool   `yaml:"in_memory" toml:"in_memory"`
	Compress         bool   `yaml:"compress" toml:"compress"`
	EncryptionKey    string `yaml:"encryption_key" toml:"encryption_key" validate:"omitempty,len=32"`
	ChunkSize        int    `yaml:"chunk_size" toml:"chunk_size" validate:"gt=0"`
	ChunkOverlap     int    `yaml:"chunk_overlap" toml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	MinChunkChars    int    `yaml:"min_chunk_chars" toml:"min_chunk_chars" validate:"gte=0"`
	BatchSize        int    `yaml:"batch_size" toml:"batch_size" validate:"gt=0"`
}

type RetrievalConfig struct {
	K                   int     `yaml:"k" toml:"k" validate:"gt=0"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" toml:"confidence_threshold" validate:"gte=0,lte=1"`
	MaxContextResults   int     `yaml:"max_context_results" toml:"max_context_results" validate:"gt=0"`
	SummaryResults      int     `yaml:"summary_results" toml:"summary_results" validate:"gte=0"`
}

type CitationConfig struct {
	IncludePageNumbers bool `yaml:"include_page_numbers" toml:"include_page_numbers"`
	MaxCitations       int  `yaml:"max_citations" toml:"max_citations" validate:"gt=0"`
}

type GenerationConfig struct {
	MaxWords    int     `yaml:"max_words" toml:"max_words" validate:"gt=0"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens" validate:"gt=0"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
}

type LLMConfig struct {
	Provider   string `yaml:"provider" toml:"provider" validate:"oneof=ollama openai hash none"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	Key        string `yaml:"key" toml:"key"`
	Model      string `yaml:"model" toml:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" validate:"gte=0"`
}

type DatabaseConfig struct {
	DSN    string `yaml:"dsn" toml:"dsn"`
	Driver string `yaml:"driver" toml:"driver" validate:"oneof=pgdriver pq"`
	Debug  bool   `yaml:"debug" toml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty" toml:"pretty"`
}

// SupportedExtensions lists the file types ingested from a folder
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".docx", ".pptx", ".xlsx"}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		VectorStore: VectorStoreConfig{
			Backend:          BackendChromem,
			PersistDirectory: "./chroma_db",
			CollectionName:   "documents",
			ChunkSize:        chunker.DefaultChunkSize,
			ChunkOverlap:     chunker.DefaultChunkOverlap,
			MinChunkChars:    chunker.DefaultMinChunkChars,
			BatchSize:        32,
		},
		Retrieval: RetrievalConfig{
			K:                   5,
			ConfidenceThreshold: 0.4,
			MaxContextResults:   5,
			SummaryResults:      3,
		},
		Citation: CitationConfig{
			IncludePageNumbers: true,
			MaxCitations:       3,
		},
		Generation: GenerationConfig{
			MaxWords:    500,
			MaxTokens:   500,
			Temperature: 0.1,
		},
		EmbedLLM: LLMConfig{
			Provider:   ProviderHash,
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 512,
		},
		InferenceLLM: LLMConfig{
			Provider: ProviderNone,
			BaseURL:  "http://localhost:11434",
			Model:    "llama3.2",
		},
		Database: DatabaseConfig{
			Driver: DriverPgdriver,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// LoadConfig decodes the file at path over the defaults and validates the result.
// An empty path returns the validated defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			err = toml.Unmarshal(data, cfg)
		case ".yaml", ".yml", "":
			err = yaml.Unmarshal(data, cfg)
		default:
			return nil, fmt.Errorf("%w: unknown config format %q", models.ErrInvalidConfig, ext)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.EmbedLLM.Provider == ProviderOpenAI && c.EmbedLLM.Key == "" {
			c.EmbedLLM.Key = key
		}
		if c.InferenceLLM.Provider == ProviderOpenAI && c.InferenceLLM.Key == "" {
			c.InferenceLLM.Key = key
		}
	}
	if dsn := os.Getenv("RAG_DATABASE_DSN"); dsn != "" && c.Database.DSN == "" {
		c.Database.DSN = dsn
	}
}

const redactedValue = "xxxxx"

// Redacted returns a copy that is safe to log: API keys and the store
// encryption key are masked and the DSN password is hidden.
func (c Config) Redacted() Config {
	c.EmbedLLM.Key = redact(c.EmbedLLM.Key)
	c.InferenceLLM.Key = redact(c.InferenceLLM.Key)
	c.VectorStore.EncryptionKey = redact(c.VectorStore.EncryptionKey)
	c.Database.DSN = redactDSN(c.Database.DSN)
	return c
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redactedValue
}

// redactDSN handles both URL DSNs and the key=value form accepted by lib/pq
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=" + redactedValue
		}
	}
	return strings.Join(fields, " ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the rules that span several sections
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				value := fe.Value()
				if fe.StructField() == "EncryptionKey" {
					value = redactedValue
				}
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), value))
			}
			return fmt.Errorf("%w: %s", models.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	if c.EmbedLLM.Provider == ProviderNone {
		return fmt.Errorf("%w: an embedding provider is required", models.ErrInvalidConfig)
	}
	if c.EmbedLLM.Provider == ProviderHash && c.EmbedLLM.Dimensions <= 0 {
		return fmt.Errorf("%w: hash embedder needs dimensions > 0", models.ErrInvalidConfig)
	}
	if c.InferenceLLM.Provider == ProviderHash {
		return fmt.Errorf("%w: hash is not a generative provider", models.ErrInvalidConfig)
	}
	if c.VectorStore.Backend == BackendChromem && !c.VectorStore.InMemory && c.VectorStore.PersistDirectory == "" {
		return fmt.Errorf("%w: persist_directory is required for a persistent chromem store", models.ErrInvalidConfig)
	}
	if c.VectorStore.Backend == BackendPgvector && c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required for the pgvector backend", models.ErrInvalidConfig)
	}
	return nil
}

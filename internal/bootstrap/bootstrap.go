package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/mkovalev/crypto-investigator/internal/config"
	"github.com/mkovalev/crypto-investigator/internal/core/domain"
	"github.com/mkovalev/crypto-investigator/internal/core/ports"
	"github.com/mkovalev/crypto-investigator/internal/core/usecase"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/chunking"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/extractor/plaintext"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/llm/openai"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/queue/nats"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/repository/postgres"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/resilience"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/storage/localfs"
	miniostore "github.com/mkovalev/crypto-investigator/internal/infrastructure/storage/minio"
	"github.com/mkovalev/crypto-investigator/internal/infrastructure/vector/qdrant"
)

// App wires the adapters into the pipeline use cases. Both binaries share
// this assembly; the api uses the investigation side, the worker the
// processing side.
type App struct {
	Config config.Config

	Queue         ports.MessageQueue
	Repo          ports.DocumentRepository
	Reports       ports.ReportStore
	IngestUC      ports.DocumentIngestor
	ProcessUC     ports.DocumentProcessor
	InvestigateUC ports.Investigator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	reports, err := miniostore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioRegion, cfg.MinioUseSSL)
	if err != nil {
		return nil, fmt.Errorf("init report store: %w", err)
	}

	llmClient := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, executor)
	embedder := openai.NewEmbedder(llmClient)
	chat := openai.NewChatModel(llmClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	extractor := plaintext.NewExtractor(storage)

	guard := usecase.NewGuardUseCase(chat, cfg.GuardFilterEnabled, cfg.GuardKeywords)
	retriever := usecase.NewRetrieveUseCase(
		embedder,
		vectorDB,
		chat,
		cfg.RetrievalTopK,
		domain.RetrievalStrategy(cfg.RetrievalStrategy),
		time.Duration(cfg.ExpansionTimeoutSeconds)*time.Second,
	)
	reranker := usecase.NewRerankUseCase(chat, cfg.RerankWorkers, usecase.FusionParams{
		VectorWeight:    cfg.FusionVectorWeight,
		LLMWeight:       cfg.FusionLLMWeight,
		HighThreshold:   cfg.ConfidenceHighThreshold,
		MediumThreshold: cfg.ConfidenceMediumThreshold,
	})
	synthesizer := usecase.NewSynthesizeUseCase(chat, cfg.ReportTemperature, cfg.ReportMaxTokens)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, extractor, chunker, embedder, vectorDB, cfg.EmbedBatchSize)
	investigateUC := usecase.NewInvestigateUseCase(guard, retriever, reranker, synthesizer)

	return &App{
		Config: cfg,

		Queue:   queue,
		Repo:    repo,
		Reports: reports,

		IngestUC:      ingestUC,
		ProcessUC:     processUC,
		InvestigateUC: investigateUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/config"
	"github.com/lumina-data/lumina-engine/pkg/crypto"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
	"github.com/lumina-data/lumina-engine/pkg/logging"
	"github.com/lumina-data/lumina-engine/pkg/models"
	"github.com/lumina-data/lumina-engine/pkg/repositories"
	"github.com/lumina-data/lumina-engine/pkg/vector"
)

// Progress checkpoints for an analysis run. Extraction dominates wall time,
// so it gets the bulk of the bar.
const (
	progressExtractionEnd = 60.0
	progressClassifyEnd   = 90.0
	progressVectorEnd     = 95.0
)

// ExtractorFactory opens a metadata extractor against a target database.
type ExtractorFactory func(ctx context.Context, params *datasource.ConnParams) (datasource.Extractor, error)

// VectorIndex is the slice of the vector manager the analysis pipeline uses.
type VectorIndex interface {
	ReplaceConnection(ctx context.Context, connectionID uuid.UUID, docs []vector.Document) error
	DeleteConnection(ctx context.Context, connectionID uuid.UUID) error
	Search(ctx context.Context, queryText string, connectionID uuid.UUID, limit int) ([]vector.TableMatch, error)
}

// AnalysisService drives the connection lifecycle: claiming runs, profiling
// the target database, deciding indexing strategies, building documents, and
// publishing them to the vector index and the engine database.
type AnalysisService interface {
	// StartAnalysis claims a run for the connection and executes it
	// asynchronously. Returns apperrors.ErrRunActive when a run is already
	// in flight.
	StartAnalysis(ctx context.Context, connectionID uuid.UUID) error
	GetStatus(ctx context.Context, connectionID uuid.UUID) (*models.Connection, error)
	ListInsights(ctx context.Context, connectionID uuid.UUID) ([]*models.TableInsight, error)
	GetIndexingReport(ctx context.Context, connectionID uuid.UUID) (*models.IndexingReport, error)
	SearchRelevantTables(ctx context.Context, connectionID uuid.UUID, query string) ([]vector.TableMatch, error)
	// TestConnection verifies the stored credentials reach the target database.
	TestConnection(ctx context.Context, connectionID uuid.UUID) error
	// DeleteConnection removes the connection's vector documents and all
	// persisted rows (insights, sessions, and history cascade).
	DeleteConnection(ctx context.Context, connectionID uuid.UUID) error
}

type analysisService struct {
	config       config.AnalysisConfig
	connRepo     repositories.ConnectionRepository
	insightRepo  repositories.InsightRepository
	decider      StrategyDecider
	vectorIndex  VectorIndex
	encryptor    *crypto.CredentialEncryptor
	newExtractor ExtractorFactory
	logger       *zap.Logger
}

// NewAnalysisService creates an analysis service.
func NewAnalysisService(
	cfg config.AnalysisConfig,
	connRepo repositories.ConnectionRepository,
	insightRepo repositories.InsightRepository,
	decider StrategyDecider,
	vectorIndex VectorIndex,
	encryptor *crypto.CredentialEncryptor,
	newExtractor ExtractorFactory,
	logger *zap.Logger,
) AnalysisService {
	return &analysisService{
		config:       cfg,
		connRepo:     connRepo,
		insightRepo:  insightRepo,
		decider:      decider,
		vectorIndex:  vectorIndex,
		encryptor:    encryptor,
		newExtractor: newExtractor,
		logger:       logger.Named("analysis"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

func (s *analysisService) StartAnalysis(ctx context.Context, connectionID uuid.UUID) error {
	conn, err := s.connRepo.Get(ctx, connectionID)
	if err != nil {
		return err
	}

	// The run timeout doubles as the staleness window: a run older than it
	// cannot still be in flight, so its claim belongs to a dead process.
	runTimeout := time.Duration(s.config.RunTimeoutMinutes) * time.Minute
	claimed, err := s.connRepo.ClaimRun(ctx, connectionID, runTimeout)
	if err != nil {
		return err
	}

	s.logger.Info("Analysis run claimed",
		zap.String("connection_id", connectionID.String()),
		zap.String("status", string(claimed)))

	// The run outlives the caller's request context.
	runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)

	go func() {
		defer cancel()
		if err := s.runAnalysis(runCtx, conn, claimed); err != nil {
			cause := logging.SanitizeError(err)
			s.logger.Error("Analysis run failed",
				zap.String("connection_id", connectionID.String()),
				zap.String("cause", cause))
			if markErr := s.connRepo.MarkError(context.Background(), connectionID, cause); markErr != nil {
				s.logger.Error("Failed to record run failure", zap.Error(markErr))
			}
			return
		}
		s.logger.Info("Analysis run complete", zap.String("connection_id", connectionID.String()))
	}()

	return nil
}

// runAnalysis executes one claimed run end to end. Insights from a previous
// successful run stay committed until the final transactional swap, so a
// failure anywhere here leaves them readable.
func (s *analysisService) runAnalysis(ctx context.Context, conn *models.Connection, claimed models.ConnectionStatus) error {
	params, err := s.connParams(conn)
	if err != nil {
		return err
	}

	extractor, err := s.newExtractor(ctx, params)
	if err != nil {
		return err
	}
	defer extractor.Close()

	// Extraction: 0 → 60.
	extractStatus := s.runStatus(claimed, models.ConnectionStatusAnalyzing)
	metadata, err := extractor.ExtractMetadata(ctx, func(fraction float64, message string) {
		progress := fraction * progressExtractionEnd
		if err := s.connRepo.UpdateProgress(ctx, conn.ID, extractStatus, progress, message); err != nil {
			s.logger.Warn("Failed to update progress", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	// Classification and document building: 60 → 90.
	classifyStatus := s.runStatus(claimed, models.ConnectionStatusIndexing)
	insights := make([]*models.TableInsight, 0, len(metadata.Tables))
	docs := make([]vector.Document, 0, len(metadata.Tables))
	for i := range metadata.Tables {
		table := &metadata.Tables[i]
		insight := s.buildInsight(ctx, conn.ID, table)
		insights = append(insights, insight)
		docs = append(docs, vector.Document{
			SchemaName: insight.SchemaName,
			TableName:  insight.TableName,
			Document:   insight.Document,
			Summary:    insight.Summary,
			RowCount:   insight.RowCount,
		})

		progress := progressExtractionEnd + (progressClassifyEnd-progressExtractionEnd)*float64(i+1)/float64(len(metadata.Tables))
		message := fmt.Sprintf("Classified %s.%s", table.SchemaName, table.TableName)
		if err := s.connRepo.UpdateProgress(ctx, conn.ID, classifyStatus, progress, message); err != nil {
			s.logger.Warn("Failed to update progress", zap.Error(err))
		}
	}

	// Vector index: 90 → 95.
	if err := s.vectorIndex.ReplaceConnection(ctx, conn.ID, docs); err != nil {
		return err
	}
	if err := s.connRepo.UpdateProgress(ctx, conn.ID, classifyStatus, progressVectorEnd, "Vector index updated"); err != nil {
		s.logger.Warn("Failed to update progress", zap.Error(err))
	}

	// Relational swap last: commit point of the run.
	if err := s.insightRepo.ReplaceForConnection(ctx, conn.ID, insights); err != nil {
		return err
	}

	return s.connRepo.MarkReady(ctx, conn.ID)
}

// buildInsight profiles one table: strategy decisions, column metadata, and
// the embeddable document.
func (s *analysisService) buildInsight(ctx context.Context, connectionID uuid.UUID, table *datasource.TableInfo) *models.TableInsight {
	decisions := s.decider.DecideTable(ctx, table)

	fkColumns := make(map[string]bool, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		fkColumns[fk.SourceColumn] = true
	}

	columns := make([]*models.ColumnMetadata, len(table.Columns))
	for i := range table.Columns {
		col := &table.Columns[i]
		meta := &models.ColumnMetadata{
			ColumnName:        col.ColumnName,
			DataType:          col.DataType,
			IsNullable:        col.IsNullable,
			IsPrimaryKey:      col.IsPrimaryKey,
			IsForeignKey:      col.IsForeignKey || fkColumns[col.ColumnName],
			DistinctCount:     col.DistinctCount,
			NullCount:         col.NullCount,
			Strategy:          decisions[i].Strategy,
			StrategyReasoning: decisions[i].Reasoning,
		}
		switch meta.Strategy {
		case models.StrategyCategorical:
			if len(col.DistinctValues) == 0 && col.DistinctCount > 0 {
				// Value collection can fail independently of profiling. A
				// categorical column without its value set cannot be
				// enumerated in the document, so it falls back to the
				// type-based strategy.
				if isTextualType(col.DataType) {
					meta.Strategy = models.StrategyVector
					meta.SampleValues = col.SampleValues
				} else {
					meta.Strategy = models.StrategySkip
				}
				meta.StrategyReasoning = "distinct values unavailable"
			} else {
				meta.CategoricalValues = col.DistinctValues
			}
		case models.StrategyVector:
			meta.SampleValues = col.SampleValues
		}
		meta.Summary = BuildColumnSummary(meta)
		columns[i] = meta
	}

	insight := &models.TableInsight{
		ConnectionID: connectionID,
		SchemaName:   table.SchemaName,
		TableName:    table.TableName,
		RowCount:     table.RowCount,
		Columns:      columns,
	}
	insight.Document = BuildDocument(table, columns)
	insight.Summary = BuildSummary(table, columns)
	return insight
}

// runStatus keeps a re-analysis run in 'updating' the whole way through;
// fresh runs move analyzing → indexing.
func (s *analysisService) runStatus(claimed, fresh models.ConnectionStatus) models.ConnectionStatus {
	if claimed == models.ConnectionStatusUpdating {
		return models.ConnectionStatusUpdating
	}
	return fresh
}

func (s *analysisService) GetStatus(ctx context.Context, connectionID uuid.UUID) (*models.Connection, error) {
	return s.connRepo.Get(ctx, connectionID)
}

func (s *analysisService) ListInsights(ctx context.Context, connectionID uuid.UUID) ([]*models.TableInsight, error) {
	if _, err := s.connRepo.Get(ctx, connectionID); err != nil {
		return nil, err
	}
	return s.insightRepo.ListByConnection(ctx, connectionID)
}

func (s *analysisService) GetIndexingReport(ctx context.Context, connectionID uuid.UUID) (*models.IndexingReport, error) {
	insights, err := s.ListInsights(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return BuildIndexingReport(connectionID, insights), nil
}

func (s *analysisService) SearchRelevantTables(ctx context.Context, connectionID uuid.UUID, query string) ([]vector.TableMatch, error) {
	conn, err := s.connRepo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != models.ConnectionStatusReady && conn.Status != models.ConnectionStatusUpdating {
		return nil, fmt.Errorf("%w: connection is %s", apperrors.ErrNotReady, conn.Status)
	}
	return s.vectorIndex.Search(ctx, query, connectionID, s.config.SearchLimit)
}

func (s *analysisService) DeleteConnection(ctx context.Context, connectionID uuid.UUID) error {
	if _, err := s.connRepo.Get(ctx, connectionID); err != nil {
		return err
	}
	if err := s.vectorIndex.DeleteConnection(ctx, connectionID); err != nil {
		s.logger.Warn("Failed to delete vector documents",
			zap.String("connection_id", connectionID.String()),
			zap.Error(err))
	}
	return s.connRepo.Delete(ctx, connectionID)
}

func (s *analysisService) TestConnection(ctx context.Context, connectionID uuid.UUID) error {
	conn, err := s.connRepo.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	params, err := s.connParams(conn)
	if err != nil {
		return err
	}

	extractor, err := s.newExtractor(ctx, params)
	if err != nil {
		return err
	}
	defer extractor.Close()

	return extractor.Ping(ctx)
}

func (s *analysisService) connParams(conn *models.Connection) (*datasource.ConnParams, error) {
	password, err := s.encryptor.Decrypt(conn.EncryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCredentialsKeyMismatch, err)
	}
	return &datasource.ConnParams{
		Host:     conn.Host,
		Port:     conn.Port,
		User:     conn.User,
		Password: password,
		Database: conn.Database,
		SSLMode:  conn.SSLMode,
	}, nil
}

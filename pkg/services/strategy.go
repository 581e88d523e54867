package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/datasource"
	"github.com/lumina-data/lumina-engine/pkg/llm"
	"github.com/lumina-data/lumina-engine/pkg/models"
	"github.com/lumina-data/lumina-engine/pkg/prompts"
)

// StrategyDecider decides how each column's values are indexed for semantic
// search. A deterministic rule layer is authoritative; an optional LLM
// advisory layer may refine individual decisions but can never fail the
// pipeline.
type StrategyDecider interface {
	// DecideTable returns one decision per column, in column order.
	DecideTable(ctx context.Context, table *datasource.TableInfo) []StrategyDecision
}

// StrategyDecision is the outcome for one column.
type StrategyDecision struct {
	ColumnName string
	Strategy   models.IndexingStrategy
	Reasoning  string
}

// StrategyDeciderConfig tunes the decision layers.
type StrategyDeciderConfig struct {
	CategoryThreshold int
	AdvisoryEnabled   bool
	Temperature       float64
}

type strategyDecider struct {
	config StrategyDeciderConfig
	llm    llm.LLMClient
	pool   *llm.WorkerPool
	logger *zap.Logger
}

// NewStrategyDecider creates a strategy decider. client and pool may be nil
// when the advisory layer is disabled.
func NewStrategyDecider(config StrategyDeciderConfig, client llm.LLMClient, pool *llm.WorkerPool, logger *zap.Logger) StrategyDecider {
	return &strategyDecider{
		config: config,
		llm:    client,
		pool:   pool,
		logger: logger.Named("strategy"),
	}
}

var _ StrategyDecider = (*strategyDecider)(nil)

// skipTypePrefixes are data types whose values carry no searchable meaning.
var skipTypePrefixes = []string{
	"timestamp", "date", "time", "interval",
	"boolean", "bytea", "bit",
	"json", "jsonb", "xml",
	"uuid", "inet", "cidr", "macaddr",
	"tsvector", "tsquery", "point", "line", "polygon", "box", "circle",
}

// textualTypePrefixes are data types whose values are worth embedding.
var textualTypePrefixes = []string{
	"text", "character varying", "varchar", "character", "char", "citext", "name",
}

func (d *strategyDecider) DecideTable(ctx context.Context, table *datasource.TableInfo) []StrategyDecision {
	decisions := make([]StrategyDecision, len(table.Columns))
	for i := range table.Columns {
		strategy, reasoning := ruleStrategy(&table.Columns[i], d.config.CategoryThreshold)
		decisions[i] = StrategyDecision{
			ColumnName: table.Columns[i].ColumnName,
			Strategy:   strategy,
			Reasoning:  reasoning,
		}
	}

	if !d.config.AdvisoryEnabled || d.llm == nil || d.pool == nil {
		return decisions
	}

	d.refineWithAdvisory(ctx, table, decisions)
	return decisions
}

// ruleStrategy is the deterministic layer. Order matters: key columns are
// never indexed regardless of type, and value-less types are excluded before
// cardinality is considered.
func ruleStrategy(col *datasource.ColumnInfo, threshold int) (models.IndexingStrategy, string) {
	if col.IsPrimaryKey {
		return models.StrategySkip, "primary key"
	}
	if col.IsForeignKey {
		return models.StrategySkip, "foreign key"
	}

	dataType := strings.ToLower(col.DataType)
	for _, prefix := range skipTypePrefixes {
		if strings.HasPrefix(dataType, prefix) {
			return models.StrategySkip, fmt.Sprintf("type %s carries no searchable values", col.DataType)
		}
	}

	if col.DistinctCount > 0 && col.DistinctCount <= int64(threshold) {
		return models.StrategyCategorical, fmt.Sprintf("%d distinct values fit the categorical threshold", col.DistinctCount)
	}

	if isTextualType(dataType) {
		return models.StrategyVector, "high-cardinality text"
	}

	return models.StrategySkip, fmt.Sprintf("high-cardinality %s", col.DataType)
}

func isTextualType(dataType string) bool {
	lower := strings.ToLower(dataType)
	for _, prefix := range textualTypePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// advisoryResult is the JSON shape the advisory model returns.
type advisoryResult struct {
	Strategy  string `json:"strategy"`
	Reasoning string `json:"reasoning"`
}

// refineWithAdvisory asks the model to review each rule decision, in parallel
// through the worker pool. Advisory errors leave the rule decision in place.
func (d *strategyDecider) refineWithAdvisory(ctx context.Context, table *datasource.TableInfo, decisions []StrategyDecision) {
	byColumn := make(map[string]int, len(decisions))
	items := make([]llm.WorkItem[advisoryResult], 0, len(decisions))

	for i, decision := range decisions {
		byColumn[decision.ColumnName] = i
		col := table.Columns[i]

		profile := prompts.ColumnProfile{
			Name:          col.ColumnName,
			DataType:      col.DataType,
			IsNullable:    col.IsNullable,
			IsPrimaryKey:  col.IsPrimaryKey,
			IsForeignKey:  col.IsForeignKey,
			DistinctCount: col.DistinctCount,
			NullCount:     col.NullCount,
			SampleValues:  sampleForAdvisory(&col),
			RuleStrategy:  string(decision.Strategy),
		}
		prompt := prompts.IndexingAdvisoryPrompt(qualifiedName(table), table.RowCount, profile)

		items = append(items, llm.WorkItem[advisoryResult]{
			ID: col.ColumnName,
			Execute: func(ctx context.Context) (advisoryResult, error) {
				response, err := d.llm.GenerateResponse(ctx, prompt, prompts.IndexingAdvisorySystemMessage(), d.config.Temperature)
				if err != nil {
					return advisoryResult{}, err
				}
				return llm.ParseJSONResponse[advisoryResult](response)
			},
		})
	}

	results := llm.Process(ctx, d.pool, items, nil)
	for _, res := range results {
		i, ok := byColumn[res.ID]
		if !ok {
			continue
		}
		if res.Err != nil {
			d.logger.Debug("Advisory call failed, keeping rule decision",
				zap.String("column", res.ID),
				zap.Error(res.Err))
			continue
		}

		advised := models.IndexingStrategy(res.Result.Strategy)
		if !models.IsValidIndexingStrategy(advised) || advised == decisions[i].Strategy {
			continue
		}
		if !d.advisoryAccepted(&table.Columns[i], decisions[i].Strategy, advised) {
			d.logger.Debug("Advisory refinement rejected",
				zap.String("column", res.ID),
				zap.String("rule", string(decisions[i].Strategy)),
				zap.String("advised", string(advised)))
			continue
		}

		decisions[i].Strategy = advised
		decisions[i].Reasoning = res.Result.Reasoning
	}
}

// advisoryAccepted enforces the refinement contract: advice may move a
// decision toward an equal-or-cheaper strategy, and may promote a skip only
// when the rule layer had no cardinality evidence to stand on.
func (d *strategyDecider) advisoryAccepted(col *datasource.ColumnInfo, rule, advised models.IndexingStrategy) bool {
	if advised.Cost() <= rule.Cost() {
		return true
	}
	return rule == models.StrategySkip && col.DistinctCount == 0 && !col.IsPrimaryKey && !col.IsForeignKey
}

func sampleForAdvisory(col *datasource.ColumnInfo) []string {
	if len(col.DistinctValues) > 0 {
		return capStrings(col.DistinctValues, 10)
	}
	return capStrings(col.SampleValues, 10)
}

func capStrings(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}

func qualifiedName(table *datasource.TableInfo) string {
	return table.SchemaName + "." + table.TableName
}

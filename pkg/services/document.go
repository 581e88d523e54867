package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/lumina-data/lumina-engine/pkg/datasource"
	"github.com/lumina-data/lumina-engine/pkg/models"
)

// Caps on how many values a document enumerates per column. Documents feed
// the embedding model, so unbounded value lists would drown the schema signal.
const (
	documentCategoricalCap = 10
	documentSampleCap      = 5
)

// BuildDocument renders the embeddable description of one table: identity,
// inferred purpose, relationships, and a per-column line with type, keys,
// stats, and indexed values. Output is deterministic for a given input.
func BuildDocument(table *datasource.TableInfo, columns []*models.ColumnMetadata) string {
	var doc strings.Builder

	doc.WriteString(fmt.Sprintf("# Table: %s.%s\n\n", table.SchemaName, table.TableName))
	doc.WriteString(inferPurpose(table))
	doc.WriteString(fmt.Sprintf("\nRow count: %d\n", table.RowCount))

	if len(table.ForeignKeys) > 0 {
		doc.WriteString("\nRelationships:\n")
		for _, fk := range table.ForeignKeys {
			doc.WriteString(fmt.Sprintf("- %s references %s.%s (%s)\n",
				fk.SourceColumn, fk.TargetSchema, fk.TargetTable, fk.TargetColumn))
		}
	}

	doc.WriteString("\nColumns:\n")
	for _, col := range columns {
		doc.WriteString(columnLine(col))
	}

	return doc.String()
}

// BuildSummary renders the one-line summary stored alongside the document.
func BuildSummary(table *datasource.TableInfo, columns []*models.ColumnMetadata) string {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.ColumnName)
	}
	subject := inflection.Singular(baseName(table.TableName))
	return fmt.Sprintf("%s.%s: %d rows of %s data. Columns: %s.",
		table.SchemaName, table.TableName, table.RowCount, subject, strings.Join(names, ", "))
}

// BuildColumnSummary renders the per-column prose stored on ColumnMetadata.
func BuildColumnSummary(col *models.ColumnMetadata) string {
	var parts []string
	switch {
	case col.IsPrimaryKey:
		parts = append(parts, "primary key")
	case col.IsForeignKey:
		parts = append(parts, "foreign key")
	}
	parts = append(parts, col.DataType)
	if col.IsNullable {
		parts = append(parts, fmt.Sprintf("nullable (%d nulls)", col.NullCount))
	}
	if col.DistinctCount > 0 {
		parts = append(parts, fmt.Sprintf("%d distinct values", col.DistinctCount))
	}
	return fmt.Sprintf("%s: %s.", col.ColumnName, strings.Join(parts, ", "))
}

// BuildIndexingReport groups a run's columns by decided strategy.
func BuildIndexingReport(connectionID uuid.UUID, insights []*models.TableInsight) *models.IndexingReport {
	report := &models.IndexingReport{
		ConnectionID:       connectionID,
		TableCount:         len(insights),
		CategoricalColumns: []string{},
		VectorColumns:      []string{},
		SkippedColumns:     []string{},
	}

	for _, insight := range insights {
		for _, col := range insight.Columns {
			report.ColumnCount++
			qualified := fmt.Sprintf("%s.%s.%s", insight.SchemaName, insight.TableName, col.ColumnName)
			switch col.Strategy {
			case models.StrategyCategorical:
				report.CategoricalColumns = append(report.CategoricalColumns, qualified)
			case models.StrategyVector:
				report.VectorColumns = append(report.VectorColumns, qualified)
			default:
				report.SkippedColumns = append(report.SkippedColumns, qualified)
			}
		}
	}

	return report
}

func columnLine(col *models.ColumnMetadata) string {
	var line strings.Builder
	line.WriteString(fmt.Sprintf("- %s (%s)", col.ColumnName, col.DataType))

	if col.IsPrimaryKey {
		line.WriteString(" [PK]")
	}
	if col.IsForeignKey {
		line.WriteString(" [FK]")
	}
	if col.IsNullable {
		line.WriteString(" [nullable]")
	}
	if col.DistinctCount > 0 {
		line.WriteString(fmt.Sprintf(" distinct=%d", col.DistinctCount))
	}

	switch col.Strategy {
	case models.StrategyCategorical:
		if len(col.CategoricalValues) > 0 {
			shown := col.CategoricalValues
			extra := 0
			if len(shown) > documentCategoricalCap {
				extra = len(shown) - documentCategoricalCap
				shown = shown[:documentCategoricalCap]
			}
			line.WriteString(fmt.Sprintf(" values: %s", strings.Join(shown, ", ")))
			if extra > 0 {
				line.WriteString(fmt.Sprintf(" (+%d more)", extra))
			}
		}
	case models.StrategyVector:
		if len(col.SampleValues) > 0 {
			shown := col.SampleValues
			if len(shown) > documentSampleCap {
				shown = shown[:documentSampleCap]
			}
			line.WriteString(fmt.Sprintf(" examples: %s", strings.Join(shown, ", ")))
		}
	}

	line.WriteString("\n")
	return line.String()
}

// inferPurpose guesses what a table holds from its name and FK shape. Crude,
// but it gives the embedding model a prose anchor beyond raw column names.
func inferPurpose(table *datasource.TableInfo) string {
	name := baseName(table.TableName)
	subject := strings.ReplaceAll(inflection.Singular(name), "_", " ")

	switch {
	case strings.HasSuffix(name, "_history") || strings.HasSuffix(name, "_log") || strings.HasSuffix(name, "_audit") || strings.HasSuffix(name, "_events"):
		return fmt.Sprintf("Purpose: append-only record of %s entries.\n", subject)
	case strings.HasPrefix(name, "ref_") || strings.HasSuffix(name, "_types") || strings.HasSuffix(name, "_statuses"):
		return fmt.Sprintf("Purpose: reference data enumerating %s values.\n", subject)
	case len(table.ForeignKeys) >= 2 && len(table.Columns) <= len(table.ForeignKeys)+2:
		return fmt.Sprintf("Purpose: junction table linking %s.\n", joinTargets(table))
	default:
		return fmt.Sprintf("Purpose: stores %s records.\n", subject)
	}
}

// baseName strips a leading schema-ish prefix like "tbl_".
func baseName(tableName string) string {
	return strings.TrimPrefix(strings.ToLower(tableName), "tbl_")
}

func joinTargets(table *datasource.TableInfo) string {
	targets := make([]string, 0, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		targets = append(targets, inflection.Singular(fk.TargetTable))
	}
	return strings.Join(targets, " and ")
}

package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ddsprasad/data-sense-ai/pkg/adapters/datasource"
	"github.com/ddsprasad/data-sense-ai/pkg/apperrors"
	"github.com/ddsprasad/data-sense-ai/pkg/logging"
)

// DefaultSampleRows is the number of rows sampled per table.
const DefaultSampleRows = 3

// BuilderConfig controls catalog construction.
type BuilderConfig struct {
	SampleRows int
	// CachePath receives a JSON snapshot after each build. Empty disables it.
	CachePath string
}

// Builder introspects a warehouse into a Set.
type Builder struct {
	reader datasource.CatalogReader
	config BuilderConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewBuilder creates a builder over reader. A negative SampleRows disables sampling.
func NewBuilder(reader datasource.CatalogReader, cfg BuilderConfig, logger *zap.Logger) *Builder {
	if cfg.SampleRows == 0 {
		cfg.SampleRows = DefaultSampleRows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		reader: reader,
		config: cfg,
		now:    time.Now,
		logger: logger.Named("catalog"),
	}
}

// Build reads every table, its columns and declared foreign keys, then
// samples rows. Any metadata failure fails the whole build with
// apperrors.ErrCatalogUnavailable; a sampling failure only leaves that
// table without samples.
func (b *Builder) Build(ctx context.Context) (*Set, error) {
	start := b.now()

	tables, err := b.reader.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: discover tables: %w", apperrors.ErrCatalogUnavailable, err)
	}

	fks, err := b.reader.DiscoverForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: discover foreign keys: %w", apperrors.ErrCatalogUnavailable, err)
	}
	fksByTable := make(map[string][]ForeignKey)
	for _, fk := range fks {
		key := strings.ToLower(fk.SourceSchema + "." + fk.SourceTable)
		fksByTable[key] = append(fksByTable[key], ForeignKey{
			Column:       fk.SourceColumn,
			TargetSchema: fk.TargetSchema,
			TargetTable:  fk.TargetTable,
			TargetColumn: fk.TargetColumn,
		})
	}

	descriptors := make([]*Descriptor, 0, len(tables))
	sampleFailures := 0
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrCatalogUnavailable, err)
		}

		cols, err := b.reader.DiscoverColumns(ctx, t.SchemaName, t.TableName)
		if err != nil {
			return nil, fmt.Errorf("%w: discover columns of %s.%s: %w",
				apperrors.ErrCatalogUnavailable, t.SchemaName, t.TableName, err)
		}

		d := &Descriptor{
			Schema:      t.SchemaName,
			Name:        t.TableName,
			RowCount:    t.RowCount,
			Columns:     make([]Column, 0, len(cols)),
			ForeignKeys: fksByTable[strings.ToLower(t.SchemaName+"."+t.TableName)],
		}
		for _, c := range cols {
			d.Columns = append(d.Columns, Column{
				Name:       c.ColumnName,
				Type:       c.DataType,
				Nullable:   c.IsNullable,
				PrimaryKey: c.IsPrimaryKey,
			})
		}

		if b.config.SampleRows > 0 {
			sample, err := b.reader.SampleRows(ctx, t.SchemaName, t.TableName, b.config.SampleRows)
			if err != nil {
				sampleFailures++
				b.logger.Warn("Failed to sample table, continuing without samples",
					zap.String("table", d.QualifiedName()),
					zap.String("error", logging.SanitizeError(err)))
			} else if sample != nil {
				d.Samples = sample.Rows
			}
		}

		descriptors = append(descriptors, d)
	}

	set := NewSet(descriptors, b.now())

	b.logger.Info("Schema catalog built",
		zap.Int("tables", set.Len()),
		zap.Int("foreign_keys", len(fks)),
		zap.Int("sample_failures", sampleFailures),
		zap.Duration("elapsed", b.now().Sub(start)))

	if b.config.CachePath != "" {
		if err := WriteSnapshot(b.config.CachePath, set); err != nil {
			b.logger.Warn("Failed to write catalog snapshot",
				zap.String("path", b.config.CachePath),
				zap.Error(err))
		}
	}

	return set, nil
}

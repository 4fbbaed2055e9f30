package sink

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/karev/glharvest/internal/metrics"
)

const (
	defaultBatchSizeConstant = 100

	missingDatabaseErrorMessageConstant = "database handle is required"
	openSourceErrorTemplateConstant     = "open source file %s: %w"
	readHeaderErrorTemplateConstant     = "read header of %s: %w"
	readRowErrorTemplateConstant        = "read row of %s: %w"
	nothingLoadedErrorMessageConstant   = "no rows loaded"
	insertTemplateConstant              = "INSERT INTO %s (%s) VALUES %s"
	bindGroupSeparatorConstant          = ", "
)

// Execer is the narrow database surface the loader needs. *sql.DB satisfies it.
type Execer interface {
	ExecContext(executionContext context.Context, query string, arguments ...any) (sql.Result, error)
}

// Service streams CSV snapshots into warehouse tables in fixed size batches.
type Service struct {
	database   Execer
	fileSystem afero.Fs
	logger     *zap.Logger
	batchSize  int
}

// LoadSummary reports the rows loaded per target table.
type LoadSummary struct {
	RowsLoaded map[string]int64
}

// NewService builds a loader. A nil filesystem falls back to the operating
// system filesystem and a non-positive batch size falls back to the default.
func NewService(database Execer, fileSystem afero.Fs, logger *zap.Logger, batchSize int) (*Service, error) {
	if database == nil {
		return nil, errors.New(missingDatabaseErrorMessageConstant)
	}
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSizeConstant
	}
	return &Service{database: database, fileSystem: fileSystem, logger: logger, batchSize: batchSize}, nil
}

// Run loads every mapping of the document from the source directory. A batch
// that fails to insert is logged and skipped; Run fails only when a source
// file cannot be read or nothing at all loads despite rows being present.
func (service *Service) Run(executionContext context.Context, sourceDirectory string, document Document) (LoadSummary, error) {
	summary := LoadSummary{RowsLoaded: make(map[string]int64, len(document.Mappings))}
	totalRead := int64(0)

	for _, mapping := range document.Mappings {
		loaded, read, loadError := service.loadMapping(executionContext, sourceDirectory, mapping)
		if loadError != nil {
			return summary, loadError
		}
		summary.RowsLoaded[mapping.Table] += loaded
		totalRead += read
	}

	totalLoaded := int64(0)
	for _, loaded := range summary.RowsLoaded {
		totalLoaded += loaded
	}
	if totalRead > 0 && totalLoaded == 0 {
		return summary, errors.New(nothingLoadedErrorMessageConstant)
	}
	return summary, nil
}

func (service *Service) loadMapping(executionContext context.Context, sourceDirectory string, mapping Mapping) (int64, int64, error) {
	sourcePath := filepath.Join(sourceDirectory, mapping.Source)
	sourceFile, openError := service.fileSystem.Open(sourcePath)
	if openError != nil {
		return 0, 0, fmt.Errorf(openSourceErrorTemplateConstant, sourcePath, openError)
	}
	defer func() {
		_ = sourceFile.Close()
	}()

	reader := csv.NewReader(sourceFile)
	header, headerError := reader.Read()
	if headerError != nil {
		if errors.Is(headerError, io.EOF) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf(readHeaderErrorTemplateConstant, sourcePath, headerError)
	}

	loaded := int64(0)
	read := int64(0)
	batch := make([]map[string]string, 0, service.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		inserted := service.insertBatch(executionContext, mapping, batch)
		loaded += inserted
		batch = batch[:0]
	}

	for {
		row, rowError := reader.Read()
		if rowError != nil {
			if errors.Is(rowError, io.EOF) {
				break
			}
			return loaded, read, fmt.Errorf(readRowErrorTemplateConstant, sourcePath, rowError)
		}
		read++
		record := make(map[string]string, len(header))
		for columnIndex, columnName := range header {
			if columnIndex < len(row) {
				record[columnName] = row[columnIndex]
			}
		}
		batch = append(batch, record)
		if len(batch) >= service.batchSize {
			flush()
		}
	}
	flush()

	service.logger.Info("snapshot loaded",
		zap.String("source", mapping.Source),
		zap.String("table", mapping.Table),
		zap.Int64("rows_read", read),
		zap.Int64("rows_loaded", loaded))
	return loaded, read, nil
}

// insertBatch writes one batch with a multi-row INSERT. Failures are logged
// and the batch is dropped so the remaining batches still load.
func (service *Service) insertBatch(executionContext context.Context, mapping Mapping, batch []map[string]string) int64 {
	columnNames := make([]string, 0, len(mapping.Columns))
	bindValues := make([]any, 0, len(batch)*len(mapping.Columns))
	valueGroups := make([]string, 0, len(batch))

	for _, record := range batch {
		rowColumns, rowValues, transformError := transformRow(record, mapping)
		if transformError != nil {
			service.logger.Warn("row transform failed",
				zap.String("table", mapping.Table),
				zap.Error(transformError))
			continue
		}
		if len(columnNames) == 0 {
			columnNames = rowColumns
		}
		placeholders := strings.Repeat("?, ", len(rowValues))
		valueGroups = append(valueGroups, "("+strings.TrimSuffix(placeholders, ", ")+")")
		bindValues = append(bindValues, rowValues...)
	}
	if len(valueGroups) == 0 {
		return 0
	}

	statement := fmt.Sprintf(insertTemplateConstant,
		mapping.Table,
		strings.Join(columnNames, bindGroupSeparatorConstant),
		strings.Join(valueGroups, bindGroupSeparatorConstant))

	if _, execError := service.database.ExecContext(executionContext, statement, bindValues...); execError != nil {
		service.logger.Error("batch insert failed",
			zap.String("table", mapping.Table),
			zap.Int("rows", len(valueGroups)),
			zap.Error(execError))
		return 0
	}

	inserted := int64(len(valueGroups))
	metrics.SinkRowsInsertedTotal.WithLabelValues(mapping.Table).Add(float64(inserted))
	return inserted
}

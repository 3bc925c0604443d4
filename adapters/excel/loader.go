package excel

import (
	"context"
	"path/filepath"
	"strings"

	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/errors"
	"gosurv/ports"
)

// FileLoader reads and encodes one CSV or XLSX export
type FileLoader struct {
	path    string
	reader  *DataReader
	encoder *Encoder
}

var _ ports.DatasetLoaderPort = (*FileLoader)(nil)

// NewFileLoader creates a loader for path; sheet selects the workbook sheet
func NewFileLoader(path, sheet string, config EncodingConfig, logger *internal.Logger) *FileLoader {
	return &FileLoader{
		path:    path,
		reader:  NewDataReader(path, sheet, logger),
		encoder: NewEncoder(config, logger),
	}
}

// NewFileLoaderFromConfig creates a loader for the file and column layout
// named by the data configuration
func NewFileLoaderFromConfig(data config.DataConfig, logger *internal.Logger) *FileLoader {
	return NewFileLoader(data.File, data.Sheet, EncodingConfig{
		DurationColumn:     data.DurationColumn,
		EventColumn:        data.EventColumn,
		WeightColumn:       data.WeightColumn,
		DropColumns:        data.DropColumns,
		CategoricalColumns: data.CategoricalColumns,
	}, logger)
}

// Load reads the file and encodes it. The dataset is named after the file.
func (l *FileLoader) Load(ctx context.Context) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := l.reader.ReadData()
	if err != nil {
		return nil, errors.IngestionError(l.path, err)
	}
	name := strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
	ds, err := l.encoder.Encode(name, table)
	if err != nil {
		return nil, errors.IngestionError(l.path, err)
	}
	return ds, nil
}

package ports

import (
	"context"

	"gosurv/domain/dataset"
)

// DatasetLoaderPort produces an encoded, validated subject table. The
// modeling core sees only the returned Dataset.
type DatasetLoaderPort interface {
	Load(ctx context.Context) (*dataset.Dataset, error)
}

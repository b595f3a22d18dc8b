// Package identify matches accepted detection candidates against the
// stamp catalog: describe the crop, embed the description, search the
// similarity index, and apply the three-way decision policy.
//
// The describer, embedder, and index are external collaborators consumed
// through interfaces; this package owns only the orchestration and the
// decision thresholds.
package identify

import (
	"context"
	"image"
)

// Describer generates a semantic text description of a cropped stamp
// image. Calls are independent per candidate and may fail individually.
type Describer interface {
	Describe(ctx context.Context, crop image.Image) (string, error)
}

// Embedder converts a description into a fixed-length vector. A failure
// here is treated exactly like a describer failure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is one catalog entry returned by the similarity index.
type Match struct {
	CatalogID string  `json:"catalog_id"`
	Score     float64 `json:"score"`
	Country   string  `json:"country,omitempty"`
	Year      int     `json:"year,omitempty"`
}

// Index is the pre-built catalog similarity index. Search returns up to
// topK matches with score >= minScore, ordered descending by score.
type Index interface {
	Search(ctx context.Context, vector []float32, topK int, minScore float64) ([]Match, error)
}

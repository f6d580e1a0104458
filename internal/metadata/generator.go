package metadata

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/uibot/internal/config"
)

// Provider describes a batch of images. It returns one row per item, in
// any order; rows are matched back by filename.
type Provider interface {
	Describe(ctx context.Context, items []UploadItem) ([]Row, error)
}

// Generator fills in missing titles, keywords and categories.
type Generator struct {
	provider  Provider
	fallback  TemplateProvider
	batchSize int
	logger    *zap.Logger
}

// NewGenerator picks the provider named in cfg. LLM exchanges are cached
// under cacheDir.
func NewGenerator(cfg config.MetadataConfig, cacheDir string, logger *zap.Logger) (*Generator, error) {
	var p Provider
	switch cfg.Provider {
	case config.ProviderTemplate, "":
		p = TemplateProvider{Category: cfg.Category}
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("metadata provider %s needs an API key (ANTHROPIC_API_KEY)", cfg.Provider)
		}
		p = NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.Category, cacheDir, logger)
	default:
		return nil, fmt.Errorf("unknown metadata provider: %s", cfg.Provider)
	}
	g := NewGeneratorWith(p, cfg.BatchSize, logger)
	g.fallback.Category = cfg.Category
	return g, nil
}

// NewGeneratorWith wraps an explicit provider.
func NewGeneratorWith(p Provider, batchSize int, logger *zap.Logger) *Generator {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{provider: p, batchSize: batchSize, logger: logger}
}

// Generate describes items in concurrent batches and returns rows in item
// order. An item the provider skipped falls back to the template.
func (g *Generator) Generate(ctx context.Context, items []UploadItem) ([]Row, error) {
	if len(items) == 0 {
		return nil, nil
	}

	numBatches := (len(items) + g.batchSize - 1) / g.batchSize
	results := make([][]Row, numBatches)

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < len(items); i += g.batchSize {
		batchIdx := i / g.batchSize
		batch := items[i:min(i+g.batchSize, len(items))]

		eg.Go(func() error {
			rows, err := g.provider.Describe(ctx, batch)
			if err != nil {
				return fmt.Errorf("failed to describe batch %d: %w", batchIdx, err)
			}
			results[batchIdx] = rows
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byName := make(map[string]Row, len(items))
	for _, rows := range results {
		for _, r := range rows {
			byName[r.Filename] = r
		}
	}

	out := make([]Row, len(items))
	for i, it := range items {
		r, ok := byName[it.Filename()]
		if !ok || r.Title == "" || len(r.Keywords) == 0 {
			g.logger.Warn("provider skipped image, using template", zap.String("file", it.Filename()))
			r = g.fallback.row(i, it)
		}
		r.Filename = it.Filename()
		if len(r.Keywords) > MaxKeywords {
			r.Keywords = r.Keywords[:MaxKeywords]
		}
		if len(r.Title) > MaxTitleLength {
			r.Title = r.Title[:MaxTitleLength]
		}
		out[i] = r
	}
	return out, nil
}

// WriteFor generates metadata for every image in dir and writes the CSV.
func (g *Generator) WriteFor(ctx context.Context, dir, out string) (int, error) {
	items, err := ScanDir(dir)
	if err != nil {
		return 0, err
	}
	rows, err := g.Generate(ctx, items)
	if err != nil {
		return 0, err
	}
	if err := WriteCSVFile(out, rows); err != nil {
		return 0, err
	}
	g.logger.Info("metadata CSV written", zap.String("path", out), zap.Int("images", len(rows)))
	return len(rows), nil
}

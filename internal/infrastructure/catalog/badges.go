// Package catalog loads the badge catalog from YAML and seeds it into the store.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gamifyx/gradehub/internal/domain/progression"
	"github.com/gamifyx/gradehub/pkg/logger"
)

//go:embed badges.yaml
var defaultCatalog []byte

type yamlCatalog struct {
	Version int         `yaml:"version"`
	Badges  []yamlBadge `yaml:"badges"`
}

type yamlBadge struct {
	Slug        string                    `yaml:"slug"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Criterion   progression.CriterionSpec `yaml:"criterion"`
}

// Default returns the embedded catalog.
func Default() ([]progression.Badge, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) ([]progression.Badge, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge catalog %s: %w", path, err)
	}
	badges, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("badge catalog %s: %w", path, err)
	}
	return badges, nil
}

// Parse decodes a catalog document. Unknown fields, unknown criterion kinds and
// duplicate slugs all fail the whole load.
func Parse(raw []byte) ([]progression.Badge, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc yamlCatalog
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Badges) == 0 {
		return nil, errors.New("catalog has no badges")
	}

	seen := make(map[string]struct{}, len(doc.Badges))
	out := make([]progression.Badge, 0, len(doc.Badges))
	for i, b := range doc.Badges {
		slug := strings.TrimSpace(b.Slug)
		if slug == "" {
			return nil, fmt.Errorf("badge %d: slug is required", i)
		}
		if _, dup := seen[slug]; dup {
			return nil, fmt.Errorf("badge %q: duplicate slug", slug)
		}
		seen[slug] = struct{}{}

		crit, err := progression.ParseCriterion(b.Criterion)
		if err != nil {
			return nil, fmt.Errorf("badge %q: %w", slug, err)
		}

		name := strings.TrimSpace(b.Name)
		if name == "" {
			name = slug
		}
		out = append(out, progression.Badge{
			Slug:        slug,
			Name:        name,
			Description: strings.TrimSpace(b.Description),
			Criterion:   crit,
		})
	}
	return out, nil
}

// Seeder is the store side of Seed.
type Seeder interface {
	UpsertCatalog(ctx context.Context, badges []progression.Badge) error
}

// Seed loads the catalog at path and upserts it by slug.
func Seed(ctx context.Context, store Seeder, path string, log *logger.Logger) error {
	badges, err := Load(path)
	if err != nil {
		return err
	}
	if err := store.UpsertCatalog(ctx, badges); err != nil {
		return fmt.Errorf("seed badge catalog: %w", err)
	}
	if log != nil {
		source := path
		if source == "" {
			source = "embedded"
		}
		log.Info("badge catalog seeded",
			logger.Int("badges", len(badges)),
			logger.String("source", source),
		)
	}
	return nil
}

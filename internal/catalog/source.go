package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/conorfennell/murajaah/internal/gitsource"
)

// Source says where the catalog comes from. An empty Location means the
// embedded table; a git URL is cloned under CacheDir and File is read from
// the checkout; anything else is a path to a catalog file.
type Source struct {
	Location string
	File     string
	Branch   string
	CacheDir string
}

// Load resolves src into a complete catalog.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	if src.Location == "" {
		slog.Info("Using embedded surah catalog")
		return Default(), nil
	}

	path := src.Location
	if gitsource.IsRemote(src.Location) {
		repoPath, err := gitsource.LocalPath(src.CacheDir, src.Location)
		if err != nil {
			return nil, err
		}
		if err := gitsource.Sync(ctx, src.Location, src.Branch, repoPath); err != nil {
			return nil, err
		}
		path = filepath.Join(repoPath, src.File)
	}

	surahs, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	c, err := New(surahs)
	if err != nil {
		return nil, err
	}
	if err := c.checkComplete(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	slog.Info("Loaded surah catalog", "path", path, "surahs", len(c.surahs))
	return c, nil
}

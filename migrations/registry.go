package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath = "data/sql/migrations"
)

// Source is one dialect's migration directory.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	Label   string
	Targets []string
	Sources []Source
}

// RegisterFunc receives each selected dialect, typically forwarding fsys to
// persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Option func(*Registration)

func WithLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.Label = trimmed
		}
	}
}

// WithTargets limits registration to the named dialects.
func WithTargets(dialects ...string) Option {
	return func(r *Registration) {
		if targets := normalizeDialects(dialects); len(targets) > 0 {
			r.Targets = targets
		}
	}
}

// Sources splits the migration tree into its postgres and sqlite parts. The
// embedded tree is used unless root is given.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = FS()
	}
	postgres, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqlite, err := fs.Sub(postgres, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite migrations: %w", err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: postgres},
		{Dialect: DialectSQLite, Path: rootPath + "/" + DialectSQLite, FS: sqlite},
	}
	for _, source := range sources {
		matches, globErr := fs.Glob(source.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", source.Path)
		}
	}
	return sources, nil
}

func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		Label:   "go-authretry",
		Targets: []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources(nil)
	if err != nil {
		return reg, err
	}
	reg.Sources = sources
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, source := range reg.Sources {
		if !slices.Contains(reg.Targets, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.Label, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
	}
	return reg, nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	authclient "github.com/goliatone/go-authclient"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-authclient"
	migrationsDir      = "data/sql/migrations"
)

// FilesystemSpec is the migration directory for one SQL dialect.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration describes what Register handed to the register function.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registerOptions)

type registerOptions struct {
	sourceLabel string
	targets     []string
	source      fs.FS
}

func WithDialectSourceLabel(label string) Option {
	return func(o *registerOptions) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			o.sourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(o *registerOptions) {
		if next := dedupe(targets); len(next) > 0 {
			o.targets = next
		}
	}
}

// WithSource replaces the embedded migration tree. The tree must use the same
// data/sql/migrations layout, or hold the postgres files at its root.
func WithSource(source fs.FS) Option {
	return func(o *registerOptions) {
		if source != nil {
			o.source = source
		}
	}
}

// Filesystems resolves the postgres and sqlite migration directories and
// checks that every up migration has a matching down migration.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := authclient.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: pathJoin(basePath, DialectSQLite), FS: sqliteFS},
	}
	for _, spec := range filesystems {
		if err := checkPairs(spec); err != nil {
			return nil, err
		}
	}
	return filesystems, nil
}

// ForDialect returns the migration directory for a single dialect.
func ForDialect(dialect string, sources ...fs.FS) (FilesystemSpec, error) {
	filesystems, err := Filesystems(sources...)
	if err != nil {
		return FilesystemSpec{}, err
	}
	want := strings.TrimSpace(strings.ToLower(dialect))
	for _, spec := range filesystems {
		if spec.Dialect == want {
			return spec, nil
		}
	}
	return FilesystemSpec{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
}

// Register hands each targeted dialect's migrations to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	options := registerOptions{
		sourceLabel: defaultSourceLabel,
		targets:     []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	reg := Registration{
		SourceLabel:       options.sourceLabel,
		ValidationTargets: options.targets,
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	filesystems, err := Filesystems(options.source)
	if err != nil {
		return reg, err
	}
	for _, spec := range filesystems {
		if !slices.Contains(options.targets, spec.Dialect) {
			continue
		}
		reg.Filesystems = append(reg.Filesystems, spec)
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	if len(reg.Filesystems) == 0 {
		return reg, fmt.Errorf("migrations: no migrations for targets %v", options.targets)
	}
	return reg, nil
}

func checkPairs(spec FilesystemSpec) error {
	ups, err := fs.Glob(spec.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(spec.FS, down); err != nil {
			return fmt.Errorf("migrations: %s migration %s has no down file: %w", spec.Dialect, up, err)
		}
	}
	return nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, migrationsDir); err == nil {
		sub, subErr := fs.Sub(root, migrationsDir)
		if subErr != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", migrationsDir, subErr)
		}
		return sub, migrationsDir, nil
	}
	if matches, err := fs.Glob(root, "*.up.sql"); err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}

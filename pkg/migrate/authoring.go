package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	unsafeNameRe  = regexp.MustCompile(`[^a-z0-9]+`)
	migrationFile = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" || dir == EmbeddedDir {
		return "", errors.New("an on-disk -dir is required")
	}
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	full := filepath.Join(dir, time.Now().UTC().Format(versionLayout)+"_"+slug+".sql")
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write %s: %w", full, err)
	}
	return full, nil
}

// ValidateDir checks an on-disk migrations directory, or the embedded set
// when dir is EmbeddedDir.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	if dir == EmbeddedDir {
		return ValidateFS(embedded, EmbeddedDir)
	}
	return ValidateFS(os.DirFS(dir), ".")
}

// ValidateFS requires every .sql file under dir to carry a unique 14-digit
// version, an Up section before a Down section, and balanced statement blocks.
func ValidateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	versions := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := migrationFile.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name)
		}
		if _, err := time.Parse(versionLayout, m[1]); err != nil {
			return fmt.Errorf("%s: version is not a timestamp", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("%s and %s share version %s", prev, name, m[1])
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := checkSections(string(body)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("no migrations in %s", dir)
	}
	return nil
}

func checkSections(sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return errors.New(`missing "-- +goose Up"`)
	case down < 0:
		return errors.New(`missing "-- +goose Down"`)
	case down < up:
		return errors.New("down section precedes up section")
	}
	if strings.Count(sql, "+goose StatementBegin") != strings.Count(sql, "+goose StatementEnd") {
		return errors.New("unbalanced StatementBegin/StatementEnd")
	}
	return nil
}

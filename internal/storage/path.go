package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath names one exported snapshot file. Exports are laid out by
// environment, statement and UTC date so retention can reason about them from
// the key alone.
func BuildExportPath(environment, statementName, watchID string, exportedAt time.Time) (string, error) {
	if err := validatePathComponent(environment, "environment"); err != nil {
		return "", err
	}
	if err := validatePathComponent(statementName, "statement name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(watchID, "watch id"); err != nil {
		return "", err
	}

	ts := exportedAt.UTC()
	return path.Join(
		"exports",
		environment,
		statementName,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s.parquet", watchID),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

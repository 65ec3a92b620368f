package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildResultObjectPath lays result exports out by query and fetch date:
// query=<id>/date=YYYY-MM-DD/<execution>.parquet.
func BuildResultObjectPath(queryID, executionID string, fetchedAt time.Time) (string, error) {
	if err := validatePathComponent(queryID, "query id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(executionID, "execution id"); err != nil {
		return "", err
	}

	ts := fetchedAt.UTC()
	return path.Join(
		"query="+queryID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		executionID+".parquet",
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

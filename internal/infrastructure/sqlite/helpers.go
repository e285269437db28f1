package sqlite

import (
	"fmt"
	"strings"
	"time"
)

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// timeFmt is the column format for timestamps. Nanosecond precision
// keeps launch-time ordering stable for instances created in the same
// transaction.
const timeFmt = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFmt)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// placeholders returns "?, ?, ..." with n entries for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type scanner interface {
	Scan(dest ...any) error
}

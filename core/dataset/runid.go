package dataset

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDLayout = "20060102T150405Z"

var runIDPattern = regexp.MustCompile(`^\d{8}T\d{6}Z-[0-9a-f]{8}$`)

// NewRunID returns an identifier such as 20261016T101500Z-1a2b3c4d.
// It sorts by creation time.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format(runIDLayout) + "-" + suffix
}

// ValidRunID reports whether id has the NewRunID shape.
func ValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// RunTime extracts the creation time from a run id.
func RunTime(id string) (time.Time, error) {
	if !ValidRunID(id) {
		return time.Time{}, fmt.Errorf("invalid run id %q", id)
	}
	return time.Parse(runIDLayout, id[:len(runIDLayout)])
}

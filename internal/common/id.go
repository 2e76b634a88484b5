package common

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRefID generates the value stamped on a resolved element's data-e2e-ref attribute
// Format: ref_<uuid without dashes>
func NewRefID() string {
	return "ref_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewRunID generates a sortable identifier for one suite run
// Format: run-<yyyymmdd-hhmmss>-<first 8 of uuid>
func NewRunID() string {
	return "run-" + time.Now().Format("20060102-150405") + "-" + uuid.New().String()[:8]
}

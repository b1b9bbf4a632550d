package flowdeck

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID returns a short random id with the given prefix, e.g. "node-1f3a9c0b72de".
func GenerateID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + id[:12]
}

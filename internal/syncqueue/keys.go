package syncqueue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultKeyPrefix matches the keys used by earlier app versions, so queues
// persisted on a device stay readable after an upgrade.
const DefaultKeyPrefix = "@sync"

// Keys are the store keys of the three persisted collections.
type Keys struct {
	Queue      string
	Attempts   string
	Processing string
}

// KeysFor derives the collection keys from prefix.
func KeysFor(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{
		Queue:      prefix + "_queue",
		Attempts:   prefix + "_attempts",
		Processing: prefix + "_processing",
	}
}

// All returns every key, for bulk removal.
func (k Keys) All() []string {
	return []string{k.Queue, k.Attempts, k.Processing}
}

const idSuffixLen = 9

// newID returns "<kind>_<unix millis>_<9 random chars>".
func newID(kind string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLen]
	return fmt.Sprintf("%s_%d_%s", kind, now.UnixMilli(), suffix)
}

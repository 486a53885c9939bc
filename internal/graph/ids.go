package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewNodeID returns a synthetic node id of the form node_<unixmillis>_<random>.
func NewNodeID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("node_%d_%s", now.UnixMilli(), random)
}

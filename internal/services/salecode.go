package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	saleCodePrefixSingle = "STX"
	saleCodePrefixCart   = "STXC"
	receiptCodePrefix    = "REC"
)

// newCode builds a human-legible code of the form PREFIX-<unix ms>-<8 hex>.
// The sales table keeps sale_code unique, so a collision surfaces as a conflict.
func newCode(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), strings.ToUpper(suffix))
}

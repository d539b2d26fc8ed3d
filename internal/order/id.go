// Package order generates identifiers for storefront orders. There is no
// order store; the id ties the invoice, webhook and download token for one
// purchase together in logs.
package order

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh order identifier. The millisecond timestamp keeps ids
// roughly sortable; the uuid fragment keeps concurrent requests distinct.
func NewID() string {
	millis := strconv.FormatInt(time.Now().UnixMilli(), 36)
	fragment := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "ord_" + millis + "-" + fragment
}

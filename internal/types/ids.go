// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type RunID string
type ThreadID string
type EventID string
type ItemID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewItemID() ItemID {
	return ItemID(uuid.New().String())
}

// NewDeliveryKey joins parts into a prefix-routed delivery key,
// e.g. NewDeliveryKey("telegram", "42") == "telegram:42".
func NewDeliveryKey(parts ...string) string {
	return strings.Join(parts, ":")
}

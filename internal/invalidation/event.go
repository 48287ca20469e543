// Package invalidation defines the view-changed event consumed from the
// message bus to keep the catalog cache honest.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event announces that a view definition changed. Version is the xxhash
// content digest of the new definition; consumers use it to drop replays.
type Event struct {
	Op      string    `json:"op"`
	View    string    `json:"view"`
	Version uint64    `json:"version"`
	TS      time.Time `json:"ts"`
}

func (e Event) Validate() error {
	switch e.Op {
	case OpUpdate, OpDelete:
	default:
		return fmt.Errorf("op must be %s|%s", OpUpdate, OpDelete)
	}
	if strings.TrimSpace(e.View) == "" {
		return fmt.Errorf("view is required")
	}
	if e.Version == 0 {
		return fmt.Errorf("version is required")
	}
	return nil
}

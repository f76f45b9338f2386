// Package draft caches the in-progress wizard form so that a reload can
// resume where the participant left off.  Every save is a complete
// overwrite of the snapshot stored under a key.
package draft

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/festival-registration/internal/model"
)

// DefaultKey is the fixed key used by the wizard's local cache.
const DefaultKey = "festival-registration-form"

// ErrNotFound is returned by Load when nothing is cached under the key.
var ErrNotFound = errors.New("draft not found")

// Snapshot is the serializable part of the wizard state.  The generated
// waiver PDF has no field here and never reaches the cache.
type Snapshot struct {
	Registration model.Registration `json:"registration"`
	Step         string             `json:"step"`
	SavedAt      time.Time          `json:"saved_at"`
}

// Store persists snapshots.
type Store interface {
	Load(ctx context.Context, key string) (Snapshot, error)
	Save(ctx context.Context, key string, s Snapshot) error
	Clear(ctx context.Context, key string) error
}

package blob

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ImportArchive writes import payloads as JSON blobs so a failed or disputed
// import can be replayed later. Keys follow imports/{chantier}/{ts}-{rand}.json.
type ImportArchive struct {
	store Store
	now   func() time.Time
}

// NewImportArchive wraps a Store for import archiving.
func NewImportArchive(store Store) *ImportArchive {
	return &ImportArchive{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the clock, for tests.
func (a *ImportArchive) SetNowFunc(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// ArchiveImport stores the payload and returns the blob key.
func (a *ImportArchive) ArchiveImport(ctx context.Context, chantierID string, payload []byte) (string, error) {
	if chantierID == "" {
		chantierID = "unknown"
	}
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	key := fmt.Sprintf("imports/%s/%s-%s.json", chantierID, a.now().Format("20060102T150405Z"), hex.EncodeToString(suffix))
	if _, err := a.store.Put(ctx, key, bytes.NewReader(payload), PutOptions{ContentType: "application/json"}); err != nil {
		return "", err
	}
	return key, nil
}

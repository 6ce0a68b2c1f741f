package dataset

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

// snapshotVersion guards the binary layout. Bump on any record shape change
// so stale snapshots are rejected instead of misread.
const snapshotVersion = 1

// Snapshot is the msgpack-encoded derived form of a dataset: the record sets
// exactly as the match engine indexes them, skipping JSON parsing and
// derivation on startup.
type Snapshot struct {
	Version     int                    `msgpack:"version"`
	Permissions []iam.PermissionRecord `msgpack:"permissions"`
	Roles       []iam.RoleRecord       `msgpack:"roles"`
}

// SaveSnapshot writes the derived records to path in msgpack form.
func SaveSnapshot(path string, permissions []iam.PermissionRecord, roles []iam.RoleRecord) error {
	snap := Snapshot{
		Version:     snapshotVersion,
		Permissions: permissions,
		Roles:       roles,
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	log.Debugf("Saved snapshot to %s (%d bytes)", path, len(data))
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) ([]iam.PermissionRecord, []iam.RoleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, nil, fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Version)
	}
	log.Debugf("Loaded snapshot: %d permissions, %d roles", len(snap.Permissions), len(snap.Roles))
	return snap.Permissions, snap.Roles, nil
}

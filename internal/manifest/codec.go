package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// FileName is the fixed name of the per-folder sidecar manifest.
const FileName = "dataLog.json"

// SchemaVersion is the envelope version this build reads and writes.
const SchemaVersion = 1

// envelope wraps the folder record with a schema version and a content
// checksum so silent corruption is detected instead of read as "empty".
type envelope struct {
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	Folder   json.RawMessage `json:"folder"`
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Encode serializes a folder record into its sidecar wire form.
func Encode(f *model.Folder) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding folder record: %w", err)
	}
	env := envelope{
		Version:  SchemaVersion,
		Checksum: checksum(payload),
		Folder:   payload,
	}
	// Plain Marshal keeps the embedded Folder bytes identical to the
	// checksummed payload; MarshalIndent would re-indent them and the
	// stored checksum could never verify on read.
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest envelope: %w", err)
	}
	return data, nil
}

// Decode parses sidecar bytes back into a folder record, verifying the
// envelope version and checksum first.
func Decode(data []byte) (*model.Folder, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrCorrupt, err)
	}
	if env.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", vault.ErrCorrupt, env.Version)
	}
	if got := checksum(env.Folder); got != env.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", vault.ErrCorrupt)
	}
	var f model.Folder
	if err := json.Unmarshal(env.Folder, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrCorrupt, err)
	}
	return &f, nil
}

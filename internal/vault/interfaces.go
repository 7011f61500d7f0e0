package vault

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"pv-go/internal/model"
)

// ManifestStore persists one folder record per folder directory, addressed
// by the folder's slash-separated vault-relative path.
type ManifestStore interface {
	// Read returns the record for relDir. A missing manifest reads as
	// (nil, nil); a present but untrustworthy one returns an error
	// wrapping manifest corruption.
	Read(relDir string) (*model.Folder, error)

	// Write overwrites the record for relDir in a single atomic-enough
	// operation.
	Write(relDir string, f *model.Folder) error

	// RemoveChild drops the named child folder from the record at relDir
	// and re-serializes it.
	RemoveChild(relDir string, childName string) error
}

// Synthesizer builds and unpacks paired live-photo assets. Make writes the
// fixed-name bundle members into bundleDir and returns the correlation
// identifier embedded in both; Extract performs the inverse into destDir.
type Synthesizer interface {
	Make(ctx context.Context, stillPath, videoPath, bundleDir string, progress func(done, total int)) (string, error)
	Extract(ctx context.Context, bundleDir, destDir string) (string, error)
}

// Encryptor manages the vault's at-rest encryption keys. Encrypting needs
// no passcode; decrypting requires unlocking first.
type Encryptor interface {
	// Setup provisions a fresh key pair protected by the passcode.
	Setup(passcode string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens a decryption session with the passcode.
	Unlock(passcode string) (DecryptionContext, error)

	// IsConfigured reports whether key material is in place.
	IsConfigured() bool
}

// DecryptionContext decrypts media for the duration of an unlocked session.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Logger provides structured logging for the store. The args follow slog
// conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so record timestamps are deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts file id generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

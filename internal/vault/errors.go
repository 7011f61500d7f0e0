package vault

import "errors"

// Sentinel errors surfaced by store operations. Callers match with
// errors.Is; operations wrap these with path and cause context.
var (
	// ErrInvalidPath indicates a destination path could not be constructed
	// (empty or unsafe folder/file name, escape from the vault root).
	ErrInvalidPath = errors.New("invalid vault path")

	// ErrFileSave indicates a media payload could not be materialized.
	ErrFileSave = errors.New("file saving failed")

	// ErrDirectoryCreate indicates the OS rejected a directory creation.
	ErrDirectoryCreate = errors.New("directory creation failed")

	// ErrLivePhotoGenerate indicates the paired-asset pipeline failed.
	ErrLivePhotoGenerate = errors.New("live photo generation failed")

	// ErrPermissionDenied indicates the operation targets a record the
	// store refuses to mutate (roots, the default folder).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrFolderNotFound indicates the addressed folder has no record.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrCorrupt indicates a manifest exists but cannot be trusted:
	// malformed JSON, an unsupported schema version, or a checksum
	// mismatch. Never treated as an empty folder.
	ErrCorrupt = errors.New("manifest corrupt")
)

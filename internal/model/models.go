package model

import (
	"strings"
	"time"
)

// FileType classifies entries stored in a vault folder.
// The photo root uses image/livePhoto/video; the files root uses the
// document kinds plus picture/film for generic media.
type FileType string

const (
	TypeImage       FileType = "image"
	TypeLivePhoto   FileType = "livePhoto"
	TypeVideo       FileType = "video"
	TypeAudio       FileType = "audio"
	TypePDF         FileType = "pdf"
	TypeWord        FileType = "word"
	TypeSpreadsheet FileType = "spreadsheet"
	TypePicture     FileType = "picture"
	TypeFilm        FileType = "film"
	TypeEmpty       FileType = "empty"
)

// RootKind identifies one of the two top-level vault trees.
type RootKind string

const (
	PhotoRoot RootKind = "PhotoVault"
	FilesRoot RootKind = "FilesVault"
)

// DefaultFolderName is the subfolder bootstrapped under each fresh root.
const DefaultFolderName = "Main Folder"

// File is an immutable record of a stored item. It is created when the
// backing file is materialized and removed when the entry is deleted from
// its owning folder; it is never mutated in between.
type File struct {
	ID        string    `json:"id"`
	Type      FileType  `json:"type"`
	Path      string    `json:"path"` // vault-relative path of the backing file or bundle dir
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Folder describes one folder of a vault tree. Path is the slash-separated
// vault-relative path of the parent ("" for a root), so the folder's own
// directory lives at <path>/<name>.
//
// FilesCount and FoldersCount are direct-children counts, except on the two
// root records where they are vault-wide aggregates.
type Folder struct {
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	Items         []Item    `json:"items"`
	Timestamp     time.Time `json:"timestamp"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	FilesCount    int       `json:"files_count"`
	FoldersCount  int       `json:"folders_count"`
	IsEditable    bool      `json:"is_editable"`
}

// RelPath returns the folder's own vault-relative path.
func (f *Folder) RelPath() string {
	if f.Path == "" {
		return f.Name
	}
	return f.Path + "/" + f.Name
}

// IsRoot reports whether this record is one of the two root records.
func (f *Folder) IsRoot() bool {
	return f.Path == "" && (f.Name == string(PhotoRoot) || f.Name == string(FilesRoot))
}

// Root returns the root kind this folder belongs to, derived from the
// first element of its vault-relative path.
func (f *Folder) Root() RootKind {
	rel := f.RelPath()
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		rel = rel[:i]
	}
	return RootKind(rel)
}

// Equal reports record identity: two folder records are the same entity
// when name, parent path and creation timestamp all match.
func (f *Folder) Equal(other *Folder) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Name == other.Name && f.Path == other.Path && f.Timestamp.Equal(other.Timestamp)
}

// Clone returns a deep copy. Mutating the copy leaves the receiver intact;
// the store applies batch outcomes to a clone before committing.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	out := *f
	out.Items = make([]Item, len(f.Items))
	for i, it := range f.Items {
		out.Items[i] = it.clone()
	}
	return &out
}

// FindFile returns the file item with the given id, or nil.
func (f *Folder) FindFile(id string) *File {
	for i := range f.Items {
		if fl := f.Items[i].File; fl != nil && fl.ID == id {
			return fl
		}
	}
	return nil
}

// ChildFolder returns the subfolder item with the given name, or nil.
func (f *Folder) ChildFolder(name string) *Folder {
	for i := range f.Items {
		if fd := f.Items[i].Folder; fd != nil && fd.Name == name {
			return fd
		}
	}
	return nil
}

// extByType maps a file type to its default stored extension.
var extByType = map[FileType]string{
	TypeImage:       "jpg",
	TypeVideo:       "mp4",
	TypeAudio:       "m4a",
	TypePDF:         "pdf",
	TypeWord:        "docx",
	TypeSpreadsheet: "xlsx",
	TypePicture:     "png",
	TypeFilm:        "mov",
	TypeEmpty:       "bin",
}

// Extension returns the default stored extension for a type. Live photos
// have no extension: they occupy a bundle directory named by id.
func (t FileType) Extension() string {
	return extByType[t]
}

// ClassifyExtension maps a filename extension (with or without the leading
// dot) to the file type used in the given root. Unknown extensions map to
// TypeEmpty.
func ClassifyExtension(ext string, root RootKind) FileType {
	e := strings.ToLower(strings.TrimPrefix(ext, "."))
	switch e {
	case "jpg", "jpeg", "heic", "png", "gif", "webp":
		if root == FilesRoot {
			return TypePicture
		}
		return TypeImage
	case "mp4", "mov", "m4v", "avi":
		if root == FilesRoot {
			return TypeFilm
		}
		return TypeVideo
	case "m4a", "mp3", "wav", "aac", "flac":
		return TypeAudio
	case "pdf":
		return TypePDF
	case "doc", "docx", "rtf", "txt":
		return TypeWord
	case "xls", "xlsx", "csv", "numbers":
		return TypeSpreadsheet
	default:
		return TypeEmpty
	}
}

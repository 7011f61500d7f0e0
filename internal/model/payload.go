package model

// Payload is one item of a save batch. Implementations declare the file
// type the store will record and a display name; the store assigns the id
// and the storage location.
type Payload interface {
	// FileType returns the type recorded in the manifest.
	FileType() FileType
	// DisplayName returns the user-visible name for the new record.
	DisplayName() string
}

// PhotoData is an in-memory captured photo (JPEG bytes).
type PhotoData struct {
	Name string
	Data []byte
}

func (p PhotoData) FileType() FileType { return TypeImage }
func (p PhotoData) DisplayName() string { return p.Name }

// FileSource is a file already on disk, copied into the vault with a
// declared type (video, audio, pdf, word, spreadsheet, picture, film...).
type FileSource struct {
	Name       string
	Type       FileType
	SourcePath string
}

func (f FileSource) FileType() FileType { return f.Type }
func (f FileSource) DisplayName() string { return f.Name }

// LivePhotoSource is the raw material of a live photo: a video clip and an
// optional still. When PhotoPath is empty the still is derived from the
// clip during synthesis.
type LivePhotoSource struct {
	Name      string
	PhotoPath string
	VideoPath string
}

func (l LivePhotoSource) FileType() FileType { return TypeLivePhoto }
func (l LivePhotoSource) DisplayName() string { return l.Name }

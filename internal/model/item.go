package model

import (
	"encoding/json"
	"fmt"
)

// Item is one ordered entry of a folder: either a file or a nested folder,
// never both. The zero Item is invalid.
type Item struct {
	File   *File
	Folder *Folder
}

// FileItem wraps a file record as a folder item.
func FileItem(f *File) Item { return Item{File: f} }

// FolderItem wraps a folder record as a folder item.
func FolderItem(f *Folder) Item { return Item{Folder: f} }

func (it Item) clone() Item {
	if it.File != nil {
		f := *it.File
		return Item{File: &f}
	}
	return Item{Folder: it.Folder.Clone()}
}

// itemJSON is the wire form of Item. The kind discriminator keeps the
// manifest self-describing without guessing from field presence.
type itemJSON struct {
	Kind   string  `json:"kind"`
	File   *File   `json:"file,omitempty"`
	Folder *Folder `json:"folder,omitempty"`
}

// MarshalJSON encodes the item with its kind discriminator.
func (it Item) MarshalJSON() ([]byte, error) {
	switch {
	case it.File != nil && it.Folder != nil:
		return nil, fmt.Errorf("item holds both a file and a folder")
	case it.File != nil:
		return json.Marshal(itemJSON{Kind: "file", File: it.File})
	case it.Folder != nil:
		return json.Marshal(itemJSON{Kind: "folder", Folder: it.Folder})
	default:
		return nil, fmt.Errorf("item holds neither a file nor a folder")
	}
}

// UnmarshalJSON decodes the discriminated wire form.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w itemJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "file":
		if w.File == nil {
			return fmt.Errorf("file item without file payload")
		}
		*it = Item{File: w.File}
	case "folder":
		if w.Folder == nil {
			return fmt.Errorf("folder item without folder payload")
		}
		*it = Item{Folder: w.Folder}
	default:
		return fmt.Errorf("unknown item kind %q", w.Kind)
	}
	return nil
}

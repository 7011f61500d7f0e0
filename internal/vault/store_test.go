package vault_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pv-go/internal/manifest"
	"pv-go/internal/model"
	"pv-go/internal/testutil"
	"pv-go/internal/vault"
)

const (
	photoRootRel  = "PhotoVault"
	mainFolderRel = "PhotoVault/Main Folder"
)

func readFolder(t *testing.T, s *vault.Store, rel string) *model.Folder {
	t.Helper()
	f, err := s.ReadFolder(rel)
	if err != nil {
		t.Fatalf("ReadFolder(%q) error = %v", rel, err)
	}
	return f
}

func TestNewStore_Bootstrap(t *testing.T) {
	t.Run("creates both roots with a default folder", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		for _, kind := range []model.RootKind{model.PhotoRoot, model.FilesRoot} {
			root := store.Root(kind)
			if root.Name != string(kind) {
				t.Errorf("root name = %q, want %q", root.Name, kind)
			}
			if root.FoldersCount != 1 {
				t.Errorf("%s folders_count = %d, want 1", kind, root.FoldersCount)
			}
			if root.FilesCount != 0 {
				t.Errorf("%s files_count = %d, want 0", kind, root.FilesCount)
			}
			if root.IsEditable {
				t.Errorf("%s is editable, want not editable", kind)
			}
			main := root.ChildFolder(model.DefaultFolderName)
			if main == nil {
				t.Fatalf("%s has no %q child", kind, model.DefaultFolderName)
			}
			if main.IsEditable {
				t.Errorf("%q is editable, want not editable", model.DefaultFolderName)
			}
			if _, err := os.Stat(filepath.Join(dir, string(kind), model.DefaultFolderName)); err != nil {
				t.Errorf("default folder directory missing: %v", err)
			}
		}
	})

	t.Run("reopening an existing vault keeps prior state", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)
		if _, err := store.CreateFolder(mainFolderRel, "Trip"); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}

		reopened, err := vault.NewStore(dir, manifest.NewSidecarStore(dir), testutil.NewStubSynthesizer(), nil,
			vault.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), 4)
		if err != nil {
			t.Fatalf("NewStore() reopen error = %v", err)
		}
		root := reopened.Root(model.PhotoRoot)
		if root.FoldersCount != 2 {
			t.Errorf("reopened root folders_count = %d, want 2", root.FoldersCount)
		}
	})

	t.Run("corrupt root manifest fails construction", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, photoRootRel), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, photoRootRel, manifest.FileName), []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := vault.NewStore(dir, manifest.NewSidecarStore(dir), testutil.NewStubSynthesizer(), nil,
			vault.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), 4)
		if !errors.Is(err, vault.ErrCorrupt) {
			t.Fatalf("NewStore() error = %v, want ErrCorrupt", err)
		}
	})
}

func TestStore_CreateFolder(t *testing.T) {
	t.Run("under the default folder updates holder and root counts", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		trip, err := store.CreateFolder(mainFolderRel, "Trip")
		if err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		if got := trip.RelPath(); got != "PhotoVault/Main Folder/Trip" {
			t.Errorf("new folder rel path = %q", got)
		}
		if !trip.IsEditable {
			t.Error("new folder not editable, want editable")
		}
		if _, err := os.Stat(filepath.Join(dir, "PhotoVault", "Main Folder", "Trip")); err != nil {
			t.Errorf("directory missing: %v", err)
		}

		main := readFolder(t, store, mainFolderRel)
		if main.FoldersCount != 1 {
			t.Errorf("holder folders_count = %d, want 1", main.FoldersCount)
		}
		root := store.Root(model.PhotoRoot)
		if root.FoldersCount != 2 {
			t.Errorf("root folders_count = %d, want 2", root.FoldersCount)
		}
	})

	t.Run("under the root increments the aggregate exactly once", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		if _, err := store.CreateFolder(photoRootRel, "Inbox"); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		root := store.Root(model.PhotoRoot)
		if root.FoldersCount != 2 {
			t.Errorf("root folders_count = %d, want 2", root.FoldersCount)
		}
		if root.ChildFolder("Inbox") == nil {
			t.Error("root items missing new folder")
		}
	})

	t.Run("nested creation still adds one to the root aggregate", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		if _, err := store.CreateFolder(mainFolderRel, "A"); err != nil {
			t.Fatal(err)
		}
		if _, err := store.CreateFolder("PhotoVault/Main Folder/A", "B"); err != nil {
			t.Fatal(err)
		}

		a := readFolder(t, store, "PhotoVault/Main Folder/A")
		if a.FoldersCount != 1 {
			t.Errorf("A folders_count = %d, want 1", a.FoldersCount)
		}
		main := readFolder(t, store, mainFolderRel)
		if main.FoldersCount != 1 {
			t.Errorf("Main Folder folders_count = %d, want 1", main.FoldersCount)
		}
		root := store.Root(model.PhotoRoot)
		if root.FoldersCount != 3 {
			t.Errorf("root folders_count = %d, want 3", root.FoldersCount)
		}
	})

	t.Run("duplicate name is rejected", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		if _, err := store.CreateFolder(mainFolderRel, "Trip"); err != nil {
			t.Fatal(err)
		}
		_, err := store.CreateFolder(mainFolderRel, "Trip")
		if !errors.Is(err, vault.ErrDirectoryCreate) {
			t.Fatalf("CreateFolder() duplicate error = %v, want ErrDirectoryCreate", err)
		}
	})

	t.Run("invalid names and parents are rejected", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		if _, err := store.CreateFolder(mainFolderRel, "a/b"); !errors.Is(err, vault.ErrInvalidPath) {
			t.Errorf("separator name error = %v, want ErrInvalidPath", err)
		}
		if _, err := store.CreateFolder(mainFolderRel, ""); !errors.Is(err, vault.ErrInvalidPath) {
			t.Errorf("empty name error = %v, want ErrInvalidPath", err)
		}
		if _, err := store.CreateFolder("Elsewhere", "X"); !errors.Is(err, vault.ErrInvalidPath) {
			t.Errorf("foreign root error = %v, want ErrInvalidPath", err)
		}
		if _, err := store.CreateFolder("PhotoVault/Nope", "X"); !errors.Is(err, vault.ErrFolderNotFound) {
			t.Errorf("missing parent error = %v, want ErrFolderNotFound", err)
		}
		if _, err := store.CreateFolder("PhotoVault/../escape", "X"); !errors.Is(err, vault.ErrInvalidPath) {
			t.Errorf("escaping parent error = %v, want ErrInvalidPath", err)
		}
	})
}

func TestStore_SaveItems(t *testing.T) {
	ctx := context.Background()

	t.Run("saves a photo and sets the thumbnail", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "sunset", Data: []byte("jpeg bytes")},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("results len = %d, want 1", len(results))
		}
		r := results[0]
		if r.Status != vault.StatusCreated {
			t.Fatalf("status = %q, err = %v, want created", r.Status, r.Err)
		}
		if r.File.Type != model.TypeImage {
			t.Errorf("file type = %q, want image", r.File.Type)
		}

		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(r.File.Path)))
		if err != nil {
			t.Fatalf("backing file: %v", err)
		}
		if string(data) != "jpeg bytes" {
			t.Errorf("backing file content = %q", data)
		}

		main := readFolder(t, store, mainFolderRel)
		if main.FilesCount != 1 {
			t.Errorf("folder files_count = %d, want 1", main.FilesCount)
		}
		if main.ThumbnailPath != r.File.Path {
			t.Errorf("thumbnail = %q, want %q", main.ThumbnailPath, r.File.Path)
		}
		root := store.Root(model.PhotoRoot)
		if root.FilesCount != 1 {
			t.Errorf("root files_count = %d, want 1", root.FilesCount)
		}
	})

	t.Run("existing destination reports exists and changes nothing", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		// The stub generator hands out id-1 first; occupy its destination.
		dest := filepath.Join(dir, "PhotoVault", "Main Folder", "id-1.jpg")
		if err := os.WriteFile(dest, []byte("already here"), 0o644); err != nil {
			t.Fatal(err)
		}

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "dup", Data: []byte("new bytes")},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		if results[0].Status != vault.StatusExists {
			t.Fatalf("status = %q, want exists", results[0].Status)
		}

		data, _ := os.ReadFile(dest)
		if string(data) != "already here" {
			t.Errorf("destination overwritten: %q", data)
		}
		main := readFolder(t, store, mainFolderRel)
		if main.FilesCount != 0 {
			t.Errorf("folder files_count = %d, want 0", main.FilesCount)
		}
		if main.ThumbnailPath != "" {
			t.Errorf("thumbnail = %q, want unset", main.ThumbnailPath)
		}
	})

	t.Run("mixed batch commits the successes only", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "ok", Data: []byte("a")},
			model.FileSource{Name: "gone", Type: model.TypeVideo, SourcePath: filepath.Join(t.TempDir(), "missing.mp4")},
			model.LivePhotoSource{Name: "pair", PhotoPath: "p.jpg", VideoPath: "v.mov"},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}

		if results[0].Status != vault.StatusCreated {
			t.Errorf("photo status = %q, err = %v", results[0].Status, results[0].Err)
		}
		if results[1].Status != vault.StatusFailed || !errors.Is(results[1].Err, vault.ErrFileSave) {
			t.Errorf("missing source status = %q, err = %v, want failed ErrFileSave", results[1].Status, results[1].Err)
		}
		if results[2].Status != vault.StatusCreated {
			t.Errorf("live photo status = %q, err = %v", results[2].Status, results[2].Err)
		}
		if results[2].File.Type != model.TypeLivePhoto {
			t.Errorf("live photo type = %q", results[2].File.Type)
		}

		main := readFolder(t, store, mainFolderRel)
		if main.FilesCount != 2 {
			t.Errorf("folder files_count = %d, want 2", main.FilesCount)
		}
		if main.ThumbnailPath != results[0].File.Path {
			t.Errorf("thumbnail = %q, want first created %q", main.ThumbnailPath, results[0].File.Path)
		}
		root := store.Root(model.PhotoRoot)
		if root.FilesCount != 2 {
			t.Errorf("root files_count = %d, want 2", root.FilesCount)
		}
	})

	t.Run("live photo bundle carries the fixed member names", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.LivePhotoSource{Name: "pair", PhotoPath: "p.jpg", VideoPath: "v.mov"},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		if results[0].Status != vault.StatusCreated {
			t.Fatalf("status = %q, err = %v", results[0].Status, results[0].Err)
		}

		bundle := filepath.Join(dir, filepath.FromSlash(results[0].File.Path))
		for _, name := range []string{"keyPhoto.jpg", "video.mov"} {
			if _, err := os.Stat(filepath.Join(bundle, name)); err != nil {
				t.Errorf("bundle member %s: %v", name, err)
			}
		}
	})

	t.Run("saving into a files-root folder keeps document types", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		src := filepath.Join(t.TempDir(), "report.pdf")
		if err := os.WriteFile(src, []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
		results, err := store.SaveItems(ctx, "FilesVault/Main Folder", []model.Payload{
			model.FileSource{Name: "report", Type: model.TypePDF, SourcePath: src},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		if results[0].Status != vault.StatusCreated {
			t.Fatalf("status = %q, err = %v", results[0].Status, results[0].Err)
		}
		if got := filepath.Ext(results[0].File.Path); got != ".pdf" {
			t.Errorf("extension = %q, want .pdf", got)
		}
		root := store.Root(model.FilesRoot)
		if root.FilesCount != 1 {
			t.Errorf("files root files_count = %d, want 1", root.FilesCount)
		}
	})

	t.Run("saving directly into a root updates its aggregate once", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, photoRootRel, []model.Payload{
			model.PhotoData{Name: "loose", Data: []byte("x")},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		if results[0].Status != vault.StatusCreated {
			t.Fatalf("status = %q, err = %v", results[0].Status, results[0].Err)
		}
		root := store.Root(model.PhotoRoot)
		if root.FilesCount != 1 {
			t.Errorf("root files_count = %d, want 1", root.FilesCount)
		}
	})

	t.Run("notify fires once per payload", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		var seen int
		_, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "a", Data: []byte("a")},
			model.PhotoData{Name: "b", Data: []byte("b")},
			model.PhotoData{Name: "c", Data: []byte("c")},
		}, func(vault.SaveResult) { seen++ })
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		if seen != 3 {
			t.Errorf("notify count = %d, want 3", seen)
		}
	})

	t.Run("cancelled context fails the batch without committing", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		results, err := store.SaveItems(cancelled, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "a", Data: []byte("a")},
			model.PhotoData{Name: "b", Data: []byte("b")},
		}, nil)
		if err != nil {
			t.Fatalf("SaveItems() error = %v", err)
		}
		for i, r := range results {
			if r.Status != vault.StatusFailed {
				t.Errorf("results[%d].Status = %q, want failed", i, r.Status)
			}
		}
		main := readFolder(t, store, mainFolderRel)
		if main.FilesCount != 0 {
			t.Errorf("folder files_count = %d, want 0", main.FilesCount)
		}
	})

	t.Run("unknown folder fails the batch", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		_, err := store.SaveItems(ctx, "PhotoVault/Nope", []model.Payload{
			model.PhotoData{Name: "a", Data: []byte("a")},
		}, nil)
		if !errors.Is(err, vault.ErrFolderNotFound) {
			t.Fatalf("SaveItems() error = %v, want ErrFolderNotFound", err)
		}
	})
}

func TestStore_DeleteFiles(t *testing.T) {
	ctx := context.Background()

	savePhoto := func(t *testing.T, s *vault.Store, name string) *model.File {
		t.Helper()
		results, err := s.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: name, Data: []byte(name)},
		}, nil)
		if err != nil || results[0].Status != vault.StatusCreated {
			t.Fatalf("save %s: err = %v, status = %v", name, err, results[0].Status)
		}
		return results[0].File
	}

	t.Run("removes entry, backing file and counters", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)
		f := savePhoto(t, store, "one")

		results, err := store.DeleteFiles(mainFolderRel, []string{f.ID})
		if err != nil {
			t.Fatalf("DeleteFiles() error = %v", err)
		}
		if results[0].Status != vault.DeleteRemoved {
			t.Fatalf("status = %q, err = %v", results[0].Status, results[0].Err)
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f.Path))); !os.IsNotExist(err) {
			t.Errorf("backing file still present: %v", err)
		}

		main := readFolder(t, store, mainFolderRel)
		if main.FilesCount != 0 {
			t.Errorf("folder files_count = %d, want 0", main.FilesCount)
		}
		if main.FindFile(f.ID) != nil {
			t.Error("entry still in manifest")
		}
		root := store.Root(model.PhotoRoot)
		if root.FilesCount != 0 {
			t.Errorf("root files_count = %d, want 0", root.FilesCount)
		}
	})

	t.Run("missing backing file is a failure and keeps the entry", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)
		f := savePhoto(t, store, "one")

		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(f.Path))); err != nil {
			t.Fatal(err)
		}

		results, err := store.DeleteFiles(mainFolderRel, []string{f.ID})
		if err != nil {
			t.Fatalf("DeleteFiles() error = %v", err)
		}
		if results[0].Status != vault.DeleteFailed {
			t.Fatalf("status = %q, want failed", results[0].Status)
		}

		main := readFolder(t, store, mainFolderRel)
		if main.FindFile(f.ID) == nil {
			t.Error("entry dropped despite failed unlink")
		}
		if main.FilesCount != 1 {
			t.Errorf("folder files_count = %d, want 1", main.FilesCount)
		}
	})

	t.Run("unknown id is a failure among successes", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)
		f := savePhoto(t, store, "one")

		results, err := store.DeleteFiles(mainFolderRel, []string{"nope", f.ID})
		if err != nil {
			t.Fatalf("DeleteFiles() error = %v", err)
		}
		if results[0].Status != vault.DeleteFailed {
			t.Errorf("unknown id status = %q, want failed", results[0].Status)
		}
		if results[1].Status != vault.DeleteRemoved {
			t.Errorf("known id status = %q, err = %v, want removed", results[1].Status, results[1].Err)
		}

		main := readFolder(t, store, mainFolderRel)
		if main.FilesCount != 0 {
			t.Errorf("folder files_count = %d, want 0", main.FilesCount)
		}
	})

	t.Run("live photo deletion removes the bundle directory", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.LivePhotoSource{Name: "pair", PhotoPath: "p", VideoPath: "v"},
		}, nil)
		if err != nil || results[0].Status != vault.StatusCreated {
			t.Fatalf("save: err = %v, status = %v", err, results[0].Status)
		}
		f := results[0].File

		del, err := store.DeleteFiles(mainFolderRel, []string{f.ID})
		if err != nil {
			t.Fatalf("DeleteFiles() error = %v", err)
		}
		if del[0].Status != vault.DeleteRemoved {
			t.Fatalf("status = %q, err = %v", del[0].Status, del[0].Err)
		}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f.Path))); !os.IsNotExist(err) {
			t.Errorf("bundle still present: %v", err)
		}
	})
}

func TestStore_DeleteFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("full lifecycle keeps root aggregates in sync", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		// Fresh photo root: the default folder only.
		if got := store.Root(model.PhotoRoot).FoldersCount; got != 1 {
			t.Fatalf("bootstrap root folders_count = %d, want 1", got)
		}

		trip, err := store.CreateFolder(mainFolderRel, "Trip")
		if err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		if got := readFolder(t, store, mainFolderRel).FoldersCount; got != 1 {
			t.Errorf("Main Folder folders_count = %d, want 1", got)
		}
		if got := store.Root(model.PhotoRoot).FoldersCount; got != 2 {
			t.Errorf("root folders_count = %d, want 2", got)
		}

		results, err := store.SaveItems(ctx, trip.RelPath(), []model.Payload{
			model.PhotoData{Name: "pic", Data: []byte("img")},
		}, nil)
		if err != nil || results[0].Status != vault.StatusCreated {
			t.Fatalf("save: err = %v, status = %v", err, results[0].Status)
		}
		tripRec := readFolder(t, store, trip.RelPath())
		if tripRec.FilesCount != 1 {
			t.Errorf("Trip files_count = %d, want 1", tripRec.FilesCount)
		}
		if tripRec.ThumbnailPath == "" {
			t.Error("Trip thumbnail unset after save")
		}
		if got := store.Root(model.PhotoRoot).FilesCount; got != 1 {
			t.Errorf("root files_count = %d, want 1", got)
		}

		if err := store.DeleteFolder(trip.RelPath()); err != nil {
			t.Fatalf("DeleteFolder() error = %v", err)
		}
		root := store.Root(model.PhotoRoot)
		if root.FoldersCount != 1 {
			t.Errorf("root folders_count after delete = %d, want 1", root.FoldersCount)
		}
		if root.FilesCount != 0 {
			t.Errorf("root files_count after delete = %d, want 0", root.FilesCount)
		}
		if got := readFolder(t, store, mainFolderRel).FoldersCount; got != 0 {
			t.Errorf("Main Folder folders_count after delete = %d, want 0", got)
		}
		if _, err := store.ReadFolder(trip.RelPath()); !errors.Is(err, vault.ErrFolderNotFound) {
			t.Errorf("deleted folder read error = %v, want ErrFolderNotFound", err)
		}
	})

	t.Run("recorded counters drive the aggregate decrement", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		a, err := store.CreateFolder(mainFolderRel, "A")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.CreateFolder(a.RelPath(), "B"); err != nil {
			t.Fatal(err)
		}
		if _, err := store.SaveItems(ctx, a.RelPath(), []model.Payload{
			model.PhotoData{Name: "x", Data: []byte("x")},
			model.PhotoData{Name: "y", Data: []byte("y")},
		}, nil); err != nil {
			t.Fatal(err)
		}

		// Root sees 3 folders (Main Folder, A, B) and 2 files.
		root := store.Root(model.PhotoRoot)
		if root.FoldersCount != 3 || root.FilesCount != 2 {
			t.Fatalf("root counts = %d folders / %d files, want 3/2", root.FoldersCount, root.FilesCount)
		}

		// Deleting A drops 1 + A.folders_count = 2 folders, 2 files.
		if err := store.DeleteFolder(a.RelPath()); err != nil {
			t.Fatalf("DeleteFolder() error = %v", err)
		}
		root = store.Root(model.PhotoRoot)
		if root.FoldersCount != 1 {
			t.Errorf("root folders_count = %d, want 1", root.FoldersCount)
		}
		if root.FilesCount != 0 {
			t.Errorf("root files_count = %d, want 0", root.FilesCount)
		}
	})

	t.Run("nested deletion updates the parent manifest", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		a, err := store.CreateFolder(mainFolderRel, "A")
		if err != nil {
			t.Fatal(err)
		}
		b, err := store.CreateFolder(a.RelPath(), "B")
		if err != nil {
			t.Fatal(err)
		}

		if err := store.DeleteFolder(b.RelPath()); err != nil {
			t.Fatalf("DeleteFolder() error = %v", err)
		}
		aRec := readFolder(t, store, a.RelPath())
		if aRec.FoldersCount != 0 {
			t.Errorf("A folders_count = %d, want 0", aRec.FoldersCount)
		}
		if aRec.ChildFolder("B") != nil {
			t.Error("A still lists B")
		}
		if _, err := os.Stat(filepath.Join(dir, "PhotoVault", "Main Folder", "A", "B")); !os.IsNotExist(err) {
			t.Errorf("B directory still present: %v", err)
		}
	})

	t.Run("refuses the default folder and the roots", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		if err := store.DeleteFolder(mainFolderRel); !errors.Is(err, vault.ErrPermissionDenied) {
			t.Errorf("default folder delete error = %v, want ErrPermissionDenied", err)
		}
		if err := store.DeleteFolder(photoRootRel); !errors.Is(err, vault.ErrPermissionDenied) {
			t.Errorf("root delete error = %v, want ErrPermissionDenied", err)
		}
	})
}

func TestStore_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("clean vault reports no issues", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)
		if _, err := store.CreateFolder(mainFolderRel, "Trip"); err != nil {
			t.Fatal(err)
		}

		issues, err := store.Verify()
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if len(issues) != 0 {
			t.Errorf("issues = %v, want none", issues)
		}
	})

	t.Run("finds corruption, missing manifests and missing files", func(t *testing.T) {
		store, dir := testutil.NewTestStore(t)

		trip, err := store.CreateFolder(mainFolderRel, "Trip")
		if err != nil {
			t.Fatal(err)
		}
		other, err := store.CreateFolder(mainFolderRel, "Other")
		if err != nil {
			t.Fatal(err)
		}
		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "pic", Data: []byte("img")},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}

		// Corrupt one manifest, drop another, unlink a backing file.
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(trip.RelPath()), manifest.FileName), []byte("junk"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(other.RelPath()), manifest.FileName)); err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(results[0].File.Path))); err != nil {
			t.Fatal(err)
		}

		issues, err := store.Verify()
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		kinds := map[vault.IssueKind]int{}
		for _, is := range issues {
			kinds[is.Kind]++
		}
		if kinds[vault.IssueCorruptManifest] != 1 {
			t.Errorf("corrupt manifest issues = %d, want 1 (%v)", kinds[vault.IssueCorruptManifest], issues)
		}
		if kinds[vault.IssueMissingManifest] != 1 {
			t.Errorf("missing manifest issues = %d, want 1 (%v)", kinds[vault.IssueMissingManifest], issues)
		}
		if kinds[vault.IssueMissingFile] != 1 {
			t.Errorf("missing file issues = %d, want 1 (%v)", kinds[vault.IssueMissingFile], issues)
		}
	})
}

func TestStore_ExtractLivePhoto(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips the bundle through the synthesizer", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.LivePhotoSource{Name: "pair", PhotoPath: "p", VideoPath: "v"},
		}, nil)
		if err != nil || results[0].Status != vault.StatusCreated {
			t.Fatalf("save: err = %v, status = %v", err, results[0].Status)
		}

		dest := t.TempDir()
		ident, err := store.ExtractLivePhoto(ctx, mainFolderRel, results[0].File.ID, dest)
		if err != nil {
			t.Fatalf("ExtractLivePhoto() error = %v", err)
		}
		if ident == "" {
			t.Error("identifier empty")
		}
		for _, name := range []string{"keyPhoto.jpg", "video.mov"} {
			if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
				t.Errorf("extracted member %s: %v", name, err)
			}
		}
	})

	t.Run("rejects non-live entries", func(t *testing.T) {
		store, _ := testutil.NewTestStore(t)

		results, err := store.SaveItems(ctx, mainFolderRel, []model.Payload{
			model.PhotoData{Name: "flat", Data: []byte("img")},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.ExtractLivePhoto(ctx, mainFolderRel, results[0].File.ID, t.TempDir()); err == nil {
			t.Fatal("ExtractLivePhoto() on a flat image succeeded, want error")
		}
	})
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pv-go/internal/config"
	"pv-go/internal/database"
	"pv-go/internal/database/migrations"
	"pv-go/internal/encryption"
	"pv-go/internal/importer"
	"pv-go/internal/livephoto"
	"pv-go/internal/manifest"
	"pv-go/internal/mirror"
	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// App is the application layer between the CLI and the vault store.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string arguments, and manages the journal lifecycle on Close.
type App struct {
	cfg       *config.Config
	manifests vault.ManifestStore
	store     *vault.Store
	journal   database.Journal
	encryptor vault.Encryptor
	logger    vault.Logger
	op        *Operation
	logFile   *os.File
}

// New creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Save", "MirrorSync").
// The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.Log.Dir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	manifests, err := manifest.NewStoreFromConfig(cfg.Manifest, cfg.Vault.RootDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating manifest store: %w", err)
	}

	var cipher vault.Encryptor
	if cfg.Encryption.Enabled {
		cipher, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
	}

	synth := livephoto.NewGenerator(logger, vault.UUIDGenerator{})

	store, err := vault.NewStore(cfg.Vault.RootDir, manifests, synth, cipher,
		logger, vault.RealClock{}, vault.UUIDGenerator{}, cfg.Vault.Workers)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating vault store: %w", err)
	}

	journal, err := database.NewJournalFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	if err := journal.CheckMigrations(); err != nil {
		if errors.Is(err, migrations.ErrNoVersion) {
			// Brand-new journal: bring the schema up instead of refusing to run.
			if err := journal.MigrateUp(); err != nil {
				journal.Close()
				logFile.Close()
				return nil, fmt.Errorf("initializing journal schema: %w", err)
			}
		} else {
			journal.Close()
			logFile.Close()
			return nil, fmt.Errorf("journal schema out of date: %w", err)
		}
	}

	return &App{
		cfg:       cfg,
		manifests: manifests,
		store:     store,
		journal:   journal,
		encryptor: cipher,
		logger:    logger,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

// persistOperation saves the operation to the journal, giving it an
// auto-increment ID. This should only be called for vault-mutating commands.
func (a *App) persistOperation() error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	row, err := a.journal.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = row.ID
	return nil
}

// failed marks the journal row to finish with an error status and passes
// the error through.
func (a *App) failed(err error) error {
	a.op.Status = database.StatusError
	return err
}

// CreateFolder creates a subfolder under parentRel.
func (a *App) CreateFolder(parentRel, name string) (*model.Folder, error) {
	a.op.Parameters = parentRel + "/" + name
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	f, err := a.store.CreateFolder(parentRel, name)
	if err != nil {
		return nil, a.failed(err)
	}
	return f, nil
}

// ListFolder returns the folder record at relPath.
func (a *App) ListFolder(relPath string) (*model.Folder, error) {
	return a.store.ReadFolder(relPath)
}

// RemoveFolder deletes the folder at relPath with everything under it.
func (a *App) RemoveFolder(relPath string) error {
	a.op.Parameters = relPath
	if err := a.persistOperation(); err != nil {
		return err
	}
	if err := a.store.DeleteFolder(relPath); err != nil {
		return a.failed(err)
	}
	return nil
}

// SaveFiles copies the given source files into the folder at folderRel.
// Each file's type follows its extension and the destination root; an
// extension no type claims rejects the whole batch before anything is
// written. notify, when non-nil, reports per-item outcomes as they complete.
func (a *App) SaveFiles(ctx context.Context, folderRel string, paths []string, notify func(vault.SaveResult)) ([]vault.SaveResult, error) {
	a.op.Parameters = folderRel
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	head, _, _ := strings.Cut(folderRel, "/")
	root := model.RootKind(head)

	payloads := make([]model.Payload, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		ext := filepath.Ext(base)
		ft := model.ClassifyExtension(ext, root)
		if ft == model.TypeEmpty {
			return nil, a.failed(fmt.Errorf("unsupported file type %q: %s", ext, base))
		}
		payloads = append(payloads, model.FileSource{
			Name:       strings.TrimSuffix(base, ext),
			Type:       ft,
			SourcePath: p,
		})
	}

	results, err := a.store.SaveItems(ctx, folderRel, payloads, notify)
	if err != nil {
		return results, a.failed(err)
	}
	return results, nil
}

// RemoveFiles deletes the entries with the given ids from the folder at
// folderRel.
func (a *App) RemoveFiles(folderRel string, ids []string) ([]vault.DeleteResult, error) {
	a.op.Parameters = folderRel
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	results, err := a.store.DeleteFiles(folderRel, ids)
	if err != nil {
		return results, a.failed(err)
	}
	return results, nil
}

// MakeLivePhoto pairs a still and a clip into one live photo saved under
// folderRel. photoPath may be empty; the key frame is then derived from the
// clip.
func (a *App) MakeLivePhoto(ctx context.Context, folderRel, name, photoPath, videoPath string) (*model.File, error) {
	a.op.Parameters = folderRel + "/" + name
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	payload := model.LivePhotoSource{Name: name, PhotoPath: photoPath, VideoPath: videoPath}
	results, err := a.store.SaveItems(ctx, folderRel, []model.Payload{payload}, nil)
	if err != nil {
		return nil, a.failed(err)
	}
	res := results[0]
	if res.Status != vault.StatusCreated {
		if res.Err != nil {
			return nil, a.failed(res.Err)
		}
		return nil, a.failed(fmt.Errorf("live photo %s not created: %s", name, res.Status))
	}
	return res.File, nil
}

// ExtractLivePhoto unpacks a live photo's still and clip into destDir and
// returns the shared content identifier.
func (a *App) ExtractLivePhoto(ctx context.Context, folderRel, id, destDir string) (string, error) {
	return a.store.ExtractLivePhoto(ctx, folderRel, id, destDir)
}

// ImportRun drains the inbox, then watches it until ctx is cancelled.
func (a *App) ImportRun(ctx context.Context) (importer.Stats, error) {
	a.op.Parameters = a.cfg.Importer.Inbox
	if err := a.persistOperation(); err != nil {
		return importer.Stats{}, err
	}

	im, err := importer.New(a.store, a.cfg.Importer, a.logger)
	if err != nil {
		return importer.Stats{}, a.failed(err)
	}
	if err := im.Sweep(ctx); err != nil {
		return im.Stats(), a.failed(err)
	}
	if err := im.Start(ctx); err != nil {
		return im.Stats(), a.failed(err)
	}
	<-ctx.Done()
	im.Stop()
	return im.Stats(), nil
}

// MirrorSync pushes the vault to the configured mirror backend. notify,
// when non-nil, reports per-object progress.
func (a *App) MirrorSync(ctx context.Context, notify func(done, total int, res mirror.SyncResult)) ([]mirror.SyncResult, error) {
	a.op.Parameters = a.cfg.Mirror.Type
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	backend, err := mirror.NewBackendFromConfig(ctx, a.cfg.Mirror)
	if err != nil {
		return nil, a.failed(err)
	}
	syncer := mirror.NewSyncer(a.manifests, backend, a.cfg.Vault.RootDir, a.cfg.Vault.Workers, a.logger)
	results, err := syncer.Sync(ctx, notify)
	if err != nil {
		return results, a.failed(err)
	}
	return results, nil
}

// History returns the most recent journal rows.
func (a *App) History(limit int) ([]*database.Operation, error) {
	return a.journal.ListOperations(limit)
}

// Verify walks both trees and reports manifest and backing-file problems.
func (a *App) Verify() ([]vault.Issue, error) {
	return a.store.Verify()
}

// LockInit provisions the encryption key pair protected by the passcode.
func (a *App) LockInit(passcode string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not enabled in the config")
	}
	if err := a.persistOperation(); err != nil {
		return err
	}
	if a.encryptor.IsConfigured() {
		return a.failed(fmt.Errorf("encryption keys already exist"))
	}
	if err := a.encryptor.Setup(passcode); err != nil {
		return a.failed(fmt.Errorf("setting up encryption: %w", err))
	}
	return nil
}

// LockStatus reports whether encryption is enabled and whether key material
// is in place.
func (a *App) LockStatus() (enabled, configured bool) {
	if a.encryptor == nil {
		return false, false
	}
	return true, a.encryptor.IsConfigured()
}

// Close finalizes the journal row for persisted operations and closes all
// resources. A run that never reaches Close leaves its row without a
// terminal status, which is how interrupted commands stay visible.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.journal.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.journal.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

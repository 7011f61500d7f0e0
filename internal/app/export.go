package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pv-go/internal/model"
	"pv-go/internal/vault"
)

// Export copies one file out of the vault into destDir under its display
// name, decrypting when the vault is encrypted. The passcode is ignored for
// unencrypted vaults. Live photo bundles are unpacked with ExtractLivePhoto
// instead. Returns the written path.
func (a *App) Export(folderRel, id, destDir, passcode string) (string, error) {
	folder, err := a.store.ReadFolder(folderRel)
	if err != nil {
		return "", err
	}
	file := folder.FindFile(id)
	if file == nil {
		return "", fmt.Errorf("no entry %q in %s", id, folderRel)
	}
	if file.Type == model.TypeLivePhoto {
		return "", fmt.Errorf("entry %q is a live photo bundle: extract it instead", id)
	}

	var dc vault.DecryptionContext
	if a.encryptor != nil {
		dc, err = a.encryptor.Unlock(passcode)
		if err != nil {
			return "", fmt.Errorf("unlocking vault: %w", err)
		}
	}

	src, err := os.Open(filepath.Join(a.cfg.Vault.RootDir, filepath.FromSlash(file.Path)))
	if err != nil {
		return "", fmt.Errorf("opening vault file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating destination directory: %w", err)
	}
	destPath := filepath.Join(destDir, file.Name+"."+file.Type.Extension())
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("creating destination file: %w", err)
	}
	success := false
	defer func() {
		dest.Close()
		if !success {
			os.Remove(destPath)
		}
	}()

	if dc != nil {
		err = dc.Decrypt(src, dest)
	} else {
		_, err = io.Copy(dest, src)
	}
	if err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	if err := dest.Close(); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	success = true
	return destPath, nil
}

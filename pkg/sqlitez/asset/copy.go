package asset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/otiai10/copy"

	"sqlitez/internal/logging"
)

// copyDatabase writes the bundled database to dest. The plain asset wins,
// then "<asset>.zip" (first file entry), then "<asset>.gz". The file is
// written beside dest and renamed over it, so dest is never half-written.
func copyDatabase(fsys fs.FS, asset, dest string) error {
	timer := logging.StartTimer(logging.CategoryAsset, "copy "+asset)
	defer timer.Stop()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(dest)+"-"+uuid.NewString()+".tmp")
	defer os.Remove(tmp)

	var err error
	switch {
	case exists(fsys, asset):
		logging.Asset("copying database from %s", asset)
		err = copy.Copy(asset, tmp, copy.Options{
			FS:                fsys,
			PermissionControl: copy.AddPermission(0600),
		})
	case exists(fsys, asset+".zip"):
		logging.Asset("extracting database from %s.zip", asset)
		err = extractZip(fsys, asset+".zip", tmp)
	case exists(fsys, asset+".gz"):
		logging.Asset("decompressing database from %s.gz", asset)
		err = extractGzip(fsys, asset+".gz", tmp)
	default:
		return fmt.Errorf("%w: %s (or .zip, .gz archive)", ErrMissingAsset, asset)
	}
	if err != nil {
		return fmt.Errorf("unable to write %s: %w", dest, err)
	}

	// Journals of a replaced database would be replayed into the new one.
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Remove(dest + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("unable to move database into place: %w", err)
	}
	logging.Asset("database copy complete: %s", dest)
	return nil
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}

func extractZip(fsys fs.FS, name, dest string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		logging.AssetDebug("extracting file: '%s'", f.Name)
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeFile(rc, dest)
	}
	return fmt.Errorf("%w: %s", ErrEmptyArchive, name)
}

func extractGzip(fsys fs.FS, name, dest string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()
	return writeFile(zr, dest)
}

func writeFile(r io.Reader, dest string) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

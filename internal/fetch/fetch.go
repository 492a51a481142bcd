// Package fetch downloads bulk-data archives and extracts them into a local
// working tree. Downloads land under <dir>/zips/<product>/ and archives are
// extracted to <dir>/extracted/<product>/<stem>/. Both steps are resumable:
// an existing download of the right size and an extraction that already
// holds data files are reused instead of redone.
package fetch

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tmbulk/internal/catalog"
	"tmbulk/internal/httpx"
)

type Fetcher struct {
	http *httpx.Client
	dir  string
	log  zerolog.Logger
}

func New(dir string, timeout time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		http: httpx.NewClient(httpx.Config{Timeout: timeout, MaxRetries: 3}),
		dir:  dir,
		log:  log,
	}
}

// Download fetches one catalog file to <dir>/zips/<product>/<name> and
// returns the local path. An existing file whose size matches the catalog's
// is reused unless force is set. The body is streamed through a temp file
// and renamed into place, so a killed download never leaves a partial file
// at the final path.
func (f *Fetcher) Download(ctx context.Context, file catalog.File, force bool) (string, error) {
	if file.Name == "" || file.DownloadURL == "" {
		return "", fmt.Errorf("fetch: file name and download URL are required")
	}

	productDir := filepath.Join(f.dir, "zips", file.ProductID)
	if err := os.MkdirAll(productDir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: create %s: %w", productDir, err)
	}
	dest := filepath.Join(productDir, file.Name)

	if st, err := os.Stat(dest); err == nil && !force {
		if file.Size == 0 || st.Size() == file.Size {
			f.log.Info().Str("file", file.Name).Int64("size", st.Size()).Msg("download reused")
			return dest, nil
		}
		f.log.Warn().Str("file", file.Name).
			Int64("have", st.Size()).Int64("want", file.Size).
			Msg("size mismatch, redownloading")
	}

	start := time.Now()
	resp, err := f.http.Get(ctx, file.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("fetch: download %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(productDir, file.Name+".part-*")
	if err != nil {
		return "", fmt.Errorf("fetch: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("fetch: write %s: %w", file.Name, err)
	}
	if file.Size > 0 && written != file.Size {
		return "", fmt.Errorf("fetch: %s: size mismatch: got %d bytes, want %d", file.Name, written, file.Size)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("fetch: finalize %s: %w", file.Name, err)
	}

	f.log.Info().Str("file", file.Name).Int64("size", written).
		Dur("took", time.Since(start)).Msg("download complete")
	return dest, nil
}

// ExtractZip unpacks an archive to <dir>/extracted/<product>/<stem>/ and
// returns the extraction directory. When the directory already contains data
// files the extraction is skipped and the directory reused.
func (f *Fetcher) ExtractZip(zipPath, productID string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	extractDir := filepath.Join(f.dir, "extracted", productID, stem)

	if existing, err := DataFiles(extractDir); err == nil && len(existing) > 0 {
		f.log.Info().Str("dir", extractDir).Int("files", len(existing)).Msg("extraction reused")
		return extractDir, nil
	}
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: create %s: %w", extractDir, err)
	}

	// ErrInsecurePath is tolerated here: extractOne rejects escaping entries
	// individually, with a message naming the offending path.
	zr, err := zip.OpenReader(zipPath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return "", fmt.Errorf("fetch: open %s: %w", zipPath, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := extractOne(zf, extractDir); err != nil {
			return "", fmt.Errorf("fetch: extract %s from %s: %w", zf.Name, filepath.Base(zipPath), err)
		}
	}

	f.log.Info().Str("zip", filepath.Base(zipPath)).Str("dir", extractDir).
		Int("entries", len(zr.File)).Msg("archive extracted")
	return extractDir, nil
}

func extractOne(zf *zip.File, destDir string) error {
	// Reject entries that would escape the extraction directory.
	cleaned := filepath.Clean(filepath.FromSlash(zf.Name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || filepath.IsAbs(cleaned) {
		return fmt.Errorf("unsafe path %q", zf.Name)
	}
	dest := filepath.Join(destDir, cleaned)

	if zf.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// DataFiles returns the .csv and .xml files under dir, sorted by path. A
// missing directory yields an empty list, not an error.
func DataFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".xml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: scan %s: %w", dir, err)
	}
	return files, nil
}

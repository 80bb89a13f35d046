package depmanager

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

type archiveType int

const (
	archiveNone archiveType = iota
	archiveZip
	archiveTarXZ
	archiveTarGZ
)

var errNoTargets = errors.New("no target files found in archive")

func archiveKind(name string) archiveType {
	switch {
	case strings.HasSuffix(name, ".zip"):
		return archiveZip
	case strings.HasSuffix(name, ".tar.xz"):
		return archiveTarXZ
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return archiveTarGZ
	default:
		return archiveNone
	}
}

// extract copies the regular files whose base name is in targets from the archive into destDir.
// Directory structure inside the archive is ignored.
func extract(kind archiveType, archivePath, destDir string, targets map[string]BinaryName) error {
	switch kind {
	case archiveZip:
		return extractZip(archivePath, destDir, targets)
	case archiveTarXZ, archiveTarGZ:
		f, err := os.Open(archivePath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer f.Close()

		var r io.Reader

		if kind == archiveTarXZ {
			if r, err = xz.NewReader(f); err != nil {
				return fmt.Errorf("create xz reader: %w", err)
			}
		} else {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return fmt.Errorf("create gzip reader: %w", err)
			}
			defer gz.Close()

			r = gz
		}

		return extractTar(r, destDir, targets)
	default:
		return fmt.Errorf("unsupported archive format")
	}
}

func extractZip(zipPath, destDir string, targets map[string]BinaryName) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	found := 0

	for _, file := range reader.File {
		name := filepath.Base(file.Name)
		if _, ok := targets[name]; !ok || file.FileInfo().IsDir() {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("open %s in zip: %w", name, err)
		}

		err = writeFile(filepath.Join(destDir, name), rc)
		rc.Close()

		if err != nil {
			return err
		}

		if found++; found == len(targets) {
			return nil
		}
	}

	return missing(found, len(targets))
}

func extractTar(r io.Reader, destDir string, targets map[string]BinaryName) error {
	tr := tar.NewReader(r)
	found := 0

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		name := filepath.Base(header.Name)
		if _, ok := targets[name]; !ok || header.Typeflag != tar.TypeReg {
			continue
		}

		if err := writeFile(filepath.Join(destDir, name), tr); err != nil {
			return err
		}

		if found++; found == len(targets) {
			return nil
		}
	}

	return missing(found, len(targets))
}

func missing(found, want int) error {
	if found == 0 {
		return errNoTargets
	}

	if found < want {
		return fmt.Errorf("%w: found %d of %d", errNoTargets, found, want)
	}

	return nil
}

// writeFile writes r to a sibling temp file and renames it over dest, so a running
// binary is never truncated in place.
func writeFile(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("create dest file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("extract %s: %w", filepath.Base(dest), err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close %s: %w", filepath.Base(dest), err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("rename %s: %w", filepath.Base(dest), err)
	}

	return nil
}

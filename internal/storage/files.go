package storage

import (
	"archive/zip"
	"context"
	"crypto/md5"  //nolint:gosec // content fingerprint, not security
	"crypto/sha1" //nolint:gosec // content fingerprint, not security
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"audiograb/internal/errs"
)

// Hash algorithms accepted by Checksum.
const (
	HashMD5    = "md5"
	HashSHA1   = "sha1"
	HashSHA256 = "sha256"
)

// Archive writes the given files into a ZIP at dst. Entries are stored under their base
// names; a clashing name gets a numeric suffix. It returns the archive size.
func Archive(ctx context.Context, dst string, paths []string) (int64, error) {
	tmp := dst + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	if err := writeZip(ctx, out, paths); err != nil {
		out.Close()
		os.Remove(tmp)

		return 0, err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)

		return 0, fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)

		return 0, fmt.Errorf("rename archive: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	return info.Size(), nil
}

func writeZip(ctx context.Context, w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	used := make(map[string]int, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("archive: %w", err)
		}

		name := entryName(filepath.Base(path), used)

		if err := addFile(zw, path, name); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	return nil
}

func entryName(base string, used map[string]int) string {
	n := used[base]
	used[base] = n + 1

	if n == 0 {
		return base
	}

	ext := filepath.Ext(base)

	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	header.Name = name
	header.Method = zip.Deflate

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	return nil
}

// Checksum returns the hex digest of the file at path.
func Checksum(path, algorithm string) (string, error) {
	var h hash.Hash

	switch strings.ToLower(algorithm) {
	case HashMD5:
		h = md5.New() //nolint:gosec // content fingerprint
	case HashSHA1:
		h = sha1.New() //nolint:gosec // content fingerprint
	case HashSHA256, "":
		h = sha256.New()
	default:
		return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedHash, algorithm)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CleanupDir removes regular files directly inside dir that are older than maxAge and
// carry one of exts. Empty exts matches every file. It returns how many files matched
// and how many were deleted.
func CleanupDir(dir string, maxAge time.Duration, exts []string) (checked, deleted int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}

		checked++

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			deleted++
		}
	}

	return checked, deleted, nil
}

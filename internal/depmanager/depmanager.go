// Package depmanager installs and updates the external tools the pipeline drives:
// yt-dlp, ffmpeg, ffprobe and deno.
// Checksums are used only to detect when new versions are available, not to verify downloads.
package depmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/errs"
)

// BinaryName represents the name of a binary dependency.
type BinaryName string

// Binary dependency names.
const (
	BinaryYTdlp   BinaryName = "yt-dlp"
	BinaryFFmpeg  BinaryName = "ffmpeg"
	BinaryFFprobe BinaryName = "ffprobe"
	BinaryDeno    BinaryName = "deno"
)

// All lists every managed binary.
var All = []BinaryName{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe, BinaryDeno}

// Platform operating system names and architectures.
const (
	platformLinux   = "linux"
	platformWindows = "windows"
	archARM64       = "arm64"
)

const (
	// downloadTimeout is the HTTP client timeout for downloading binaries.
	downloadTimeout = 10 * time.Minute
	// filePermExecutable is the file permission for executable binaries.
	filePermExecutable = 0o755
	// filePermReadWrite is the file permission for regular files.
	filePermReadWrite = 0o644
	// sha256HexLength is the expected length of SHA256 hex string.
	sha256HexLength = 64
	// savedSumsFilename is the filename for saved checksums.
	savedSumsFilename = ".sha256sums.json"
)

// ErrNoSumsURL is returned when no checksum list is configured.
var ErrNoSumsURL = errors.New("no SHA256 sums URLs configured")

// Resolver maps a binary to the executable to run.
type Resolver interface {
	Path(name BinaryName) string
}

// Static is a fixed Resolver. Unknown names resolve to themselves, leaving lookup to PATH.
type Static map[BinaryName]string

// Path implements Resolver.
func (s Static) Path(name BinaryName) string {
	if p := s[name]; p != "" {
		return p
	}

	return string(name)
}

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform string in format "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// source is one downloadable asset and the binaries it provides.
type source struct {
	url      string
	provides []BinaryName
}

// asset is the file name of the download as it appears in checksum lists.
func (s source) asset() string {
	u, err := url.Parse(s.url)
	if err != nil {
		return path.Base(s.url)
	}

	return path.Base(u.Path)
}

// Manager manages binary dependencies.
type Manager struct {
	log      *slog.Logger
	cfg      config.DepManager
	platform Platform
	client   *http.Client

	mu        sync.RWMutex
	shaSums   map[string]string     // asset -> sha256 (fetched from remote)
	savedSums map[string]string     // asset -> sha256 (saved from previous run)
	binPaths  map[BinaryName]string // binary -> installed path

	updating atomic.Bool
}

// New creates a new dependency manager.
func New(log *slog.Logger, cfg config.DepManager) *Manager {
	return &Manager{
		log: log.With(slog.String("package", "depmanager")),
		cfg: cfg,
		platform: Platform{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
		},
		client:    &http.Client{Timeout: downloadTimeout},
		shaSums:   make(map[string]string),
		savedSums: make(map[string]string),
		binPaths:  make(map[BinaryName]string),
	}
}

// Start makes every binary available, either from PATH or by installing it into BinsDir,
// and in the latter case starts the background update checker.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.UseSystemBinaries {
		return m.SetSystemBinaries()
	}

	if err := m.InstallAll(ctx); err != nil {
		return err
	}

	if err := m.exportPath(); err != nil {
		return err
	}

	go m.RunUpdateChecker(ctx)

	return nil
}

// SetSystemBinaries looks every binary up in PATH.
func (m *Manager) SetSystemBinaries() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range All {
		p, err := exec.LookPath(string(binary))
		if err != nil {
			return fmt.Errorf("%s: %w: %w", binary, errs.ErrBinaryNotFound, err)
		}

		m.binPaths[binary] = p
	}

	return nil
}

// UseExisting resolves every binary without downloading anything. A copy installed
// in BinsDir wins over PATH. The binaries found in neither place are returned.
func (m *Manager) UseExisting() []BinaryName {
	var missing []BinaryName

	for _, binary := range All {
		if m.installed(source{provides: []BinaryName{binary}}) {
			m.setBinaryPaths([]BinaryName{binary})

			continue
		}

		p, err := exec.LookPath(string(binary))
		if err != nil {
			missing = append(missing, binary)

			continue
		}

		m.mu.Lock()
		m.binPaths[binary] = p
		m.mu.Unlock()
	}

	return missing
}

// InstallAll downloads missing binaries, then records remote checksums for later update checks.
func (m *Manager) InstallAll(ctx context.Context) error {
	log := m.log

	if err := os.MkdirAll(m.cfg.BinsDir, filePermExecutable); err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	if err := m.loadSavedSums(); err != nil {
		log.DebugContext(ctx, "no saved checksums found, first run", slog.Any("error", err))
	}

	sources, err := m.sources()
	if err != nil {
		return err
	}

	for _, src := range sources {
		if m.installed(src) {
			m.setBinaryPaths(src.provides)
			log.DebugContext(ctx, "binary already exists", slog.Any("binaries", src.provides))

			continue
		}

		if err := m.install(ctx, src); err != nil {
			return fmt.Errorf("install %s: %w", src.asset(), err)
		}
	}

	log.InfoContext(ctx, "all binaries are installed", slog.Any("binaries", m.Binaries()))

	if err := m.FetchSHASums(ctx); err != nil {
		log.WarnContext(ctx, "failed to fetch checksums", slog.Any("error", err))

		return nil
	}

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "failed to save checksums", slog.Any("error", err))
	}

	return nil
}

// Path returns the executable for name. Binaries that are not installed resolve to their bare
// name so exec falls back to PATH.
func (m *Manager) Path(name BinaryName) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p := m.binPaths[name]; p != "" {
		return p
	}

	return string(name)
}

// Binaries returns a copy of the installed binary paths.
func (m *Manager) Binaries() map[BinaryName]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.binPaths)
}

// BinaryPath returns where name is installed inside BinsDir.
//   - /opt/bins + ffmpeg => /opt/bins/ffmpeg
func (m *Manager) BinaryPath(name BinaryName) string {
	filename := string(name)
	if m.platform.OS == platformWindows {
		filename += ".exe"
	}

	return filepath.Join(m.cfg.BinsDir, filename)
}

// RunUpdateChecker periodically compares remote checksums with saved ones and
// reinstalls binaries whose asset changed. It blocks until ctx is done.
func (m *Manager) RunUpdateChecker(ctx context.Context) {
	if m.cfg.UpdateInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAndUpdate(ctx)
		}
	}
}

// FetchSHASums fetches and parses SHA256 sums from configured URLs.
func (m *Manager) FetchSHASums(ctx context.Context) error {
	sumsURLs, err := m.CollectSHASumsURLs()
	if err != nil {
		return err
	}

	for _, u := range sumsURLs {
		body, err := m.get(ctx, u)
		if err != nil {
			return fmt.Errorf("fetch SHA sums: %w", err)
		}

		m.ParseSHASums(string(body))
	}

	return nil
}

// CollectSHASumsURLs collects SHA256 sums URLs from the configuration.
// Each setting may hold several comma-separated URLs.
func (m *Manager) CollectSHASumsURLs() ([]string, error) {
	var sumsURLs []string

	for _, raw := range []string{m.cfg.YTdlpSHA256SumsURL, m.cfg.FFmpegSHA256SumsURL, m.cfg.DenoSHA256SumsURL} {
		for part := range strings.SplitSeq(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				sumsURLs = append(sumsURLs, part)
			}
		}
	}

	if len(sumsURLs) == 0 {
		return nil, ErrNoSumsURL
	}

	return sumsURLs, nil
}

// ParseSHASums parses lines in the "hash  filename" format. Binary-mode markers ("*file")
// are stripped and malformed lines are skipped.
func (m *Manager) ParseSHASums(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for line := range strings.SplitSeq(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[0]) != sha256HexLength {
			continue
		}

		m.shaSums[strings.TrimPrefix(fields[1], "*")] = strings.ToLower(fields[0])
	}

	m.log.Debug("parsed SHA256 sums", slog.Int("count", len(m.shaSums)))
}

// checkAndUpdate checks for updates and downloads new versions if available.
func (m *Manager) checkAndUpdate(ctx context.Context) {
	if !m.updating.CompareAndSwap(false, true) {
		return
	}
	defer m.updating.Store(false)

	log := m.log

	if err := m.FetchSHASums(ctx); err != nil {
		log.WarnContext(ctx, "update check: failed to fetch checksums", slog.Any("error", err))

		return
	}

	sources, err := m.sources()
	if err != nil {
		log.WarnContext(ctx, "update check: no sources", slog.Any("error", err))

		return
	}

	updates := m.findUpdates(sources)
	if len(updates) == 0 {
		log.DebugContext(ctx, "update check: no updates available")

		return
	}

	for _, src := range updates {
		if err := m.install(ctx, src); err != nil {
			log.ErrorContext(ctx, "update check: failed to update binary",
				slog.String("asset", src.asset()),
				slog.Any("error", err))

			continue
		}

		log.InfoContext(ctx, "update check: binary updated", slog.Any("binaries", src.provides))
	}

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "update check: failed to save checksums", slog.Any("error", err))
	}
}

// findUpdates returns sources whose fetched checksum differs from the saved one.
func (m *Manager) findUpdates(sources []source) []source {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var updates []source

	for _, src := range sources {
		newHash, hasNew := m.shaSums[src.asset()]
		oldHash, hasOld := m.savedSums[src.asset()]

		if hasNew && (!hasOld || newHash != oldHash) {
			updates = append(updates, src)
		}
	}

	return updates
}

// sources returns the assets to install for the current platform.
func (m *Manager) sources() ([]source, error) {
	if m.platform.OS != platformLinux {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedPlatform, m.platform)
	}

	arm := m.platform.Arch == archARM64
	pick := func(arm64URL, amd64URL string) string {
		if arm && arm64URL != "" {
			return arm64URL
		}

		return amd64URL
	}

	all := []source{
		{url: pick(m.cfg.FFmpegLinuxARM64, m.cfg.FFmpegLinuxAMD64), provides: []BinaryName{BinaryFFmpeg, BinaryFFprobe}},
		{url: pick(m.cfg.DenoLinuxARM64, m.cfg.DenoLinuxAMD64), provides: []BinaryName{BinaryDeno}},
		{url: pick(m.cfg.YTdlpLinuxARM64, m.cfg.YTdlpLinuxAMD64), provides: []BinaryName{BinaryYTdlp}},
	}

	return slices.DeleteFunc(all, func(s source) bool { return s.url == "" }), nil
}

// installed reports whether every binary of src exists with non-zero size.
func (m *Manager) installed(src source) bool {
	for _, name := range src.provides {
		info, err := os.Stat(m.BinaryPath(name))
		if err != nil || info.Size() == 0 {
			return false
		}
	}

	return true
}

func (m *Manager) setBinaryPaths(names []BinaryName) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range names {
		m.binPaths[name] = m.BinaryPath(name)
	}
}

// install downloads src into BinsDir, extracting archives.
func (m *Manager) install(ctx context.Context, src source) error {
	log := m.log.With(slog.String("asset", src.asset()))
	log.InfoContext(ctx, "downloading binary", slog.String("url", src.url))

	tmpPath, err := m.download(ctx, src.url)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	targets := make(map[string]BinaryName, len(src.provides))
	for _, name := range src.provides {
		targets[filepath.Base(m.BinaryPath(name))] = name
	}

	if kind := archiveKind(src.asset()); kind != archiveNone {
		if err := extract(kind, tmpPath, m.cfg.BinsDir, targets); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	} else {
		if err := os.Rename(tmpPath, m.BinaryPath(src.provides[0])); err != nil {
			return fmt.Errorf("rename: %w", err)
		}
	}

	for _, name := range src.provides {
		if err := os.Chmod(m.BinaryPath(name), filePermExecutable); err != nil {
			return fmt.Errorf("chmod %s: %w", name, err)
		}
	}

	m.setBinaryPaths(src.provides)
	log.InfoContext(ctx, "binary installed successfully", slog.Any("binaries", src.provides))

	return nil
}

// download streams rawURL into a temp file in BinsDir and returns its path.
func (m *Manager) download(ctx context.Context, rawURL string) (string, error) {
	resp, err := m.do(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	tmpFile, err := os.CreateTemp(m.cfg.BinsDir, "download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())

		return "", fmt.Errorf("write file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())

		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tmpFile.Name(), nil
}

func (m *Manager) get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := m.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

func (m *Manager) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()

		return nil, fmt.Errorf("get %s: unexpected status: %d", rawURL, resp.StatusCode)
	}

	return resp, nil
}

// exportPath prepends BinsDir to PATH so child processes (yt-dlp looking for
// ffmpeg and deno) find the managed binaries.
func (m *Manager) exportPath() error {
	current := os.Getenv("PATH")
	if slices.Contains(filepath.SplitList(current), m.cfg.BinsDir) {
		return nil
	}

	if err := os.Setenv("PATH", m.cfg.BinsDir+string(os.PathListSeparator)+current); err != nil {
		return fmt.Errorf("export PATH: %w", err)
	}

	return nil
}

// loadSavedSums loads saved checksums from file.
func (m *Manager) loadSavedSums() error {
	data, err := os.ReadFile(filepath.Join(m.cfg.BinsDir, savedSumsFilename))
	if err != nil {
		return fmt.Errorf("read checksums file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := json.Unmarshal(data, &m.savedSums); err != nil {
		return fmt.Errorf("unmarshal checksums: %w", err)
	}

	return nil
}

// saveSums saves current checksums to file for future comparison.
func (m *Manager) saveSums() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.shaSums, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.cfg.BinsDir, savedSumsFilename), data, filePermReadWrite); err != nil {
		return fmt.Errorf("write checksums file: %w", err)
	}

	m.mu.Lock()
	m.savedSums = maps.Clone(m.shaSums)
	m.mu.Unlock()

	return nil
}

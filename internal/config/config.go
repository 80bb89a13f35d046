// Package config handles application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Extraction engines.
const (
	EngineYTdlp  = "ytdlp"
	EngineNative = "native"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the application configuration.
type Config struct {
	HTTP       HTTP
	App        App
	Job        Job
	Dir        Dir
	Storage    Storage
	Extract    Extract
	Download   Download
	Transcode  Transcode
	History    History
	DepManager DepManager
	Proxy      Proxy
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"AUDIOGRAB_APP_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"AUDIOGRAB_APP_LOG_FORMAT" envDefault:"json"`
}

// Job holds job processing configuration.
type Job struct {
	Workers   int           `env:"AUDIOGRAB_APP_JOB_WORKERS"    envDefault:"2"`
	Timeout   time.Duration `env:"AUDIOGRAB_APP_JOB_TIMEOUT"    envDefault:"2h"`
	QueueSize int           `env:"AUDIOGRAB_APP_JOB_QUEUE_SIZE" envDefault:"100"`
}

// Storage holds storage configuration.
type Storage struct {
	TTL             time.Duration `env:"AUDIOGRAB_APP_STORAGE_TTL"              envDefault:"24h"`
	CleanupInterval time.Duration `env:"AUDIOGRAB_APP_STORAGE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Port            string        `env:"AUDIOGRAB_HTTP_PORT"             envDefault:":8080"`
	HandlerTimeout  time.Duration `env:"AUDIOGRAB_HTTP_HANDLER_TIMEOUT"  envDefault:"60s"`
	DownloadTimeout time.Duration `env:"AUDIOGRAB_HTTP_DOWNLOAD_TIMEOUT" envDefault:"30m"`
	ShutdownTimeout time.Duration `env:"AUDIOGRAB_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Dir holds directory paths for downloads, cache, and cookie file.
type Dir struct {
	Downloads string `env:"AUDIOGRAB_DIR_DOWNLOAD" envDefault:"./data/downloads"` // per-job temp dirs live here
	Cache     string `env:"AUDIOGRAB_DIR_CACHE"    envDefault:"./data/cache"`     // yt-dlp cache (meta, sigs)

	// Netscape cookies.txt passed to yt-dlp.
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"AUDIOGRAB_DIR_COOKIE_FILE" envDefault:""`

	// AllowedFolders restricts the "folder" delivery to these roots. Empty allows any absolute path.
	AllowedFolders []string `env:"AUDIOGRAB_DIR_ALLOWED_FOLDERS" envSeparator:","`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	for i, dir := range c.AllowedFolders {
		if c.AllowedFolders[i], err = filepath.Abs(strings.TrimSpace(dir)); err != nil {
			return fmt.Errorf("allowed folder %q: %w", dir, err)
		}
	}

	return nil
}

// FolderAllowed reports whether dir may receive "folder" deliveries.
func (c *Dir) FolderAllowed(dir string) bool {
	if !filepath.IsAbs(dir) {
		return false
	}

	if len(c.AllowedFolders) == 0 {
		return true
	}

	dir = filepath.Clean(dir)

	return slices.ContainsFunc(c.AllowedFolders, func(root string) bool {
		rel, err := filepath.Rel(root, dir)

		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	})
}

// Extract holds metadata extraction configuration.
type Extract struct {
	// Engine is "ytdlp" or "native".
	Engine            string        `env:"AUDIOGRAB_EXTRACT_ENGINE"              envDefault:"ytdlp"`
	MaxPlaylistVideos int           `env:"AUDIOGRAB_EXTRACT_MAX_PLAYLIST_VIDEOS" envDefault:"1000"`
	Timeout           time.Duration `env:"AUDIOGRAB_EXTRACT_TIMEOUT"             envDefault:"2m"`
}

// Download holds audio download configuration.
type Download struct {
	Retries          int           `env:"AUDIOGRAB_DOWNLOAD_RETRIES"           envDefault:"5"`
	RetryDelay       time.Duration `env:"AUDIOGRAB_DOWNLOAD_RETRY_DELAY"       envDefault:"2s"`
	RetryMaxDelay    time.Duration `env:"AUDIOGRAB_DOWNLOAD_RETRY_MAX_DELAY"   envDefault:"30s"`
	FragmentRetries  int           `env:"AUDIOGRAB_DOWNLOAD_FRAGMENT_RETRIES"  envDefault:"2"`
	ProgressInterval time.Duration `env:"AUDIOGRAB_DOWNLOAD_PROGRESS_INTERVAL" envDefault:"500ms"`
}

// Transcode holds audio conversion defaults.
type Transcode struct {
	DefaultFormat  string `env:"AUDIOGRAB_TRANSCODE_DEFAULT_FORMAT"  envDefault:"mp3"`
	DefaultQuality int    `env:"AUDIOGRAB_TRANSCODE_DEFAULT_QUALITY" envDefault:"192"`
}

// History holds persistent download history configuration.
type History struct {
	// DSN is the sqlite data source. Empty disables history.
	DSN string `env:"AUDIOGRAB_HISTORY_DSN" envDefault:"./data/history.db"`
	// Limit is the default number of rows returned by the history endpoint.
	Limit int `env:"AUDIOGRAB_HISTORY_LIMIT" envDefault:"100"`
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where binaries are stored
	BinsDir string `env:"AUDIOGRAB_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries resolves binaries from PATH instead of downloading them.
	UseSystemBinaries bool `env:"AUDIOGRAB_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"false"`
	// UpdateInterval is how often to check for binary updates
	UpdateInterval time.Duration `env:"AUDIOGRAB_DEPMANAGER_UPDATE_INTERVAL" envDefault:"24h"`

	// ffmpeg and ffprobe ship in the same archive.
	FFmpegSHA256SumsURL string `env:"AUDIOGRAB_DEPMANAGER_FFMPEG_SHA256SUMS_URL" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/checksums.sha256"`                        //nolint:lll
	FFmpegLinuxARM64    string `env:"AUDIOGRAB_DEPMANAGER_FFMPEG_LINUX_ARM64"    envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64    string `env:"AUDIOGRAB_DEPMANAGER_FFMPEG_LINUX_AMD64"    envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll

	YTdlpSHA256SumsURL string `env:"AUDIOGRAB_DEPMANAGER_YTDLP_SHA256SUMS_URL" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/SHA2-256SUMS"`      //nolint:lll
	YTdlpLinuxARM64    string `env:"AUDIOGRAB_DEPMANAGER_YTDLP_LINUX_ARM64"    envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64    string `env:"AUDIOGRAB_DEPMANAGER_YTDLP_LINUX_AMD64"    envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`         //nolint:lll

	// deno is the JS runtime yt-dlp uses for YouTube signature challenges.
	DenoSHA256SumsURL string `env:"AUDIOGRAB_DEPMANAGER_DENO_SHA256SUMS_URL" envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-aarch64-unknown-linux-gnu.zip.sha256sum,https://github.com/denoland/deno/releases/latest/download/deno-x86_64-unknown-linux-gnu.zip.sha256sum"` //nolint:lll
	DenoLinuxARM64    string `env:"AUDIOGRAB_DEPMANAGER_DENO_LINUX_ARM64"    envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-aarch64-unknown-linux-gnu.zip"`                                                                                                                  //nolint:lll
	DenoLinuxAMD64    string `env:"AUDIOGRAB_DEPMANAGER_DENO_LINUX_AMD64"    envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-x86_64-unknown-linux-gnu.zip"`                                                                                                                   //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// Proxy holds proxy configuration for download requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs in socks5h format
	List string `env:"AUDIOGRAB_PROXY_LIST" envDefault:""`
	// HealthCheckInterval is how often to check proxy health
	HealthCheckInterval time.Duration `env:"AUDIOGRAB_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"5m"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"AUDIOGRAB_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the number of consecutive failures before a proxy is benched
	MaxFailures int `env:"AUDIOGRAB_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	p.Proxies = nil

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	cfg.Proxy.parseList()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	switch {
	case c.Job.Workers < 1:
		return fmt.Errorf("%w: job workers must be positive, got %d", ErrInvalidConfig, c.Job.Workers)
	case c.Job.QueueSize < 1:
		return fmt.Errorf("%w: job queue size must be positive, got %d", ErrInvalidConfig, c.Job.QueueSize)
	case c.Extract.Engine != EngineYTdlp && c.Extract.Engine != EngineNative:
		return fmt.Errorf("%w: unknown extract engine %q", ErrInvalidConfig, c.Extract.Engine)
	case c.Extract.MaxPlaylistVideos < 1:
		return fmt.Errorf("%w: max playlist videos must be positive", ErrInvalidConfig)
	case c.Download.Retries < 1:
		return fmt.Errorf("%w: download retries must be at least 1", ErrInvalidConfig)
	case c.Transcode.DefaultQuality < 0:
		return fmt.Errorf("%w: default quality must not be negative", ErrInvalidConfig)
	case c.HTTP.DownloadTimeout < 0:
		return fmt.Errorf("%w: download timeout must not be negative", ErrInvalidConfig)
	}

	return nil
}

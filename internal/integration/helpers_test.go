//go:build integration
// +build integration

package integration_test

import (
	_ "embed"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/depmanager"
	"audiograb/internal/downloader"
	"audiograb/internal/extractor"
	"audiograb/internal/history"
	"audiograb/internal/service"
	"audiograb/internal/storage"
	"audiograb/internal/tagger"
	"audiograb/internal/transcoder"
	"audiograb/pkg/logger"
)

//go:embed testdata/fake-ytdlp.sh
var fakeYTDLPScript string

type ytdlpIntegrationFixture struct {
	cfg        *config.Config
	bins       depmanager.Static
	storer     storage.Storer
	extractor  extractor.Extractor
	downloader downloader.Downloader
	history    *history.Store
}

func newYTdlpIntegrationFixture(t *testing.T, mode string) *ytdlpIntegrationFixture {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("integration fake yt-dlp helper uses shell script")
	}

	baseDir := t.TempDir()
	binsDir := filepath.Join(baseDir, "bins")
	downloadsDir := filepath.Join(baseDir, "downloads")
	cacheDir := filepath.Join(baseDir, "cache")

	for _, dir := range []string{binsDir, downloadsDir, cacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config new: %v", err)
	}

	cfg.DepManager.BinsDir = binsDir
	cfg.Dir.Downloads = downloadsDir
	cfg.Dir.Cache = cacheDir
	cfg.Dir.CookieFile = ""
	cfg.Dir.AllowedFolders = nil
	cfg.Storage.CleanupInterval = time.Hour
	cfg.Job.Timeout = 5 * time.Second
	cfg.Download.Retries = 1
	cfg.Extract.Engine = config.EngineYTdlp
	cfg.History.DSN = filepath.Join(baseDir, "history.db")
	cfg.Proxy.Proxies = nil

	fakeBinaryPath := writeFakeYTdlp(t, binsDir, mode)

	log := logger.Discard()
	bins := depmanager.Static{depmanager.BinaryYTdlp: fakeBinaryPath}

	ext, err := extractor.New(log, cfg, extractor.Deps{Bins: bins})
	if err != nil {
		t.Fatalf("extractor new: %v", err)
	}

	hist, err := history.Open(t.Context(), log, cfg.History)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}

	t.Cleanup(func() { hist.Close() })

	return &ytdlpIntegrationFixture{
		cfg:        cfg,
		bins:       bins,
		storer:     storage.New(t.Context(), log, cfg, nil),
		extractor:  ext,
		downloader: downloader.NewYTdlp(log, cfg.Download, cfg.Dir, downloader.Deps{Bins: bins}),
		history:    hist,
	}
}

// writeFakeYTdlp writes the fake binary with mode baked in. go-ytdlp starts yt-dlp with
// only PATH set, so the mode cannot travel through the environment.
func writeFakeYTdlp(t *testing.T, dir, mode string) string {
	t.Helper()

	path := filepath.Join(dir, string(depmanager.BinaryYTdlp))
	script := strings.ReplaceAll(fakeYTDLPScript, "@MODE@", mode)

	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}

	return path
}

// service wires the job service around the fake binary. Transcoding copies bytes and
// tagging is skipped, so no ffmpeg is needed.
func (fx *ytdlpIntegrationFixture) service() service.Job {
	return service.New(fx.cfg, logger.Discard(), service.Deps{
		Storage:    fx.storer,
		Extractor:  fx.extractor,
		Downloader: fx.downloader,
		Transcoder: transcoder.Copy{},
		Tagger:     tagger.Nop{},
		History:    fx.history,
	})
}

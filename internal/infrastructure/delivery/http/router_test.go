package httprouter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/downloader"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/extractor"
	"audiograb/internal/history"
	httprouter "audiograb/internal/infrastructure/delivery/http"
	"audiograb/internal/observability"
	"audiograb/internal/service"
	"audiograb/internal/storage"
	"audiograb/internal/tagger"
	"audiograb/internal/transcoder"
	"audiograb/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	videoURL    = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	playlistURL = "https://www.youtube.com/playlist?list=PLtest"
)

type apiResponse struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router *httprouter.Router
	svc    service.Job
}

type fixtureOpts struct {
	start     bool
	history   bool
	queueSize int
	transcode config.Transcode
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	log := logger.Discard()

	cfg := &config.Config{
		HTTP:      config.HTTP{HandlerTimeout: 5 * time.Second, DownloadTimeout: time.Minute},
		Transcode: opts.transcode,
		Job:       config.Job{Workers: 1, Timeout: time.Minute, QueueSize: 10},
		Storage:   config.Storage{TTL: time.Hour, CleanupInterval: time.Hour},
		Dir:       config.Dir{Downloads: t.TempDir()},
		Extract:   config.Extract{Engine: config.EngineYTdlp, MaxPlaylistVideos: 100, Timeout: time.Minute},
	}

	if opts.queueSize > 0 {
		cfg.Job.QueueSize = opts.queueSize
	}

	metrics := observability.New(prometheus.NewRegistry())

	dl := downloader.NewMock(log)
	dl.Duration = 0

	var store *history.Store

	if opts.history {
		var err error

		store, err = history.Open(t.Context(), log, config.History{DSN: ":memory:", Limit: 10})
		if err != nil {
			t.Fatalf("open history: %v", err)
		}

		t.Cleanup(func() { store.Close() })
	}

	svc := service.New(cfg, log, service.Deps{
		Storage:    storage.New(t.Context(), log, cfg, metrics),
		Extractor:  extractor.NewMock(2),
		Downloader: dl,
		Transcoder: transcoder.Copy{},
		Tagger:     tagger.Nop{},
		History:    store,
		Metrics:    metrics,
	})

	if opts.start {
		ctx, cancel := context.WithCancel(t.Context())
		svc.Start(ctx)

		t.Cleanup(func() {
			cancel()
			svc.Wait()
		})
	}

	return &fixture{
		router: httprouter.New(log, cfg, svc, metrics),
		svc:    svc,
	}
}

func (fx *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()

	var res apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v body=%q", err, rec.Body.String())
	}

	return res
}

func decodeID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var id string
	if err := json.Unmarshal(decode(t, rec).Data, &id); err != nil || id == "" {
		t.Fatalf("unmarshal job id: %v body=%q", err, rec.Body.String())
	}

	return id
}

func (fx *fixture) waitForStatus(t *testing.T, id string, want entity.JobStatus) entity.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	var last entity.Job

	for time.Now().Before(deadline) {
		rec := fx.do(t, http.MethodGet, "/v1/jobs/"+id, "")
		if rec.Code == http.StatusOK {
			if err := json.Unmarshal(decode(t, rec).Data, &last); err != nil {
				t.Fatal(err)
			}

			if last.Status == want {
				return last
			}
		}

		time.Sleep(25 * time.Millisecond)
	}

	t.Fatalf("wait for job status %q timed out, last status %q", want, last.Status)

	return entity.Job{}
}

func TestIndexAndReadyz(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	rec := fx.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("index = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	for _, want := range []string{`<option value="flac">`, `<option value="mp3" selected>`, `<option value="192" selected>`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("index missing %q", want)
		}
	}

	if rec := fx.do(t, http.MethodGet, "/v1/readyz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("readyz = %d %q", rec.Code, rec.Body.String())
	}

	if rec := fx.do(t, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d", rec.Code)
	}

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestConfiguredDefaults(t *testing.T) {
	fx := newFixture(t, fixtureOpts{transcode: config.Transcode{DefaultFormat: "m4a", DefaultQuality: 256}})

	rec := fx.do(t, http.MethodGet, "/", "")
	for _, want := range []string{`<option value="m4a" selected>`, `<option value="256" selected>`, `<option value="mp3">`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("index missing %q", want)
		}
	}

	rec = fx.do(t, http.MethodPost, "/v1/jobs/enqueue", fmt.Sprintf(`{"url":%q}`, videoURL+"&si=tracking"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue = %d %s", rec.Code, rec.Body.String())
	}

	job, err := fx.svc.GetByID(t.Context(), decodeID(t, rec))
	if err != nil {
		t.Fatal(err)
	}

	if job.Request.Format != entity.FormatM4A || job.Request.Quality != 256 || job.Request.URL != videoURL {
		t.Errorf("request = %+v, want configured m4a at 256 on the sanitized url", job.Request)
	}

	rec = fx.do(t, http.MethodPost, "/v1/jobs/enqueue", fmt.Sprintf(`{"url":%q,"format":"m4a","quality":256}`, videoURL))
	if rec.Code != http.StatusOK || decodeID(t, rec) != job.UUID {
		t.Errorf("same request without tracking params = %d, want the existing job", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	rec := fx.do(t, http.MethodPost, "/v1/preview", fmt.Sprintf(`{"url":%q}`, playlistURL))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview = %d %s", rec.Code, rec.Body.String())
	}

	var p entity.Preview
	if err := json.Unmarshal(decode(t, rec).Data, &p); err != nil {
		t.Fatal(err)
	}

	if len(p.Tracks) != 2 || p.Estimate.Tracks != 2 || p.Kind != "playlist" {
		t.Errorf("preview = %+v", p)
	}

	if rec := fx.do(t, http.MethodPost, "/v1/preview", `{"url":"https://example.com"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid url preview = %d", rec.Code)
	}
}

func TestEnqueueValidation(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json body", "{", http.StatusBadRequest},
		{"missing url", `{"url":""}`, http.StatusUnprocessableEntity},
		{"not youtube", `{"url":"https://example.com/watch?v=1"}`, http.StatusUnprocessableEntity},
		{"bad format", fmt.Sprintf(`{"url":%q,"format":"ogg"}`, videoURL), http.StatusUnprocessableEntity},
		{"bad quality", fmt.Sprintf(`{"url":%q,"quality":100}`, videoURL), http.StatusUnprocessableEntity},
		{"bad naming", fmt.Sprintf(`{"url":%q,"naming":"random"}`, videoURL), http.StatusUnprocessableEntity},
		{"relative folder", fmt.Sprintf(`{"url":%q,"delivery":"folder","folder":"music"}`, videoURL), http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := fx.do(t, http.MethodPost, "/v1/jobs/enqueue", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body.String())
			}

			if decode(t, rec).Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestJobLifecycleWithoutWorkers(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	if rec := fx.do(t, http.MethodGet, "/v1/jobs/", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("empty jobs = %d", rec.Code)
	}

	body := fmt.Sprintf(`{"url":%q}`, videoURL)

	rec := fx.do(t, http.MethodPost, "/v1/jobs/enqueue", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue = %d %s", rec.Code, rec.Body.String())
	}

	id := decodeID(t, rec)

	rec = fx.do(t, http.MethodPost, "/v1/jobs/enqueue", body)
	if rec.Code != http.StatusOK || decodeID(t, rec) != id {
		t.Fatalf("duplicate enqueue = %d %s", rec.Code, rec.Body.String())
	}

	if rec := fx.do(t, http.MethodGet, "/v1/jobs/", ""); rec.Code != http.StatusOK {
		t.Errorf("jobs = %d", rec.Code)
	}

	if rec := fx.do(t, http.MethodGet, "/v1/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing job = %d", rec.Code)
	}

	if rec := fx.do(t, http.MethodGet, "/v1/jobs/"+id+"/archive", ""); rec.Code != http.StatusNotFound {
		t.Errorf("archive of temp delivery = %d", rec.Code)
	}

	if rec := fx.do(t, http.MethodDelete, "/v1/jobs/"+id+"/cancel", ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d %s", rec.Code, rec.Body.String())
	}

	if rec := fx.do(t, http.MethodDelete, "/v1/jobs/"+id+"/cancel", ""); rec.Code != http.StatusConflict {
		t.Errorf("second cancel = %d", rec.Code)
	}

	if rec := fx.do(t, http.MethodGet, "/v1/files/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing file = %d", rec.Code)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	fx := newFixture(t, fixtureOpts{queueSize: 1})

	if rec := fx.do(t, http.MethodPost, "/v1/jobs/enqueue", fmt.Sprintf(`{"url":%q}`, videoURL)); rec.Code != http.StatusAccepted {
		t.Fatalf("first enqueue = %d", rec.Code)
	}

	rec := fx.do(t, http.MethodPost, "/v1/jobs/enqueue", fmt.Sprintf(`{"url":%q,"format":"wav"}`, videoURL))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("second enqueue = %d %s", rec.Code, rec.Body.String())
	}
}

func TestDownloadFlow(t *testing.T) {
	fx := newFixture(t, fixtureOpts{start: true, history: true})

	rec := fx.do(t, http.MethodPost, "/v1/jobs/enqueue", fmt.Sprintf(`{"url":%q,"delivery":"zip","naming":"numbered"}`, playlistURL))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue = %d %s", rec.Code, rec.Body.String())
	}

	job := fx.waitForStatus(t, decodeID(t, rec), entity.JobStatusFinished)

	if len(job.Files) != 2 || job.Summary == nil || job.Summary.Successful != 2 || !job.ArchiveReady {
		t.Fatalf("job = %+v", job)
	}

	rec = fx.do(t, http.MethodGet, "/v1/files/"+job.Files[0].UUID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("file = %d %s", rec.Code, rec.Body.String())
	}

	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "track_") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	if !strings.HasPrefix(rec.Body.String(), "mock audio ") {
		t.Errorf("file body = %q", rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/v1/files/"+job.Files[0].UUID+"/metadata", "")
	if rec.Code != http.StatusOK {
		t.Errorf("metadata = %d %s", rec.Code, rec.Body.String())
	}

	rec = fx.do(t, http.MethodGet, "/v1/jobs/"+job.UUID+"/archive", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Errorf("archive = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("archive body is not a zip")
	}

	rec = fx.do(t, http.MethodGet, "/v1/history?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d %s", rec.Code, rec.Body.String())
	}

	var hist httprouter.HistoryData
	if err := json.Unmarshal(decode(t, rec).Data, &hist); err != nil {
		t.Fatal(err)
	}

	if len(hist.Entries) != 1 || hist.Stats.Successful != 2 {
		t.Errorf("history = %+v", hist)
	}

	if rec := fx.do(t, http.MethodGet, "/v1/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d", rec.Code)
	}

	rec = fx.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `path="/v1/jobs/enqueue"`) {
		t.Errorf("metrics = %d, enqueue route not recorded", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	rec := fx.do(t, http.MethodGet, "/v1/history", "")
	if rec.Code != http.StatusServiceUnavailable || decode(t, rec).Message != "history disabled" {
		t.Errorf("history = %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: eof", errs.ErrInvalidRequestBody), http.StatusBadRequest},
		{fmt.Errorf("%w: %q", errs.ErrInvalidQuality, 100), http.StatusUnprocessableEntity},
		{fmt.Errorf("preview: %w", errs.ErrNoTracks), http.StatusNotFound},
		{errs.ErrJobNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: job is finished", errs.ErrJobNotCancellable), http.StatusConflict},
		{fmt.Errorf("%w: 1/1", errs.ErrJobQueueFull), http.StatusServiceUnavailable},
		{fmt.Errorf("preview: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		if got := httprouter.StatusOf(tc.err); got != tc.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

package httprouter

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"audiograb/internal/config"
	"audiograb/internal/consts"
	"audiograb/internal/entity"
	"audiograb/pkg/filename"
)

//go:embed web/index.html
var webFS embed.FS

type ui struct {
	tmpl *template.Template
	data uiData
}

type uiData struct {
	Formats        []entity.Format
	Qualities      []int
	Namings        []filename.Naming
	Deliveries     []entity.Delivery
	DefaultFormat  entity.Format
	DefaultQuality int
	DefaultPrefix  string
}

// newUI preselects the configured default format and bitrate.
func newUI(cfg config.Transcode) *ui {
	defaultFormat := entity.Format(cfg.DefaultFormat)
	if !defaultFormat.Valid() {
		defaultFormat = consts.DefaultFormat
	}

	defaultQuality := cfg.DefaultQuality
	if defaultQuality == 0 {
		defaultQuality = consts.DefaultQuality
	}

	return &ui{
		tmpl: template.Must(template.ParseFS(webFS, "web/index.html")),
		data: uiData{
			Formats:        entity.Formats,
			Qualities:      entity.Qualities,
			Namings:        []filename.Naming{filename.NamingOriginal, filename.NamingPrefix, filename.NamingNumbered},
			Deliveries:     []entity.Delivery{entity.DeliveryTemp, entity.DeliveryZIP, entity.DeliveryFolder},
			DefaultFormat:  defaultFormat,
			DefaultQuality: defaultQuality,
			DefaultPrefix:  filename.DefaultPrefix,
		},
	}
}

// Index renders the web UI.
func (ro *Router) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer

	if err := ro.ui.tmpl.Execute(&buf, ro.ui.data); err != nil {
		ro.log.ErrorContext(r.Context(), "render ui", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/perfstack/nmon-insight/internal/cache"
	"github.com/perfstack/nmon-insight/internal/decoder"
	"github.com/perfstack/nmon-insight/internal/models"
	"github.com/perfstack/nmon-insight/internal/series"
	"github.com/perfstack/nmon-insight/internal/services"
	"github.com/perfstack/nmon-insight/internal/store"
)

// maxSeriesPoints caps the detail endpoint's series payload size.
const maxSeriesPoints = 3000

// Handler serves the analyzer's JSON API.
type Handler struct {
	logger    *slog.Logger
	analyzer  *services.Analyzer
	cache     cache.Provider
	seriesTTL time.Duration
}

// NewHandler wires the API handler. The cache may be a NoopProvider.
func NewHandler(logger *slog.Logger, analyzer *services.Analyzer, cacheProvider cache.Provider, seriesTTL time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &Handler{
		logger:    logger,
		analyzer:  analyzer,
		cache:     cacheProvider,
		seriesTTL: seriesTTL,
	}
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type filesResponse struct {
	Files   []models.AnalysisPayload `json:"files"`
	Summary models.CorpusSummary     `json:"summary"`
}

// ListFiles returns every stored analysis plus the corpus summary.
func (h *Handler) ListFiles(c echo.Context) error {
	st := h.analyzer.Store()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	entries, err := st.ListAnalyses()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list analyses")
	}

	resp := filesResponse{Files: make([]models.AnalysisPayload, 0, len(entries))}
	for _, entry := range entries {
		payload, err := st.LoadAnalysis(entry.FileID)
		if err != nil {
			continue
		}
		resp.Files = append(resp.Files, payload)
	}
	resp.Summary = summarizePayloads(resp.Files)
	return c.JSON(http.StatusOK, resp)
}

type uploadError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type uploadResponse struct {
	Files   []models.AnalysisPayload `json:"files"`
	Summary models.CorpusSummary     `json:"summary"`
	Errors  []uploadError            `json:"errors,omitempty"`
}

// Upload accepts a multipart batch of .nmon captures, analyzes each one, and
// returns the analyses plus a batch summary. Captures that fail to decode
// are surfaced as unprocessed without failing the batch.
func (h *Handler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}

	resp := uploadResponse{Files: make([]models.AnalysisPayload, 0, len(uploads))}
	for _, fh := range uploads {
		if !strings.HasSuffix(strings.ToLower(fh.Filename), ".nmon") {
			continue
		}
		analysis, err := h.analyzeUpload(c.Request().Context(), fh)
		if err != nil {
			h.logger.Warn("upload not analyzable", slog.String("file", fh.Filename), slog.Any("error", err))
			resp.Errors = append(resp.Errors, uploadError{File: fh.Filename, Error: err.Error()})
			continue
		}
		resp.Files = append(resp.Files, analysis.ToPayload())
	}
	resp.Summary = summarizePayloads(resp.Files)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) analyzeUpload(ctx context.Context, fh *multipart.FileHeader) (models.Analysis, error) {
	src, err := fh.Open()
	if err != nil {
		return models.Analysis{}, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "upload-*.nmon")
	if err != nil {
		return models.Analysis{}, err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return models.Analysis{}, err
	}
	if err := tmp.Close(); err != nil {
		return models.Analysis{}, err
	}

	return h.analyzer.AnalyzeUpload(ctx, tmp.Name(), fh.Filename)
}

type detailResponse struct {
	Analysis models.AnalysisPayload          `json:"analysis"`
	Series   map[string]models.SeriesPayload `json:"series"`
}

// FileDetail returns one analysis with its downsampled series payload. The
// series map is cached because it requires re-decoding the stored capture.
func (h *Handler) FileDetail(c echo.Context) error {
	st := h.analyzer.Store()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	fileID := c.Param("id")

	payload, err := st.LoadAnalysis(fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "load analysis")
	}

	seriesMap, err := h.seriesPayload(c.Request().Context(), fileID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "capture not available")
	}

	return c.JSON(http.StatusOK, detailResponse{Analysis: payload, Series: seriesMap})
}

func (h *Handler) seriesPayload(ctx context.Context, fileID string) (map[string]models.SeriesPayload, error) {
	key := "series:" + fileID
	if data, err := h.cache.Get(ctx, key); err == nil {
		var cached map[string]models.SeriesPayload
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	st := h.analyzer.Store()
	table, err := decoder.DecodeFile(st.UploadPath(fileID))
	if err != nil {
		return nil, err
	}
	capture := series.Build(table, fileID, nil)

	payload := make(map[string]models.SeriesPayload, len(capture.Series))
	for name, s := range capture.Series {
		payload[name] = s.ToPayload(maxSeriesPoints)
	}

	if data, err := json.Marshal(payload); err == nil {
		if err := h.cache.Set(ctx, key, data, h.seriesTTL); err != nil {
			h.logger.Debug("series cache store failed", slog.String("file_id", fileID), slog.Any("error", err))
		}
	}
	return payload, nil
}

// ExportCSV streams a per-capture verdict table.
func (h *Handler) ExportCSV(c echo.Context) error {
	st := h.analyzer.Store()
	if st == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage not configured")
	}
	entries, err := st.ListAnalyses()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list analyses")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename=analysis.csv`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	header := []string{
		"file_id", "hostname", "start_time", "overall",
		"cpu_level", "memory_leak_level", "emmc_level", "network_level",
		"cpu_peak_busy_pct", "memory_slope_kb_per_min", "emmc_peak_kbps", "network_peak_kbps",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, entry := range entries {
		payload, err := st.LoadAnalysis(entry.FileID)
		if err != nil {
			continue
		}
		checks := make(map[string]models.CheckPayload, len(payload.Checks))
		for _, check := range payload.Checks {
			checks[check.Rule] = check
		}
		row := []string{
			payload.FileID,
			payload.Hostname,
			payload.StartTime,
			string(payload.Overall),
			checkLevel(checks, "cpu_sustained_high"),
			checkLevel(checks, "memory_leak"),
			checkLevel(checks, "excessive_emmc_writes"),
			checkLevel(checks, "excessive_network_usage"),
			checkMetric(checks, "cpu_sustained_high", "peak"),
			checkMetric(checks, "memory_leak", "slope_kb_per_min"),
			checkMetric(checks, "excessive_emmc_writes", "peak"),
			checkMetric(checks, "excessive_network_usage", "peak"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetConfig echoes the active rule thresholds.
func (h *Handler) GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, h.analyzer.Thresholds())
}

func checkLevel(checks map[string]models.CheckPayload, rule string) string {
	if check, ok := checks[rule]; ok {
		return string(check.Level)
	}
	return string(models.LevelOK)
}

func checkMetric(checks map[string]models.CheckPayload, rule, metric string) string {
	check, ok := checks[rule]
	if !ok {
		return ""
	}
	if v, ok := check.Metrics[metric]; ok {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return ""
}

// summarizePayloads folds wire-shape analyses into corpus counts.
func summarizePayloads(files []models.AnalysisPayload) models.CorpusSummary {
	summary := models.CorpusSummary{TotalFiles: len(files)}
	for _, file := range files {
		switch file.Overall {
		case models.LevelCrit:
			summary.CritFiles++
		case models.LevelWarn:
			summary.WarnFiles++
		default:
			summary.OKFiles++
		}
		for _, check := range file.Checks {
			switch check.Level {
			case models.LevelCrit:
				summary.CritChecks++
			case models.LevelWarn:
				summary.WarnChecks++
			}
		}
	}
	return summary
}

package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"mysokha/internal/cache"
	"mysokha/internal/core"
	"mysokha/internal/log"
)

// Format is an output file type.
type Format string

const (
	XLSX Format = "xlsx"
	PDF  Format = "pdf"
)

// ErrNoData is returned when the selection matches no expenses; no file is
// produced.
var ErrNoData = errors.New("no expenses in the selected period")

// ParseFormat reports whether s names a supported format.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case XLSX, PDF:
		return Format(s), true
	}
	return "", false
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	if f == PDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName is the attachment name for a report generated on now.
func FileName(now time.Time, f Format) string {
	return "Expense_Report_" + now.Format(core.DateLayout) + "." + string(f)
}

// Config controls font loading and the output cache.
type Config struct {
	FontPath       string
	FontFamily     string
	CurrencySymbol string
	CacheSize      int
	CacheTTL       time.Duration
}

// Result is a generated file ready to be served.
type Result struct {
	FileName    string
	ContentType string
	Title       string
	Count       int
	Body        []byte
}

// Generator selects expenses and renders them. Rendered bytes are cached by
// snapshot version and selection, so repeated downloads of an unchanged
// period skip rendering.
type Generator struct {
	style  PDFStyle
	files  *cache.LRUCache[[]byte]
	logger *log.Logger
}

// NewGenerator loads the PDF font if one is configured. A font path that
// cannot be read is logged; spreadsheets still work and PDFs report
// ErrFontMissing.
func NewGenerator(cfg Config, logger *log.Logger) *Generator {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 32
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	g := &Generator{
		style: PDFStyle{
			Family:         cfg.FontFamily,
			CurrencySymbol: cfg.CurrencySymbol,
		},
		files:  cache.NewLRUCache[[]byte](cfg.CacheSize, cfg.CacheTTL),
		logger: logger.WithComponent(log.ComponentReport),
	}
	if cfg.FontPath != "" {
		font, err := os.ReadFile(cfg.FontPath)
		if err != nil {
			g.logger.Warn("Report font could not be loaded, PDF export disabled",
				"font_path", cfg.FontPath,
				log.FieldError, err)
		} else {
			g.style.Font = font
		}
	}
	return g
}

// WithFont replaces the PDF font bytes.
func (g *Generator) WithFont(font []byte) *Generator {
	g.style.Font = font
	return g
}

// Files exposes the output cache for periodic cleanup.
func (g *Generator) Files() *cache.LRUCache[[]byte] { return g.files }

// PDFAvailable reports whether a font is loaded.
func (g *Generator) PDFAvailable() bool { return len(g.style.Font) > 0 }

// Generate renders the expenses covered by sel. version is the snapshot
// version the expenses were read from. Panics raised by the renderers are
// recovered and returned as errors.
func (g *Generator) Generate(ctx context.Context, f Format, expenses []core.Expense, version uint64, sel Selection, now time.Time) (res Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render %s: panic: %v", f, r)
		}
		if err != nil && !errors.Is(err, ErrNoData) {
			g.logger.ErrorContext(ctx, "Report generation failed", log.NewFields().
				WithOperation(log.OpExport).
				WithError(err, log.ErrorTypeInternal).
				ToSlice()...)
		}
	}()

	selected := Select(expenses, sel, now)
	if len(selected) == 0 {
		return Result{}, ErrNoData
	}

	title := Title(sel, now)
	res = Result{
		FileName:    FileName(now, f),
		ContentType: f.ContentType(),
		Title:       title,
		Count:       len(selected),
	}

	key := strconv.FormatUint(version, 10) + "|" + string(f) + "|" + sel.Key(now)
	if body, ok := g.files.Get(key); ok {
		res.Body = body
		return res, nil
	}

	var buf bytes.Buffer
	switch f {
	case XLSX:
		err = WriteXLSX(&buf, BuildSummary(title, selected), BuildPivot(title, selected))
	case PDF:
		err = WritePDF(&buf, BuildDocument(title, selected), g.style)
	default:
		err = fmt.Errorf("unsupported report format %q", f)
	}
	if err != nil {
		return Result{}, err
	}

	res.Body = buf.Bytes()
	g.files.Set(key, res.Body)
	g.logger.InfoContext(ctx, "Report generated",
		log.FieldOperation, log.OpExport,
		log.FieldFormat, string(f),
		log.FieldReportMode, string(sel.Mode),
		log.FieldCount, res.Count,
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

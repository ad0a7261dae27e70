package workbooks

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/kpibrief/internal/frame"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

// WorkbookGate coordinates capacity for concurrent spreadsheet reads (backed by runtime.Controller).
type WorkbookGate interface {
	AcquireWorkbook(ctx context.Context) error
	ReleaseWorkbook()
}

// PathValidator abstracts filesystem path validation. Implementations should
// return a canonical absolute path if allowed, or an error when denied.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Dataset is a loaded sheet plus where it came from.
type Dataset struct {
	Path      string    `json:"path"`
	Sheet     string    `json:"sheet"`
	HeaderRow int       `json:"header_row"` // 0-based row index in the sheet
	ModTime   time.Time `json:"mod_time"`
	Frame     *frame.Frame
}

// Loader reads spreadsheets wholesale into frames.
type Loader struct {
	gate      WorkbookGate
	validator PathValidator
}

// NewLoader constructs a Loader. Gate and validator may be nil.
func NewLoader(gate WorkbookGate, validator PathValidator) *Loader {
	return &Loader{gate: gate, validator: validator}
}

// Canonical returns the absolute, symlink-resolved form of path. With a
// validator the validator decides; a denied path is an error.
func (l *Loader) Canonical(path string) (string, error) {
	if l.validator != nil {
		canonical, err := l.validator.ValidateOpenPath(path)
		if err != nil {
			return "", fmt.Errorf("workbooks: %s: %w", path, err)
		}
		return canonical, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("workbooks: %s: %w", path, mcperr.ErrInputNotFound)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// Load opens path, picks sheet (first sheet when empty), detects the header
// row and returns the data as a frame.
func (l *Loader) Load(ctx context.Context, path, sheet string) (*Dataset, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("workbooks: empty path: %w", mcperr.ErrInputNotFound)
	}
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()

	path, err := l.Canonical(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workbooks: %s: %w", path, mcperr.ErrInputNotFound)
		}
		return nil, fmt.Errorf("workbooks: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("workbooks: %s is a directory: %w", path, mcperr.ErrInputNotFound)
	}

	var (
		grid [][]string
		name string
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		grid, name, err = readExcel(path, sheet)
	case ".csv":
		grid, err = readCSV(path)
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	default:
		return nil, fmt.Errorf("workbooks: %s: %w", ext, mcperr.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}

	hdr := DetectHeaderRow(grid)
	ds := &Dataset{Path: path, Sheet: name, HeaderRow: hdr, ModTime: info.ModTime()}
	ds.Frame = buildFrame(grid, hdr)

	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Str("sheet", name).
		Int("header_row", hdr).
		Int("rows", ds.Frame.Rows()).
		Int("cols", ds.Frame.Width()).
		Msg("spreadsheet loaded")
	return ds, nil
}

func readExcel(path, sheet string) ([][]string, string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("workbooks: open %s: %w: %w", path, mcperr.ErrReadFailed, err)
	}
	defer f.Close()

	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, "", fmt.Errorf("workbooks: %s has no sheets: %w", path, mcperr.ErrReadFailed)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, "", fmt.Errorf("workbooks: read sheet %q: %w: %w", sheet, mcperr.ErrReadFailed, err)
	}
	if err := isoDates(f, sheet, rows); err != nil {
		return nil, "", fmt.Errorf("workbooks: read dates in %q: %w: %w", sheet, mcperr.ErrReadFailed, err)
	}
	return rows, sheet, nil
}

// isoDates rewrites date-formatted serial cells in rows as YYYY-MM-DD (or
// YYYY-MM-DD HH:MM:SS when the serial carries a time of day). GetRows only
// gives the displayed text, which for the built-in formats is month-first.
func isoDates(f *excelize.File, sheet string, rows [][]string) error {
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	styles := map[int]bool{}
	for r, row := range rows {
		for c, text := range row {
			if strings.TrimSpace(text) == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			idx, err := f.GetCellStyle(sheet, cell)
			if err != nil || idx == 0 {
				continue
			}
			isDate, seen := styles[idx]
			if !seen {
				isDate = dateStyle(f, idx)
				styles[idx] = isDate
			}
			if !isDate {
				continue
			}
			raw, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
			if err != nil {
				continue
			}
			serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			t = t.Round(time.Second)
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
				row[c] = t.Format("2006-01-02")
			} else {
				row[c] = t.Format("2006-01-02 15:04:05")
			}
		}
	}
	return nil
}

// builtinDateFormats are the excelize built-in number format ids that render
// a date or date-time.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

func dateStyle(f *excelize.File, idx int) bool {
	st, err := f.GetStyle(idx)
	if err != nil || st == nil {
		return false
	}
	if builtinDateFormats[st.NumFmt] {
		return true
	}
	if st.CustomNumFmt == nil {
		return false
	}
	return customDateFormat(*st.CustomNumFmt)
}

// customDateFormat reports whether a custom number format shows a date. Quoted
// literals and bracketed sections are ignored; a day or year token decides.
func customDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	lower := strings.ToLower(b.String())
	return strings.ContainsAny(lower, "dy")
}

func readCSV(path string) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workbooks: open %s: %w: %w", path, mcperr.ErrReadFailed, err)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("workbooks: read csv %s: %w: %w", path, mcperr.ErrReadFailed, err)
		}
		rows = append(rows, rec)
	}
	// Strip a UTF-8 BOM left by spreadsheet exports.
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// DetectHeaderRow returns the index of the first row holding at least two
// non-null cells. Title banners above a table ("Sales Sample Data") are
// skipped that way. Falls back to row 0.
func DetectHeaderRow(grid [][]string) int {
	for i, row := range grid {
		nonEmpty := 0
		for _, v := range row {
			if !frame.IsNull(v) {
				nonEmpty++
			}
		}
		if nonEmpty >= 2 {
			return i
		}
	}
	return 0
}

func buildFrame(grid [][]string, hdr int) *frame.Frame {
	if len(grid) == 0 {
		return frame.New(nil, nil)
	}
	data := grid[hdr+1:]
	// Drop trailing rows that are entirely empty.
	end := len(data)
	for end > 0 && rowEmpty(data[end-1]) {
		end--
	}
	data = data[:end]

	width := len(grid[hdr])
	for _, row := range data {
		if len(row) > width {
			width = len(row)
		}
	}
	header := make([]string, width)
	copy(header, grid[hdr])
	return frame.New(header, data)
}

func rowEmpty(row []string) bool {
	for _, v := range row {
		if !frame.IsNull(v) {
			return false
		}
	}
	return true
}

func (l *Loader) acquire(ctx context.Context) error {
	if l.gate == nil {
		return nil
	}
	return l.gate.AcquireWorkbook(ctx)
}

func (l *Loader) release() {
	if l.gate == nil {
		return
	}
	l.gate.ReleaseWorkbook()
}

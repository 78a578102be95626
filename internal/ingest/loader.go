package ingest

import (
	"bufio"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/pgzip"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/lox/sameday/internal/models"
)

// Layout of the station export: a fixed metadata preamble, then a column
// header row, then one comma-separated row per day.
const (
	PreambleLines = 7
	ColumnCount   = 5

	// Lines longer than this are skipped as malformed.
	maxLineBytes = 1 << 20
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"2006-01-02 15:04:05",
}

// ErrNoSource is returned when no source bytes were supplied and the
// default data file does not exist.
var ErrNoSource = errors.New("no data source: default data file not found")

// ErrEncoding is wrapped in a ParseError when the source is not EUC-KR text.
var ErrEncoding = errors.New("source is not EUC-KR encoded")

// ParseError wraps any failure while reading or decoding a source. A load
// that returns a ParseError produces no table.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse source: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReadSource returns raw when it is non-nil, otherwise the contents of
// defaultPath. A missing default file yields ErrNoSource.
func ReadSource(raw []byte, defaultPath string) ([]byte, error) {
	if raw != nil {
		return raw, nil
	}
	if defaultPath == "" {
		return nil, ErrNoSource
	}
	data, err := os.ReadFile(defaultPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSource
	}
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("read %s: %w", defaultPath, err)}
	}
	return data, nil
}

// HashSource returns the hex SHA-256 of source bytes, the identity used to
// memoise loaded tables.
func HashSource(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load decodes an EUC-KR station export and returns the cleaned table.
// Malformed lines and rows with a blank date, blank station or
// unparseable date are dropped and counted in the table's report.
func Load(r io.Reader) (*models.Table, error) {
	hasher := sha256.New()
	raw := bufio.NewReader(io.TeeReader(r, hasher))
	src, err := maybeGunzip(raw)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	defer src.Close()
	decoded := bufio.NewReader(transform.NewReader(src, korean.EUCKR.NewDecoder()))

	table := &models.Table{}
	rep := &table.Report
	lineNo := 0
	for {
		line, tooLong, err := readLine(decoded)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		lineNo++
		// The decoder substitutes U+FFFD for byte sequences that are not
		// EUC-KR, which means the file is in some other encoding.
		if strings.ContainsRune(line, utf8.RuneError) {
			return nil, &ParseError{Err: fmt.Errorf("line %d: %w", lineNo, ErrEncoding)}
		}
		if lineNo <= PreambleLines+1 {
			// Metadata preamble and the column header row.
			continue
		}
		if tooLong {
			rep.LinesRead++
			rep.MalformedLines++
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		rep.LinesRead++

		fields, ok := splitLine(line)
		if !ok {
			rep.MalformedLines++
			continue
		}

		dateText := strings.TrimSpace(fields[0])
		if dateText == "" || strings.EqualFold(dateText, "nan") {
			rep.BlankDates++
			continue
		}
		station := strings.TrimSpace(fields[1])
		if station == "" {
			rep.BlankStations++
			continue
		}
		date, ok := parseDate(dateText)
		if !ok {
			rep.BadDates++
			continue
		}

		rec := models.NewDailyRecord(date, station,
			parseTemp(fields[2]), parseTemp(fields[3]), parseTemp(fields[4]))
		if len(ValidateRecord(&rec)) > 0 {
			rep.FlaggedRows++
		}
		table.Records = append(table.Records, rec)
	}
	// The hash covers every input byte, including any trailing data a
	// compressed stream did not consume.
	if _, err := io.Copy(io.Discard, raw); err != nil {
		return nil, &ParseError{Err: err}
	}

	rep.RowsKept = len(table.Records)
	table.SourceHash = hex.EncodeToString(hasher.Sum(nil))
	return table, nil
}

// readLine returns the next line without its terminator. A line longer
// than maxLineBytes is consumed in full and reported as tooLong with its
// content discarded. io.EOF is returned only when no bytes remain.
func readLine(br *bufio.Reader) (string, bool, error) {
	var (
		buf     []byte
		read    int
		tooLong bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && read > 0:
		case err != nil:
			return "", false, err
		}
		return strings.TrimRight(string(buf), "\r\n"), tooLong, nil
	}
}

// maybeGunzip transparently decompresses gzip input, recognised by its
// magic bytes, so station files can be stored and uploaded as .csv.gz.
func maybeGunzip(br *bufio.Reader) (io.ReadCloser, error) {
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return io.NopCloser(br), nil
	}
	gz, err := pgzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return gz, nil
}

// splitLine parses one data line into exactly ColumnCount fields. Trailing
// empty fields left by a trailing delimiter are ignored.
func splitLine(line string) ([]string, bool) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	fields, err := cr.Read()
	if err != nil {
		return nil, false
	}
	for len(fields) > ColumnCount && strings.TrimSpace(fields[len(fields)-1]) == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) != ColumnCount {
		return nil, false
	}
	return fields, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseTemp(s string) sql.NullFloat64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullFloat64{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

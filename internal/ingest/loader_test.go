package ingest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"golang.org/x/text/encoding/korean"

	"github.com/lox/sameday/internal/models"
)

var preamble = []string{
	"[검색조건]",
	"자료구분 : 일",
	"자료형태 : 기본",
	"지점번호 : 108",
	"기간 : 19071001~20241231",
	"",
	"",
}

const header = "날짜,지점,평균기온(℃),최저기온(℃),최고기온(℃)"

// fixture builds an EUC-KR encoded station export around the given data lines.
func fixture(t *testing.T, lines ...string) []byte {
	t.Helper()
	all := append(append([]string{}, preamble...), header)
	all = append(all, lines...)
	enc, err := korean.EUCKR.NewEncoder().String(strings.Join(all, "\r\n") + "\r\n")
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return []byte(enc)
}

func TestLoad_Clean(t *testing.T) {
	data := fixture(t,
		"\t2020-08-01,108,27.5,24.1,31.9",
		"2020-08-02,108,28.0,,32.4",
		"2020-08-03,108,,,",
	)

	table, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}

	r := table.Records[0]
	if !r.Date.Equal(time.Date(2020, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v, want 2020-08-01", r.Date)
	}
	if r.Station != "108" {
		t.Errorf("Station = %q, want 108", r.Station)
	}
	if !r.AvgTemp.Valid || r.AvgTemp.Float64 != 27.5 {
		t.Errorf("AvgTemp = %+v, want 27.5", r.AvgTemp)
	}
	if r.Year != 2020 || r.Month != time.August || r.Day != 1 {
		t.Errorf("derived fields = %d-%d-%d", r.Year, r.Month, r.Day)
	}
	if r.Key != (models.MonthDay{Month: time.August, Day: 1}) {
		t.Errorf("Key = %v, want 08-01", r.Key)
	}

	if table.Records[1].MinTemp.Valid {
		t.Error("blank min temp should be null")
	}
	if table.Records[2].AvgTemp.Valid {
		t.Error("blank avg temp should be null but the row kept")
	}
	if table.ValidCount() != 2 {
		t.Errorf("ValidCount = %d, want 2", table.ValidCount())
	}
}

func TestLoad_DropsBlankAndNanDates(t *testing.T) {
	data := fixture(t,
		"2021-01-01,108,-3.1,-7.0,1.2",
		",108,1.0,0.0,2.0",
		"   ,108,1.0,0.0,2.0",
		"nan,108,1.0,0.0,2.0",
		"NaN,108,1.0,0.0,2.0",
		"2021-01-02,108,-2.0,-6.0,2.5",
		"not-a-date,108,1.0,0.0,2.0",
		"2021-02-30,108,1.0,0.0,2.0",
		"2021-01-03,,1.0,0.0,2.0",
		"2021-01-04,108,0.5,-2.0,3.0",
	)

	table, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var got []string
	for _, r := range table.Records {
		got = append(got, r.Date.Format("2006-01-02"))
	}
	want := []string{"2021-01-01", "2021-01-02", "2021-01-04"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("dates = %v, want %v", got, want)
	}

	rep := table.Report
	if rep.BlankDates != 4 {
		t.Errorf("BlankDates = %d, want 4", rep.BlankDates)
	}
	if rep.BadDates != 2 {
		t.Errorf("BadDates = %d, want 2", rep.BadDates)
	}
	if rep.BlankStations != 1 {
		t.Errorf("BlankStations = %d, want 1", rep.BlankStations)
	}
	if rep.RowsKept != 3 {
		t.Errorf("RowsKept = %d, want 3", rep.RowsKept)
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	data := fixture(t,
		"2019-05-01,108,15.0,10.0,20.0",
		"2019-05-02,108,15.5",
		"2019-05-03,108,16.0,11.0,21.0,extra",
		"2019-05-04,108,16.5,11.5,21.5,",
		"2019-05-05,108,\"17.0,12.0,22.0",
		"2019-05-06,108,17.5,12.5,22.5",
	)

	table, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var got []int
	for _, r := range table.Records {
		got = append(got, r.Day)
	}
	want := []int{1, 4, 6}
	if len(got) != len(want) {
		t.Fatalf("days = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("days = %v, want %v", got, want)
			break
		}
	}
	if table.Report.MalformedLines != 3 {
		t.Errorf("MalformedLines = %d, want 3", table.Report.MalformedLines)
	}
}

func TestLoad_PreambleIsSkippedUnconditionally(t *testing.T) {
	// A data-looking line inside the preamble must not be loaded.
	lines := []string{
		"1900-01-01,108,1,1,1",
		"", "", "", "", "", "",
		header,
		"2000-01-01,108,2,1,3",
	}
	enc, err := korean.EUCKR.NewEncoder().String(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatal(err)
	}

	table, err := Load(strings.NewReader(enc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 1 || table.Records[0].Year != 2000 {
		t.Errorf("records = %+v, want only 2000-01-01", table.Records)
	}
}

func TestLoad_Deterministic(t *testing.T) {
	data := fixture(t,
		"1990-12-31,108,-5.0,-9.0,-1.0",
		"bogus",
		"1991-01-01,108,-4.0,-8.0,0.0",
	)

	a, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != b.Len() || a.Report != b.Report || a.SourceHash != b.SourceHash {
		t.Fatalf("loads differ: %+v vs %+v", a.Report, b.Report)
	}
	for i := range a.Records {
		if a.Records[i] != b.Records[i] {
			t.Errorf("record %d differs: %+v vs %+v", i, a.Records[i], b.Records[i])
		}
	}
	if a.SourceHash != HashSource(data) {
		t.Errorf("SourceHash = %s, want %s", a.SourceHash, HashSource(data))
	}
}

func TestLoad_AlternateDateLayouts(t *testing.T) {
	data := fixture(t,
		"2001/03/04,108,1,0,2",
		"2001.03.05,108,1,0,2",
		"20010306,108,1,0,2",
		"2001-03-07 00:00:00,108,1,0,2",
	)

	table, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("Len = %d, want 4", table.Len())
	}
	for i, r := range table.Records {
		if r.Day != 4+i || r.Month != time.March || r.Year != 2001 {
			t.Errorf("record %d = %s", i, r.Date.Format("2006-01-02"))
		}
	}
}

func TestLoad_NonNumericTempIsNull(t *testing.T) {
	data := fixture(t, "2005-06-07,108,nan,x,21.0")

	table, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := table.Records[0]
	if r.AvgTemp.Valid || r.MinTemp.Valid {
		t.Errorf("AvgTemp/MinTemp should be null: %+v %+v", r.AvgTemp, r.MinTemp)
	}
	if !r.MaxTemp.Valid {
		t.Error("MaxTemp should be valid")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestLoad_ReadFailureIsParseError(t *testing.T) {
	table, err := Load(failingReader{})
	if table != nil {
		t.Error("table should be nil on error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default_data.csv")
	onDisk := fixture(t, "2010-10-10,108,15,10,20")
	if err := os.WriteFile(path, onDisk, 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("default file", func(t *testing.T) {
		data, err := ReadSource(nil, path)
		if err != nil {
			t.Fatalf("ReadSource: %v", err)
		}
		if !bytes.Equal(data, onDisk) {
			t.Error("expected the default file's bytes")
		}
	})

	t.Run("raw bytes take precedence", func(t *testing.T) {
		raw := fixture(t, "2011-11-11,108,5,1,9", "2011-11-12,108,6,2,10")
		data, err := ReadSource(raw, path)
		if err != nil {
			t.Fatalf("ReadSource: %v", err)
		}
		if !bytes.Equal(data, raw) {
			t.Error("expected the raw bytes")
		}
	})

	t.Run("no source", func(t *testing.T) {
		for _, p := range []string{filepath.Join(dir, "missing.csv"), ""} {
			data, err := ReadSource(nil, p)
			if !errors.Is(err, ErrNoSource) {
				t.Errorf("ReadSource(nil, %q) err = %v, want ErrNoSource", p, err)
			}
			if data != nil {
				t.Error("data should be nil")
			}
		}
	})
}

func TestLoad_Gzip(t *testing.T) {
	plain := fixture(t, "2012-12-12,108,1.5,-1.0,4.0", "2013-12-12,108,2.5,0.0,5.0")

	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	if _, err := gz.Write(plain); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	compressed := buf.Bytes()

	table, err := Load(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len = %d, want 2", table.Len())
	}
	if table.SourceHash != HashSource(compressed) {
		t.Error("SourceHash should cover the compressed bytes")
	}

	_, err = Load(bytes.NewReader([]byte{0x1f, 0x8b, 0x00}))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want *ParseError for truncated gzip", err)
	}
}

func TestLoad_OversizedLineIsSkipped(t *testing.T) {
	long := "2001-01-01,108," + strings.Repeat("9", 2<<20)
	table, err := Load(bytes.NewReader(fixture(t,
		"2000-01-01,108,1.0,0.0,2.0",
		long,
		"2002-01-01,108,3.0,2.0,4.0",
	)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
	if got := table.Records[1].Year; got != 2002 {
		t.Errorf("second record year = %d, want 2002", got)
	}
	if table.Report.MalformedLines != 1 || table.Report.LinesRead != 3 {
		t.Errorf("report = %+v, want 3 read and 1 malformed", table.Report)
	}
}

func TestLoad_WrongEncodingIsParseError(t *testing.T) {
	// The same export saved as UTF-8 instead of EUC-KR.
	all := append(append([]string{}, preamble...), header, "2001-03-01,서울,5.0,1.0,9.0")
	utf8Source := []byte(strings.Join(all, "\n") + "\n")

	table, err := Load(bytes.NewReader(utf8Source))
	if table != nil {
		t.Errorf("table should be nil, got %d rows", table.Len())
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if !errors.Is(err, ErrEncoding) {
		t.Errorf("err = %v, want ErrEncoding", err)
	}
}

func TestLoad_KoreanStationSurvivesDecoding(t *testing.T) {
	table, err := Load(bytes.NewReader(fixture(t, "2001-03-01,서울,5.0,1.0,9.0")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 1 || table.Records[0].Station != "서울" {
		t.Errorf("records = %+v, want station 서울", table.Records)
	}
}

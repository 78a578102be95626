package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/sameday/internal/api"
	"github.com/lox/sameday/internal/dataset"
	"github.com/lox/sameday/internal/export"
	"github.com/lox/sameday/internal/history"
	"github.com/lox/sameday/internal/htmlutil"
	"github.com/lox/sameday/internal/imagegen"
	"github.com/lox/sameday/internal/ingest"
	"github.com/lox/sameday/internal/models"
	"github.com/lox/sameday/internal/store"
)

type Globals struct {
	EnvFile  kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`
	Data     string                   `help:"Default station CSV file." default:"data/default_data.csv" env:"SAMEDAY_DATA" type:"path"`
	ImageDir string                   `help:"Directory for cached banner images." default:"data/images" env:"SAMEDAY_IMAGE_DIR" type:"path"`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the web dashboard."`
	Compare CompareCmd `cmd:"" help:"Compare one date with the same day in every other year."`
	Fetch   FetchCmd   `cmd:"" help:"Download a fresh copy of the station file."`
	Export  ExportCmd  `cmd:"" help:"Write the cleaned table to SQLite, and optionally Parquet or Excel."`
	Card    CardCmd    `cmd:"" help:"Render the share card for a date to a PNG file."`
}

type ServeCmd struct {
	Port string `help:"HTTP server port." default:"8080" env:"SAMEDAY_PORT"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cache := dataset.NewCache(g.Data)
	if _, err := cache.Load(nil); err != nil {
		// The dashboard still starts so a file can be uploaded.
		log.Printf("default data unavailable: %v", err)
	}

	server := api.NewServer(cache, c.Port, g.ImageDir)
	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

type CompareCmd struct {
	Date string `help:"Date to compare (YYYY-MM-DD)." required:""`
	JSON bool   `help:"Print the comparison as JSON." name:"json"`
}

func (c *CompareCmd) Run(g *Globals) error {
	date, err := time.Parse("2006-01-02", c.Date)
	if err != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", c.Date)
	}

	t, err := dataset.NewCache(g.Data).Load(nil)
	if err != nil {
		return fmt.Errorf("load %s: %w", g.Data, err)
	}
	cmp, err := history.Compare(t, date)
	if err != nil {
		return fmt.Errorf("compare %s: %w", c.Date, err)
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(api.NewCompareResponse(cmp))
	}

	var buf bytes.Buffer
	if err := api.RenderSummary(&buf, cmp); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	fmt.Println(htmlutil.ToText(buf.String()))
	return nil
}

type FetchCmd struct {
	URL          string        `help:"Source URL (http, https or ftp)." required:"" env:"SAMEDAY_SOURCE_URL" name:"url"`
	Out          string        `help:"Where to write the file." default:"data/default_data.csv" type:"path"`
	MaxRetryTime time.Duration `help:"Give up retrying an HTTP download after this long." default:"2m"`
}

func (c *FetchCmd) Run(ctx context.Context) error {
	fetcher := ingest.NewFetcher()
	fetcher.SetMaxElapsedTime(c.MaxRetryTime)
	data, err := fetcher.Fetch(ctx, c.URL)
	if err != nil {
		return err
	}

	// Refuse to replace a working file with one that does not load.
	t, err := ingest.Load(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("downloaded file does not parse: %w", err)
	}
	if t.Len() == 0 {
		return fmt.Errorf("downloaded file has no usable rows")
	}

	if err := os.MkdirAll(filepath.Dir(c.Out), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, data, 0644); err != nil {
		return err
	}
	log.Printf("wrote %s (%d rows)", c.Out, t.Len())
	return nil
}

type ExportCmd struct {
	DB      string `help:"SQLite database path." default:"data/sameday.db" env:"SAMEDAY_DB" type:"path"`
	Force   bool   `help:"Rewrite the database even if it already holds this source."`
	Parquet string `help:"Also write the table to this Parquet file." type:"path"`
	XLSX    string `help:"Also write the table to this Excel workbook." name:"xlsx" type:"path"`
}

func (c *ExportCmd) Run(g *Globals) error {
	t, err := dataset.NewCache(g.Data).Load(nil)
	if err != nil {
		return fmt.Errorf("load %s: %w", g.Data, err)
	}

	st, db, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	written, err := st.Export(t, c.Force)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if !written {
		log.Printf("%s already holds source %s, skipping (use --force to rewrite)", c.DB, t.SourceHash[:12])
	}

	version, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	n, err := st.Count()
	if err != nil {
		return err
	}
	log.Printf("%s: %d rows, schema v%d", c.DB, n, version)

	if _, last, ok := t.ValidDateRange(); ok {
		sum, err := st.CohortSummary(models.KeyOf(last))
		if err != nil {
			return err
		}
		log.Printf("latest day %s: %d years on record, mean %.1f°C, range %.1f to %.1f°C",
			sum.Key, sum.Count, sum.Mean.Float64, sum.Min.Float64, sum.Max.Float64)
	}

	if c.Parquet != "" {
		if err := export.WriteParquet(c.Parquet, t); err != nil {
			return err
		}
		log.Printf("wrote %s", c.Parquet)
	}
	if c.XLSX != "" {
		if err := export.WriteXLSX(c.XLSX, t); err != nil {
			return err
		}
		log.Printf("wrote %s", c.XLSX)
	}
	return nil
}

type CardCmd struct {
	Date string `help:"Date to render (YYYY-MM-DD)." required:""`
	Out  string `help:"PNG output path." default:"card.png" type:"path"`
}

func (c *CardCmd) Run(g *Globals) error {
	date, err := time.Parse("2006-01-02", c.Date)
	if err != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", c.Date)
	}

	t, err := dataset.NewCache(g.Data).Load(nil)
	if err != nil {
		return fmt.Errorf("load %s: %w", g.Data, err)
	}
	cmp, err := history.Compare(t, date)
	if err != nil {
		return fmt.Errorf("compare %s: %w", c.Date, err)
	}

	banner, _ := imagegen.NewCache(g.ImageDir).Get(imagegen.BandFor(cmp.DiffFromMean))
	png, err := imagegen.RenderCard(cmp, banner)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, png, 0644); err != nil {
		return err
	}
	log.Printf("wrote %s", c.Out)
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sameday"),
		kong.Description("Compare a day's temperature with the same calendar day in every other year."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

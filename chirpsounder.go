package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/chirpsounder/config"
	"github.com/hb9tf/chirpsounder/export"
	"github.com/hb9tf/chirpsounder/ionogram"
	"github.com/hb9tf/chirpsounder/metrics"
	"github.com/hb9tf/chirpsounder/pipeline"
	"github.com/hb9tf/chirpsounder/pool"
	"github.com/hb9tf/chirpsounder/recording"
	"github.com/hb9tf/chirpsounder/schedule"

	// Blind import support for sqlite3 used by sql.go.
	_ "github.com/mattn/go-sqlite3"
)

// Flags
var (
	configFile = flag.String("config", "chirp.toml", "Path of the TOML configuration file.")
	modeName   = flag.String("mode", "", "Scheduling mode overriding the configuration (one of: batch, analytic, opportunistic)")
	identifier = flag.String("id", "", "unique identifier of worker instance (defaults to a random UUID)")
	rank       = flag.Int("rank", 0, "Ordinal of this worker in the pool.")
	size       = flag.Int("size", 1, "Number of workers in the pool.")
	workers    = flag.Int("workers", 0, "Start a pool of this many workers instead of running as one.")
	output     = flag.String("output", "", "Export mechanism to use for the ionogram catalog (one of: csv, sqlite, mysql, server). Empty disables the catalog.")

	metricsListen = flag.String("metricsListen", "", "Address to serve Prometheus metrics on, e.g. :9100. Empty disables metrics.")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/chirpsounder", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "chirpsounder", "Name of the DB to use.")

	// Catalog Server
	catalogServer          = flag.String("catalogServer", "https://localhost:8443", "URL scheme, address and port of the catalog server.")
	catalogServerSummaries = flag.Int("catalogServerSummaries", 0, "Defines how many summaries should be sent to the server at once.")
)

// poolFlags are set by the launcher for every worker.
var poolFlags = map[string]bool{"workers": true, "rank": true, "size": true}

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *workers > 0 {
		if err := launch(ctx, *workers); err != nil {
			glog.Exit(err)
		}
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("unable to load configuration: %s", err)
	}
	mode := cfg.Mode()
	if *modeName != "" {
		if mode, err = schedule.ParseMode(*modeName); err != nil {
			glog.Exit(err)
		}
	}
	worker := pool.Worker{Rank: *rank, Size: *size}
	if err := worker.Validate(); err != nil {
		glog.Exit(err)
	}
	if err := cfg.ValidateWorker(mode, worker.Rank); err != nil {
		glog.Exit(err)
	}
	if *identifier == "" {
		*identifier = uuid.NewString()
	}

	m, err := metrics.NewWorker(nil)
	if err != nil {
		glog.Exitf("unable to register metrics: %s", err)
	}
	if *metricsListen != "" {
		go serveMetrics(*metricsListen, m)
	}

	reader := &recording.Reader{Dir: cfg.DataDir, FileSamples: int64(cfg.FileSamples)}
	policy, err := newPolicy(mode, cfg, worker, reader, m)
	if err != nil {
		glog.Exitf("unable to set up %s scheduling: %s", mode, err)
	}
	exporter, err := newExporter(*output)
	if err != nil {
		glog.Exit(err)
	}

	runner := &pipeline.Runner{
		Policy:           policy,
		Source:           reader,
		NewDownconverter: pipeline.ChirpFactory(cfg.Downconvert),
		Options:          cfg.Sounding(mode),
		Ionogram:         cfg.Ionogram(),
		Writer:           &ionogram.Writer{Dir: cfg.OutputDir, SaveRaw: cfg.SaveRawVoltage},
		Filters:          cfg.Filters(),
		Worker:           worker,
		Identifier:       *identifier,
		Metrics:          m,
	}

	// Export summaries.
	exported := make(chan error, 1)
	if exporter != nil {
		summaries := make(chan ionogram.Summary, 100)
		runner.Summaries = summaries
		go func() {
			// Pending summaries are still stored after a shutdown signal.
			exported <- exporter.Write(context.WithoutCancel(ctx), summaries)
		}()
		defer func() {
			close(summaries)
			if err := <-exported; err != nil {
				glog.Warningf("catalog export failed: %s", err)
			}
		}()
	}

	glog.Infof("Worker %s (%s) running in %s mode", worker, *identifier, mode)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		glog.Error(err)
	}

	glog.Flush()
}

func newPolicy(mode schedule.Mode, cfg *config.Config, w pool.Worker, reader *recording.Reader, m *metrics.Worker) (schedule.Policy, error) {
	switch mode {
	case schedule.Batch:
		return schedule.NewBatch(cfg.OutputDir, w, cfg.SampleRate, cfg.Channel)
	case schedule.Analytic:
		return &schedule.AnalyticPolicy{
			Source:       reader,
			Channel:      cfg.Channel,
			SampleRate:   cfg.SampleRate,
			Timings:      cfg.Timings(w.Rank),
			PollInterval: cfg.PollInterval.Duration,
		}, nil
	case schedule.Opportunistic:
		return &schedule.OpportunisticPolicy{
			OutputDir:            cfg.OutputDir,
			SampleRate:           cfg.SampleRate,
			MaxAnalysisFrequency: cfg.MaximumAnalysisFrequency,
			Channel:              cfg.Channel,
			Rank:                 w.Rank,
			Owner:                *identifier,
			PollInterval:         cfg.PollInterval.Duration,
			OnClaim:              m.ObserveClaim,
		}, nil
	}
	return nil, fmt.Errorf("unknown mode %s", mode)
}

func newExporter(name string) (export.Exporter, error) {
	switch strings.ToLower(name) {
	case "":
		return nil, nil
	case "csv":
		return &export.CSV{}, nil
	case "sqlite":
		db, err := sql.Open("sqlite3", *sqliteFile)
		if err != nil {
			return nil, fmt.Errorf("unable to open sqlite DB %q: %w", *sqliteFile, err)
		}
		return &export.SQL{DB: db}, nil
	case "mysql":
		db, err := openMySQL()
		if err != nil {
			return nil, err
		}
		return &export.MySQL{DB: db}, nil
	case "server":
		return &export.Server{
			Server:            *catalogServer,
			SendSummaryAmount: *catalogServerSummaries,
		}, nil
	}
	return nil, fmt.Errorf("%q is not a supported export method, pick one of: csv, sqlite, mysql, server", name)
}

func openMySQL() (*sql.DB, error) {
	pass, err := os.ReadFile(*mysqlPasswordFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read MySQL password file %q: %w", *mysqlPasswordFile, err)
	}
	cfg := mysql.Config{
		User:   *mysqlUser,
		Passwd: strings.TrimSpace(string(pass)),
		Net:    "tcp",
		Addr:   *mysqlServer,
		DBName: *mysqlDBName,
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL DB %q: %w", *mysqlServer, err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return db, nil
}

func serveMetrics(addr string, m *metrics.Worker) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(m.Handler()))
	if err := r.Run(addr); err != nil {
		glog.Warningf("metrics server stopped: %s", err)
	}
}

// launch runs n copies of this binary with the flags given on the command line.
func launch(ctx context.Context, n int) error {
	path, err := os.Executable()
	if err != nil {
		return err
	}
	var args []string
	flag.Visit(func(f *flag.Flag) {
		if !poolFlags[f.Name] {
			args = append(args, fmt.Sprintf("-%s=%s", f.Name, f.Value))
		}
	})
	l := &pool.Launcher{Path: path, Args: args, Size: n}
	return l.Run(ctx)
}

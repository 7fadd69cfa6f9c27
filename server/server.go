// The catalog server collects ionogram summaries from remote workers into a
// SQL catalog and serves the catalog and the ionogram files.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/goccy/go-json"
	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/export"
	"github.com/hb9tf/chirpsounder/ionogram"
	"github.com/hb9tf/chirpsounder/metrics"

	// Blind import support for sqlite3 used by sql.go.
	_ "github.com/mattn/go-sqlite3"
)

var (
	listen    = flag.String("listen", ":8443", "")
	certFile  = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile   = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
	output    = flag.String("output", "sqlite", "Catalog backend to use (one of: sqlite, mysql)")
	outputDir = flag.String("outputDir", "", "Directory holding the ionogram files, served under the files endpoint. Empty disables file downloads.")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/chirpsounder", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "chirpsounder", "Name of the DB to use.")
)

const (
	ionogramsEndpoint = "/chirpsounder/v1/ionograms"
	filesEndpoint     = "/chirpsounder/v1/files"
)

type CatalogServer struct {
	catalog   export.Catalog
	summaries chan<- ionogram.Summary
	outputDir string
	metrics   *metrics.Server
}

func (s *CatalogServer) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/"+export.CollectEndpoint, s.collectHandler)
	r.GET(ionogramsEndpoint, s.listHandler)
	if s.outputDir != "" {
		r.GET(filesEndpoint+"/*path", s.fileHandler)
	}
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return r
}

func (s *CatalogServer) collectHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.metrics.CollectErrors.Inc()
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	summaries := []ionogram.Summary{}
	if err := json.Unmarshal(body, &summaries); err != nil {
		s.metrics.CollectErrors.Inc()
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	for i, summary := range summaries {
		select {
		case s.summaries <- summary:
		case <-c.Request.Context().Done():
			s.metrics.SummariesCollected.Add(float64(i))
			c.String(http.StatusServiceUnavailable, "request cancelled after %d summaries", i)
			return
		}
	}
	s.metrics.SummariesCollected.Add(float64(len(summaries)))
	c.JSON(http.StatusOK, export.CollectResponse{
		Status:       "ok",
		SummaryCount: len(summaries),
	})
}

func parseQuery(c *gin.Context) (export.Query, error) {
	q := export.Query{}
	if v := c.Query("id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("invalid id %q: %w", v, err)
		}
		q.SounderID = &id
	}
	for _, t := range []struct {
		key string
		dst *time.Time
	}{
		{"from", &q.From},
		{"to", &q.To},
	} {
		v := c.Query(t.key)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, fmt.Errorf("invalid %s %q: %w", t.key, v, err)
		}
		*t.dst = ts
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return q, fmt.Errorf("invalid limit %q", v)
		}
		q.Limit = limit
	}
	return q, nil
}

func (s *CatalogServer) listHandler(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	summaries, err := s.catalog.List(c.Request.Context(), q)
	if err != nil {
		glog.Warningf("unable to list ionograms: %s", err)
		c.String(http.StatusInternalServerError, "unable to list ionograms")
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *CatalogServer) fileHandler(c *gin.Context) {
	// Clean against the root so the path cannot leave the output directory.
	rel := filepath.Clean("/" + c.Param("path"))
	c.File(filepath.Join(s.outputDir, rel))
}

func openCatalog(name string) (export.Catalog, error) {
	switch strings.ToLower(name) {
	case "sqlite":
		db, err := sql.Open("sqlite3", *sqliteFile)
		if err != nil {
			return nil, fmt.Errorf("unable to open sqlite DB %q: %w", *sqliteFile, err)
		}
		return &export.SQL{DB: db}, nil
	case "mysql":
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
		return &export.MySQL{DB: db}, nil
	}
	return nil, fmt.Errorf("%q is not a supported catalog, pick one of: sqlite, mysql", name)
}

func main() {
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := openCatalog(*output)
	if err != nil {
		glog.Exit(err)
	}
	m, err := metrics.NewServer(nil)
	if err != nil {
		glog.Exitf("unable to register metrics: %s", err)
	}

	// Store summaries.
	summaries := make(chan ionogram.Summary, 1000)
	go func() {
		if err := catalog.Write(ctx, summaries); err != nil {
			glog.Fatal(err)
		}
	}()

	// Configure and run webserver.
	gin.SetMode(gin.ReleaseMode)
	s := &CatalogServer{
		catalog:   catalog,
		summaries: summaries,
		outputDir: *outputDir,
		metrics:   m,
	}
	server := &http.Server{
		Addr:    *listen,
		Handler: s.router(),
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdown)
	}()

	if *certFile != "" || *keyFile != "" {
		err = server.ListenAndServeTLS(*certFile, *keyFile)
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		glog.Error(err)
	}

	glog.Flush()
}

package export

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/ionogram"
)

const (
	sqlSummaryCountInfo = 100

	sqlCreateTableTmpl = `CREATE TABLE IF NOT EXISTS ionograms (
		"ID"             INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Identifier"     TEXT NOT NULL,
		"WorkerRank"     INTEGER,
		"SounderID"      INTEGER,
		"Channel"        TEXT,
		"Start"          INTEGER,
		"ChirpRate"      REAL,
		"SampleRate"     REAL,
		"Freqs"          INTEGER,
		"Ranges"         INTEGER,
		"MissingWindows" INTEGER,
		"PeakPower"      REAL,
		"Path"           TEXT NOT NULL
	);`
	sqlInsertSummaryTmpl = `INSERT INTO ionograms (
		Identifier,
		WorkerRank,
		SounderID,
		Channel,
		Start,
		ChirpRate,
		SampleRate,
		Freqs,
		Ranges,
		MissingWindows,
		PeakPower,
		Path
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	sqlSelectSummariesTmpl = `SELECT
		Identifier,
		WorkerRank,
		SounderID,
		Channel,
		Start,
		ChirpRate,
		SampleRate,
		Freqs,
		Ranges,
		MissingWindows,
		PeakPower,
		Path
	FROM ionograms WHERE Start >= ? AND Start < ?`
)

// Catalog is an exporter that can be queried for what it stored.
type Catalog interface {
	Exporter
	List(context.Context, Query) ([]ionogram.Summary, error)
}

// Query selects catalog entries by start time and sounder. Zero values match
// everything.
type Query struct {
	SounderID *int
	From      time.Time
	To        time.Time
	Limit     int
}

// SQL stores summaries in a sqlite DB.
type SQL struct {
	DB *sql.DB
}

func (s *SQL) Write(ctx context.Context, summaries <-chan ionogram.Summary) error {
	if err := sqlExec(ctx, s.DB, sqlCreateTableTmpl); err != nil {
		return fmt.Errorf("unable to create table: %w", err)
	}
	return sqlStore(ctx, s.DB, "sqlite", summaries)
}

func (s *SQL) List(ctx context.Context, q Query) ([]ionogram.Summary, error) {
	return sqlList(ctx, s.DB, q)
}

func sqlExec(ctx context.Context, db *sql.DB, tmpl string, args ...any) error {
	statement, err := db.PrepareContext(ctx, tmpl)
	if err != nil {
		return err
	}
	defer statement.Close()
	if _, err := statement.ExecContext(ctx, args...); err != nil {
		return err
	}

	return nil
}

func sqlStore(ctx context.Context, db *sql.DB, name string, summaries <-chan ionogram.Summary) error {
	counts := map[string]int{
		"error":   0,
		"success": 0,
		"total":   0,
	}
	for s := range summaries {
		counts["total"] += 1
		if err := sqlInsertSummary(ctx, db, s); err != nil {
			counts["error"] += 1
			glog.Warningf("error storing in %s DB: %s\n", name, err)
			continue
		}
		counts["success"] += 1
		if counts["total"]%sqlSummaryCountInfo == 0 {
			glog.Infof("Ionogram export counts: %+v\n", counts)
		}
	}

	return nil
}

func sqlInsertSummary(ctx context.Context, db *sql.DB, s ionogram.Summary) error {
	return sqlExec(ctx, db, sqlInsertSummaryTmpl,
		s.Identifier, s.Rank, s.SounderID, s.Channel, s.Start.UnixNano(),
		s.ChirpRate, s.SampleRate, s.Freqs, s.Ranges, s.MissingWindows, s.PeakPower, s.Path)
}

func sqlList(ctx context.Context, db *sql.DB, q Query) ([]ionogram.Summary, error) {
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if !q.From.IsZero() {
		from = q.From.UnixNano()
	}
	if !q.To.IsZero() {
		to = q.To.UnixNano()
	}

	var stmt strings.Builder
	stmt.WriteString(sqlSelectSummariesTmpl)
	args := []any{from, to}
	if q.SounderID != nil {
		stmt.WriteString(" AND SounderID = ?")
		args = append(args, *q.SounderID)
	}
	stmt.WriteString(" ORDER BY Start")
	if q.Limit > 0 {
		stmt.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, stmt.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []ionogram.Summary{}
	for rows.Next() {
		var s ionogram.Summary
		var start int64
		if err := rows.Scan(&s.Identifier, &s.Rank, &s.SounderID, &s.Channel, &start,
			&s.ChirpRate, &s.SampleRate, &s.Freqs, &s.Ranges, &s.MissingWindows, &s.PeakPower, &s.Path); err != nil {
			return nil, err
		}
		s.Start = time.Unix(0, start).UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

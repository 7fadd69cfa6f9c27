package export

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hb9tf/chirpsounder/ionogram"
)

const (
	mysqlCreateTableTmpl = `CREATE TABLE IF NOT EXISTS ionograms (
		ID             BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		Identifier     VARCHAR(64) NOT NULL,
		WorkerRank     INT,
		SounderID      INT,
		Channel        VARCHAR(64),
		Start          BIGINT,
		ChirpRate      DOUBLE,
		SampleRate     DOUBLE,
		Freqs          INT,
		Ranges         INT,
		MissingWindows INT,
		PeakPower      DOUBLE,
		Path           VARCHAR(1024) NOT NULL,
		INDEX (Start)
	);`
)

type MySQL struct {
	DB *sql.DB
}

func (m *MySQL) Write(ctx context.Context, summaries <-chan ionogram.Summary) error {
	if err := sqlExec(ctx, m.DB, mysqlCreateTableTmpl); err != nil {
		return fmt.Errorf("unable to create table: %w", err)
	}
	return sqlStore(ctx, m.DB, "MySQL", summaries)
}

func (m *MySQL) List(ctx context.Context, q Query) ([]ionogram.Summary, error) {
	return sqlList(ctx, m.DB, q)
}

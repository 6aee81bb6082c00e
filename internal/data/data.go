package data

import (
	"database/sql"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	_ "github.com/lib/pq"

	"github.com/iWorld-y/fin_insight/pkg/config"
)

// Data 持有数据库连接，各 repo 共用
type Data struct {
	db *sql.DB
}

// NewData 建立数据库连接并初始化表结构
func NewData(cfg config.DBConfig, logger log.Logger) (*Data, func(), error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &Data{db: db}
	if err := d.initSchema(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		db.Close()
	}
	return d, cleanup, nil
}

func (d *Data) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analysis_results (
			id SERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			analysis_type TEXT NOT NULL,
			result JSONB NOT NULL,
			confidence DOUBLE PRECISION,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_doc_type
			ON analysis_results (document_id, analysis_type)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id TEXT PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id SERIAL PRIMARY KEY,
			session_id TEXT REFERENCES chat_sessions(session_id),
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS financial_snapshots (
			id SERIAL PRIMARY KEY,
			document_id TEXT NOT NULL,
			period TEXT NOT NULL,
			fields JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (document_id, period)
		)`,
		`CREATE TABLE IF NOT EXISTS industry_benchmarks (
			id SERIAL PRIMARY KEY,
			industry TEXT NOT NULL,
			company_size TEXT NOT NULL DEFAULT '',
			ratio_name TEXT NOT NULL,
			mean DOUBLE PRECISION NOT NULL,
			median DOUBLE PRECISION NOT NULL,
			percentiles JSONB NOT NULL,
			UNIQUE (industry, company_size, ratio_name)
		)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}

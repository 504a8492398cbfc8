package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DB - каталог экспортированных чанков в MariaDB
type DB struct {
	conn *sql.DB
}

func New(host string, port int, user, password, dbname string) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		user, password, host, port, dbname)

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Wrap uses an already opened connection.
func Wrap(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (d *DB) Close() error {
	return d.conn.Close()
}

const createChunksTable = `
CREATE TABLE IF NOT EXISTS corpus_chunks (
	id           BIGINT AUTO_INCREMENT PRIMARY KEY,
	dataset      VARCHAR(64)  NOT NULL,
	split        VARCHAR(16)  NOT NULL,
	chunk_id     VARCHAR(255) NOT NULL,
	file_path    VARCHAR(1024) NOT NULL,
	file_hash    CHAR(32)     NOT NULL DEFAULT '',
	duration_ms  DOUBLE       NOT NULL,
	transcript   TEXT         NOT NULL,
	created_at   TIMESTAMP    DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP    DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	UNIQUE KEY uniq_chunk (dataset, chunk_id),
	KEY idx_split (dataset, split)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

func (d *DB) CreateTable(ctx context.Context) error {
	_, err := d.conn.ExecContext(ctx, createChunksTable)
	return err
}

// Package store はユーザー・セッション・タスクを永続化するSQLストアを提供する。
//
// SQLite（modernc.org/sqlite）とPostgreSQL（pgx）に対応する。
// タスクの所有者によるスコープはコントローラーが渡す所有者IDで行い、
// ストアは渡された条件をそのままSQLに反映する。
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// PostgreSQLドライバ（"pgx"）を登録する
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nao1215/tasktracker/pkg/migration"
	// SQLiteドライバ（"sqlite"）を登録する
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

var (
	// ErrNotFound はレコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail はメールアドレスが既に使用されていることを表す。
	ErrDuplicateEmail = errors.New("email already in use")
)

// Config はストアの接続設定。
type Config struct {
	// Driver は "sqlite" または "postgres"。
	Driver string
	// DSN はデータソース名。
	DSN string
}

// Store はSQLデータベースによるストア実装。
// 全メソッドは複数のゴルーチンから安全に呼び出せる。
type Store struct {
	db      *sql.DB
	dialect migration.Dialect
	now     func() time.Time
}

// Open はデータベースに接続し、マイグレーションを適用したストアを返す。
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	var (
		dialect    migration.Dialect
		driverName string
		dsn        = cfg.DSN
	)
	switch cfg.Driver {
	case "", string(migration.SQLite):
		dialect, driverName = migration.SQLite, "sqlite"
		dsn = sqliteDSN(dsn)
	case string(migration.Postgres):
		dialect, driverName = migration.Postgres, "pgx"
	default:
		return nil, fmt.Errorf("未対応のデータベースドライバです: %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if dialect == migration.SQLite {
		// SQLiteは書き込みが直列化されるため、接続を1本に絞ってロック競合を避ける。
		// インメモリDBでも全クエリが同じDBを参照する。
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if err := migration.Run(ctx, db, dialect, migrationsFS, "migrations/"+string(dialect), logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	return &Store{db: db, dialect: dialect, now: time.Now}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// sqliteDSN は外部キー制約とビジータイムアウトのプラグマをDSNに付与する。
// 既にプラグマが指定されている場合はそのまま返す。
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// rebind はプレースホルダー "?" を方言に合わせて変換する。
func (s *Store) rebind(query string) string {
	if s.dialect != migration.Postgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp はストアに保存する現在時刻を返す。
func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// withTx はトランザクション内でfnを実行する。fnがエラーを返した場合はロールバックする。
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session はユーザーに発行された有効なトークン。
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
}

// AddSession はユーザーのセッションにトークンを追加する。
// ユーザーが存在しない場合は ErrNotFound を返す。
func (s *Store) AddSession(ctx context.Context, userID, token string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM users WHERE id = ?`), userID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("ユーザー確認に失敗: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)`),
			token, userID, s.timestamp(),
		); err != nil {
			return fmt.Errorf("セッション追加に失敗: %w", err)
		}
		return nil
	})
}

// SessionExists はトークンがユーザーの有効なセッションとして登録されているかを返す。
// ユーザー自体が削除されている場合は false を返す。
func (s *Store) SessionExists(ctx context.Context, userID, token string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*)
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.user_id = ?`),
		token, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("セッション確認に失敗: %w", err)
	}
	return n > 0, nil
}

// DeleteSession はユーザーのセッションから1つのトークンを削除する。
// 該当するセッションがない場合は ErrNotFound を返す。
func (s *Store) DeleteSession(ctx context.Context, userID, token string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE token = ? AND user_id = ?`), token, userID)
	if err != nil {
		return fmt.Errorf("セッション削除に失敗: %w", err)
	}
	return expectAffected(res)
}

// DeleteSessions はユーザーの全セッションを削除し、削除件数を返す。
func (s *Store) DeleteSessions(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE user_id = ?`), userID)
	if err != nil {
		return 0, fmt.Errorf("セッション削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// ListSessions はユーザーのセッションを発行順に返す。
func (s *Store) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT token, user_id, created_at
		FROM sessions
		WHERE user_id = ?
		ORDER BY created_at, token`), userID)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.Token, &ss.UserID, &ss.CreatedAt); err != nil {
			return nil, fmt.Errorf("セッションの読み取りに失敗: %w", err)
		}
		sessions = append(sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗: %w", err)
	}
	return sessions, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User はユーザーのレコード。
type User struct {
	ID             string
	Name           string
	Email          string
	Age            int
	PasswordDigest string
	// HasAvatar はアバター画像が保存されているかを表す。画像本体は GetAvatar で取得する。
	HasAvatar bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const userColumns = `id, name, email, age, password_digest, avatar IS NOT NULL, created_at, updated_at`

// scanner は *sql.Row と *sql.Rows の共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Age, &u.PasswordDigest, &u.HasAvatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser はユーザーを登録する。CreatedAt と UpdatedAt はストアが設定する。
// メールアドレスが既に使用されている場合は ErrDuplicateEmail を返す。
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, name, email, age, password_digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, u.Age, u.PasswordDigest, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("ユーザー登録に失敗: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

// GetUser はIDでユーザーを取得する。
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return u, nil
}

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return u, nil
}

// ListUsers は全ユーザーを登録順に返す。
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの読み取りに失敗: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	return users, nil
}

// UpdateUser はユーザーの名前・メールアドレス・年齢・パスワードダイジェストを保存する。
// UpdatedAt はストアが更新する。
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE users
		SET name = ?, email = ?, age = ?, password_digest = ?, updated_at = ?
		WHERE id = ?`),
		u.Name, u.Email, u.Age, u.PasswordDigest, now, u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("ユーザー更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

// DeleteUser はユーザーと、そのユーザーが所有するタスクとセッションを1つのトランザクションで削除する。
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM tasks WHERE owner_id = ?`), id); err != nil {
			return fmt.Errorf("タスク削除に失敗: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE user_id = ?`), id); err != nil {
			return fmt.Errorf("セッション削除に失敗: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("ユーザー削除に失敗: %w", err)
		}
		return expectAffected(res)
	})
}

// SetAvatar はユーザーのアバター画像を保存する。nil を渡すと削除する。
func (s *Store) SetAvatar(ctx context.Context, userID string, image []byte) error {
	var value any
	if image != nil {
		value = image
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?`),
		value, s.timestamp(), userID,
	)
	if err != nil {
		return fmt.Errorf("アバター保存に失敗: %w", err)
	}
	return expectAffected(res)
}

// GetAvatar はユーザーのアバター画像を返す。
// ユーザーが存在しない場合、またはアバターが未設定の場合は ErrNotFound を返す。
func (s *Store) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT avatar FROM users WHERE id = ?`), userID).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("アバター取得に失敗: %w", err)
	}
	if len(image) == 0 {
		return nil, ErrNotFound
	}
	return image, nil
}

// expectAffected は更新・削除の対象行が存在しなかった場合に ErrNotFound を返す。
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/tasktracker/pkg/migration"
)

// Task はタスクのレコード。
type Task struct {
	ID          string
	Description string
	Completed   bool
	Owner       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SortField はタスク一覧の並び替えに使用できるフィールド。
type SortField string

const (
	SortByCreatedAt   SortField = "created_at"
	SortByUpdatedAt   SortField = "updated_at"
	SortByDescription SortField = "description"
	SortByCompleted   SortField = "completed"
)

// sortColumns は並び替えフィールドとカラム名の対応。ここにないフィールドでは並び替えない。
var sortColumns = map[SortField]string{
	SortByCreatedAt:   "created_at",
	SortByUpdatedAt:   "updated_at",
	SortByDescription: "description",
	SortByCompleted:   "completed",
}

// ErrInvalidSort は並び替えフィールドが不正であることを表す。
var ErrInvalidSort = errors.New("invalid sort field")

// TaskFilter はタスク一覧の取得条件。
type TaskFilter struct {
	// Completed が nil でない場合は完了状態で絞り込む。
	Completed *bool
	// SortBy が空の場合は作成日時の昇順。
	SortBy     SortField
	Descending bool
	// Limit が0の場合は件数を制限しない。
	Limit int
	Skip  int
}

const taskColumns = `id, description, completed, owner_id, created_at, updated_at`

func scanTask(row scanner) (*Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.Description, &t.Completed, &t.Owner, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask はタスクを登録する。CreatedAt と UpdatedAt はストアが設定する。
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO tasks (id, description, completed, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		t.ID, t.Description, t.Completed, t.Owner, now, now,
	)
	if err != nil {
		return fmt.Errorf("タスク登録に失敗: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = now, now
	return nil
}

// GetTask は所有者がownerのタスクをIDで取得する。
// 他のユーザーのタスクは存在しないものとして ErrNotFound を返す。
func (s *Store) GetTask(ctx context.Context, owner, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`), id, owner)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("タスク取得に失敗: %w", err)
	}
	return t, nil
}

// ListTasks は所有者がownerのタスクを条件に従って返す。
func (s *Store) ListTasks(ctx context.Context, owner string, f TaskFilter) ([]*Task, error) {
	query, args, err := s.listTasksQuery(owner, f)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("タスクの読み取りに失敗: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗: %w", err)
	}
	return tasks, nil
}

func (s *Store) listTasksQuery(owner string, f TaskFilter) (string, []any, error) {
	if f.Limit < 0 || f.Skip < 0 {
		return "", nil, fmt.Errorf("limit と skip は0以上である必要があります: limit=%d skip=%d", f.Limit, f.Skip)
	}

	var (
		b    strings.Builder
		args = []any{owner}
	)
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`)
	if f.Completed != nil {
		b.WriteString(` AND completed = ?`)
		args = append(args, *f.Completed)
	}

	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = SortByCreatedAt
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidSort, f.SortBy)
	}
	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	// 同値の並びを安定させるため作成日時とIDを第2キーにする
	fmt.Fprintf(&b, ` ORDER BY %s %s, created_at ASC, id ASC`, column, dir)

	switch {
	case f.Limit > 0:
		b.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	case f.Skip > 0 && s.dialect == migration.SQLite:
		// SQLiteはLIMITなしのOFFSETを受け付けない
		b.WriteString(` LIMIT -1`)
	}
	if f.Skip > 0 {
		b.WriteString(` OFFSET ?`)
		args = append(args, f.Skip)
	}
	return s.rebind(b.String()), args, nil
}

// UpdateTask はタスクの説明と完了状態を保存する。UpdatedAt はストアが更新する。
// 所有者が一致しない場合は ErrNotFound を返す。
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE tasks
		SET description = ?, completed = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`),
		t.Description, t.Completed, now, t.ID, t.Owner,
	)
	if err != nil {
		return fmt.Errorf("タスク更新に失敗: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	t.UpdatedAt = now
	return nil
}

// DeleteTask は所有者がownerのタスクを削除し、削除したタスクを返す。
func (s *Store) DeleteTask(ctx context.Context, owner, id string) (*Task, error) {
	var deleted *Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`), id, owner)
		t, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("タスク取得に失敗: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`), id, owner); err != nil {
			return fmt.Errorf("タスク削除に失敗: %w", err)
		}
		deleted = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Package logging はアプリケーション全体で使用する構造化ロガーを生成する。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New は指定されたレベルと形式の構造化ロガーを生成する。
// levelは debug / info / warn / error、formatは text / json を受け付ける。
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("ログレベルが不正です: %q", level)
	}

	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("ログ形式が不正です: %q", format)
	}
}

// Discard は出力を全て破棄するロガーを返す。テストで使用する。
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

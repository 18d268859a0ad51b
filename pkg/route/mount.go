package route

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrDuplicatePrefix は同じプレフィックスに複数のコントローラーがマウントされたことを表す。
var ErrDuplicatePrefix = errors.New("duplicate controller prefix")

// Controller はプレフィックスとルートテーブルを持つリソースコントローラー。
type Controller interface {
	// Prefix はコントローラーをマウントするパス（"/users" など）を返す。
	Prefix() string
	// Table はコントローラーのルートテーブルを返す。
	Table() *Table
}

// Mount は各コントローラーのルートテーブルをプレフィックス配下に登録する。
// プレフィックスの振り分け以外の処理は行わない。
func Mount(r gin.IRouter, logger *slog.Logger, controllers ...Controller) error {
	seen := make(map[string]struct{}, len(controllers))
	for _, ctrl := range controllers {
		prefix := ctrl.Prefix()
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%w: prefix must start with '/': %q", ErrInvalidRoute, prefix)
		}
		if _, ok := seen[prefix]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicatePrefix, prefix)
		}
		seen[prefix] = struct{}{}

		table := ctrl.Table()
		if err := table.Bind(r.Group(prefix)); err != nil {
			return fmt.Errorf("%s のルート登録に失敗: %w", prefix, err)
		}

		logger.Info("コントローラーをマウント", "prefix", prefix, "controller", fmt.Sprintf("%T", ctrl))
		for _, rt := range table.Routes() {
			logger.Info(fmt.Sprintf("[%s] %s%s", rt.Method, prefix, rt.Path))
		}
	}
	return nil
}

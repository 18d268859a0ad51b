// Package route はコントローラー単位のルートテーブルと、
// 複数のテーブルをパスプレフィックス配下にマウントするディスパッチャーを提供する。
//
// ルートは宣言順にGinへ登録される。認証などのゲートはパス単位で宣言し、
// 該当パス（およびその配下）のルートにのみ適用される。
package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	// ErrDuplicateRoute は同じメソッドとパスパターンのルートが複数宣言されたことを表す。
	ErrDuplicateRoute = errors.New("duplicate route")
	// ErrShadowedRoute はリテラルのルートが、先に宣言されたパラメータ付きルートに
	// 捕捉される位置に宣言されたことを表す。リテラルは先に宣言する必要がある。
	ErrShadowedRoute = errors.New("route shadowed by earlier parameter route")
	// ErrInvalidRoute はメソッドやハンドラーが欠けているなど、ルート定義が不正であることを表す。
	ErrInvalidRoute = errors.New("invalid route")
)

// Route は1つのルート定義。
type Route struct {
	// Method はHTTPメソッド（http.MethodGet など）。
	Method string
	// Path はコントローラーのプレフィックスからの相対パス。空文字列はプレフィックス自体を表す。
	Path string
	// Handler はルートのハンドラー。
	Handler gin.HandlerFunc
	// Gates はこのルートにのみ適用するミドルウェア。パス単位のゲートの後、ハンドラーの前に実行される。
	Gates []gin.HandlerFunc
}

// pathGate はパス単位で宣言されたゲート。
type pathGate struct {
	path     string
	handlers []gin.HandlerFunc
}

// Table はコントローラーが所有するルートテーブル。
// 構築後にルートを追加することはできない。
type Table struct {
	routes []Route
	gates  []pathGate
}

// NewTable は宣言順を保持したルートテーブルを生成する。
func NewTable(routes ...Route) *Table {
	copied := make([]Route, len(routes))
	copy(copied, routes)
	return &Table{routes: copied}
}

// Require はpath配下の全ルートに適用するゲートを宣言する。
// pathはセグメント単位で前方一致し、"/me" は "/me/avatar" に適用されるが "/meta" には適用されない。
// パラメータセグメント（":id"）は任意のセグメントに一致する。空文字列は全ルートに適用される。
// 複数回呼び出した場合は宣言順に実行される。
func (t *Table) Require(path string, handlers ...gin.HandlerFunc) *Table {
	t.gates = append(t.gates, pathGate{path: path, handlers: handlers})
	return t
}

// Routes は宣言順のルート定義のコピーを返す。
func (t *Table) Routes() []Route {
	routes := make([]Route, len(t.routes))
	copy(routes, t.routes)
	return routes
}

// Chain はルートに対して実行されるハンドラー列（パス単位のゲート、ルート固有のゲート、ハンドラーの順）を返す。
func (t *Table) Chain(r Route) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	for _, g := range t.gates {
		if covers(g.path, r.Path) {
			chain = append(chain, g.handlers...)
		}
	}
	chain = append(chain, r.Gates...)
	return append(chain, r.Handler)
}

// Validate はルート定義の整合性を検証する。
func (t *Table) Validate() error {
	for i, r := range t.routes {
		if r.Method == "" || r.Handler == nil {
			return fmt.Errorf("%w: [%s] %q", ErrInvalidRoute, r.Method, r.Path)
		}
		if r.Path != "" && !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("%w: path must start with '/': %q", ErrInvalidRoute, r.Path)
		}
		for _, prev := range t.routes[:i] {
			if prev.Method != r.Method {
				continue
			}
			switch compare(prev.Path, r.Path) {
			case relationSame:
				return fmt.Errorf("%w: [%s] %q", ErrDuplicateRoute, r.Method, r.Path)
			case relationShadows:
				return fmt.Errorf("%w: [%s] %q is captured by %q", ErrShadowedRoute, r.Method, r.Path, prev.Path)
			}
		}
	}
	return nil
}

// Bind はルートを宣言順にGinへ登録する。
func (t *Table) Bind(r gin.IRoutes) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, rt := range t.routes {
		r.Handle(rt.Method, rt.Path, t.Chain(rt)...)
	}
	return nil
}

// segments はパスをセグメントに分割する。
func segments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// isParam はセグメントがパラメータ（":id"）またはワイルドカード（"*path"）かを判定する。
func isParam(seg string) bool {
	return strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*")
}

// covers はゲートのパスがルートのパスを覆うかを判定する。
func covers(gatePath, routePath string) bool {
	gate := segments(gatePath)
	rt := segments(routePath)
	if len(gate) > len(rt) {
		return false
	}
	for i, seg := range gate {
		if isParam(seg) {
			continue
		}
		if seg != rt[i] {
			return false
		}
	}
	return true
}

// relation は2つのルートパスの関係。
type relation int

const (
	relationDistinct relation = iota
	relationSame
	relationShadows
)

// compare は先に宣言されたパスprevと後のパスnextの関係を返す。
func compare(prev, next string) relation {
	p := segments(prev)
	n := segments(next)

	captured := false
	for i := range p {
		if strings.HasPrefix(p[i], "*") {
			if i >= len(n) {
				return relationDistinct
			}
			if strings.HasPrefix(n[i], "*") {
				return relationSame
			}
			return relationShadows
		}
		if i >= len(n) {
			return relationDistinct
		}
		switch {
		case isParam(p[i]) && isParam(n[i]):
		case isParam(p[i]):
			captured = true
		case p[i] != n[i]:
			return relationDistinct
		}
	}
	if len(p) != len(n) {
		return relationDistinct
	}
	if captured {
		return relationShadows
	}
	return relationSame
}

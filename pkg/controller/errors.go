package controller

import (
	"errors"
)

// エラー分類。errors.Is で判定する。
var (
	// ErrValidation は入力値の検証エラー（許可されていない更新フィールド、不正なアップロードなど）。400に対応する。
	ErrValidation = errors.New("validation error")
	// ErrAuthentication は認証エラー。401に対応する。
	ErrAuthentication = errors.New("authentication error")
	// ErrNotFound はリソースが存在しない、または所有者でないことを表す。404に対応する。
	ErrNotFound = errors.New("not found")
)

// kindError は分類とメッセージを持つエラー。
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Validation は msg をメッセージとする検証エラーを返す。
func Validation(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

// Authentication は認証エラーを返す。
func Authentication(msg string) error {
	return &kindError{kind: ErrAuthentication, msg: msg}
}

// NotFound はリソース未検出エラーを返す。
func NotFound(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

// Package password はパスワードの一方向ハッシュ化と照合を提供する。
// 平文パスワードは保存も比較もせず、常にbcryptダイジェスト経由で扱う。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxBytes はbcryptが扱えるパスワードの最大バイト数。
const MaxBytes = 72

// ErrTooLong はパスワードが MaxBytes を超えていることを表す。
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hasher はbcryptによるパスワードハッシュ化を行う。
type Hasher struct {
	cost int
}

// NewHasher は指定コストのHasherを生成する。
// コストはbcryptの許容範囲に丸める。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash はパスワードからダイジェストを生成する。
// MaxBytes を超えるパスワードは切り詰めずに ErrTooLong を返す。
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxBytes {
		return "", ErrTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	return string(digest), nil
}

// Verify はパスワードがダイジェストと一致するかを判定する。
// 不一致の場合は (false, nil) を返し、ダイジェストが壊れている場合のみエラーを返す。
// MaxBytes を超えるパスワードはダイジェストを作れないため常に不一致とする。
func (h *Hasher) Verify(plain, digest string) (bool, error) {
	if len(plain) > MaxBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("パスワードの照合に失敗: %w", err)
	}
	return true, nil
}

// Package token はセッショントークン（HS256署名のJWT）の発行と検証を行う。
//
// トークンはユーザーID・発行時刻・一意なトークンID（jti）を含む。
// 失効（ログアウト）はトークン自体ではなくセッションストアからの削除で表現するため、
// このパッケージは署名と有効期限の検証のみを担当する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// issuer はトークンのiss クレームに設定する発行者名。
const issuer = "tasktracker"

var (
	// ErrInvalidToken はトークンの署名・構造・有効期限のいずれかが不正であることを表す。
	// 呼び出し元にどの検証で失敗したかを区別させないため、単一のエラーにまとめる。
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySecret は署名用シークレットが設定されていないことを表す。
	ErrEmptySecret = errors.New("token secret must not be empty")
	// ErrInvalidTTL は有効期限の設定が不正であることを表す。
	ErrInvalidTTL = errors.New("token TTL must be positive unless expiry is disabled")
	// ErrEmptyUserID は発行対象のユーザーIDが空であることを表す。
	ErrEmptyUserID = errors.New("user ID must not be empty")
)

// Claims はセッショントークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	// UserID はトークンを所有するユーザーの一意識別子。
	UserID string `json:"user_id"`
}

// Config はトークンサービスの設定。
type Config struct {
	// Secret はHS256署名用の秘密鍵。空は許可しない。
	Secret []byte
	// TTL はトークンの有効期間。DisableExpiry が false の場合は正の値が必須。
	TTL time.Duration
	// DisableExpiry を true にすると exp クレームを付与しない。
	// 有効期限なしは明示的な設定でのみ選択できる。
	DisableExpiry bool
}

// Service はセッショントークンの発行と検証を行う。
// 生成後は読み取り専用のため、複数のゴルーチンから安全に使用できる。
type Service struct {
	secret        []byte
	ttl           time.Duration
	disableExpiry bool
	now           func() time.Time
}

// New は新しいトークンサービスを生成する。
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	if !cfg.DisableExpiry && cfg.TTL <= 0 {
		return nil, ErrInvalidTTL
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Service{
		secret:        secret,
		ttl:           cfg.TTL,
		disableExpiry: cfg.DisableExpiry,
		now:           time.Now,
	}, nil
}

// Issue はユーザーIDに紐づく署名済みトークンを生成する。
// jti に毎回新しいUUIDを設定するため、同一秒内の発行でも値は重複しない。
func (s *Service) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.New().String(),
			Subject:  userID,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		UserID: userID,
	}
	if !s.disableExpiry {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、ユーザーIDを返す。
// 失敗時は常に ErrInvalidToken をラップしたエラーを返す。
func (s *Service) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	keyFunc := func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == "" || claims.Subject != claims.UserID {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// Package config は環境変数からサーバー設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// DefaultJWTSecret は JWT_SECRET 未設定時に使用する開発用シークレット。
// 本番環境では必ず上書きすること。
const DefaultJWTSecret = "dev-secret-key"

// ErrInvalidConfig は設定値が不正であることを表す。
var ErrInvalidConfig = errors.New("invalid configuration")

// Config はサーバー全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`

	Database Database
	Token    Token
	Mail     Mail

	// BcryptCost はパスワードダイジェストの計算コスト。
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
	// RequestTimeout は1リクエストあたりの処理期限。0以下で無効。
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	// CORSAllowedOrigins はCORSを許可するオリジン。空の場合はCORSヘッダーを付与しない。
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Database はデータベース接続の設定。
type Database struct {
	Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DATABASE_DSN" envDefault:"/data/tasktracker.db"`
}

// Token はセッショントークンの設定。
type Token struct {
	Secret        string        `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	TTL           time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	DisableExpiry bool          `env:"TOKEN_DISABLE_EXPIRY" envDefault:"false"`
}

// Mail はメール送信の設定。Host が空の場合はメールを送信せずログに記録する。
type Mail struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"2525"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	Sender   string `env:"MAIL_SENDER" envDefault:"noreply@tasktracker.local"`
}

// Enabled はSMTPによるメール送信が設定されているかを返す。
func (m Mail) Enabled() bool {
	return m.Host != ""
}

// Load は環境変数から設定を読み込み、検証する。
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom は指定された環境変数のマップから設定を読み込む。テストで使用する。
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: DATABASE_DRIVER は sqlite または postgres を指定してください: %q", ErrInvalidConfig, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: DATABASE_DSN が空です", ErrInvalidConfig)
	}
	if c.Port == "" {
		return fmt.Errorf("%w: PORT が空です", ErrInvalidConfig)
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET が空です", ErrInvalidConfig)
	}
	if !c.Token.DisableExpiry && c.Token.TTL <= 0 {
		return fmt.Errorf("%w: TOKEN_TTL は正の値を指定するか、TOKEN_DISABLE_EXPIRY=true を設定してください", ErrInvalidConfig)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: BCRYPT_COST は %d から %d の範囲で指定してください: %d", ErrInvalidConfig, bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: LOG_FORMAT は text または json を指定してください: %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.Mail.Sender == "" {
		return fmt.Errorf("%w: MAIL_SENDER が空です", ErrInvalidConfig)
	}
	return nil
}

// UsesDefaultSecret は開発用シークレットが使用されているかを返す。
func (c Config) UsesDefaultSecret() bool {
	return c.Token.Secret == DefaultJWTSecret
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

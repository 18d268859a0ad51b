package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// ErrInvalidMessage は宛先・件名・送信元のいずれかが欠けたメッセージを表す。
var ErrInvalidMessage = errors.New("invalid mail message")

// Message は送信するメール。
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// validate はヘッダーインジェクションを防ぐため改行を含む値を拒否する。
func (m Message) validate() error {
	if m.From == "" || m.To == "" || m.Subject == "" {
		return ErrInvalidMessage
	}
	for _, v := range []string{m.From, m.To, m.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: header contains newline", ErrInvalidMessage)
		}
	}
	return nil
}

// bytes はRFC 5322形式のメール本文を組み立てる。
func (m Message) bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// Mailer はメールを送信する。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig はSMTPサーバーの接続設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// sendFunc は smtp.SendMail と同じシグネチャの送信関数。テストで差し替える。
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer はSMTPサーバー経由でメールを送信する。
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	send sendFunc
}

// NewSMTPMailer は新しいSMTPメーラーを生成する。
// ユーザー名が空の場合は認証なしで送信する。
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth: auth,
		send: smtp.SendMail,
	}
}

// Send はメールを送信する。
// net/smtp はコンテキストに対応しないため、送信開始前のキャンセルのみを反映する。
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, msg.From, []string{msg.To}, msg.bytes()); err != nil {
		return fmt.Errorf("SMTP送信に失敗 (%s): %w", m.addr, err)
	}
	return nil
}

// LogMailer はメールを送信せず、ログに記録する。SMTP未設定時に使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer は新しいログメーラーを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send はメールの宛先と件名をログに記録する。
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "メール送信（SMTP未設定のためログのみ）",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

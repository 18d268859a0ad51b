package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// sendTimeout は1通あたりの送信期限。
const sendTimeout = 30 * time.Second

const (
	welcomeSubject      = "Thanks for joining in!"
	cancellationSubject = "Sorry to see you go!"
)

// Notifier はアカウントイベントに応じたメールを組み立てて送信する。
type Notifier struct {
	mailer Mailer
	sender string
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewNotifier は新しい通知送信者を生成する。senderは送信元アドレス。
func NewNotifier(mailer Mailer, sender string, logger *slog.Logger) *Notifier {
	return &Notifier{mailer: mailer, sender: sender, logger: logger}
}

// Welcome は登録したユーザーへウェルカムメールを送る。
func (n *Notifier) Welcome(ctx context.Context, email, name string) {
	n.dispatch(ctx, Message{
		From:    n.sender,
		To:      email,
		Subject: welcomeSubject,
		Body:    fmt.Sprintf("Welcome to the app, %s. Let me know how you get along with the app", name),
	})
}

// Cancellation は退会したユーザーへお別れメールを送る。
func (n *Notifier) Cancellation(ctx context.Context, email, name string) {
	n.dispatch(ctx, Message{
		From:    n.sender,
		To:      email,
		Subject: cancellationSubject,
		Body:    fmt.Sprintf("Goodbye, %s. I hope to see you back sometime soon", name),
	})
}

// Wait は送信中のメールがすべて完了するまで待つ。
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// dispatch はバックグラウンドでメールを送信する。
// リクエスト完了後も送信を続けるため、呼び出し元コンテキストのキャンセルは引き継がない。
func (n *Notifier) dispatch(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()

		if err := n.mailer.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "メール送信に失敗",
				slog.String("to", msg.To),
				slog.String("subject", msg.Subject),
				slog.String("error", err.Error()),
			)
			return
		}
		n.logger.InfoContext(ctx, "メールを送信",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
	})
}

// Package notification はアカウントのライフサイクルに合わせてユーザーへメールを送信する。
//
// 登録時にウェルカムメール、退会時にお別れメールを送る。
// 送信はバックグラウンドで行い、失敗はログに記録するだけでリクエストの結果には影響しない。
package notification

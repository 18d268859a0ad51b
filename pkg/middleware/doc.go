// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンによる認証ゲート、構造化アクセスログ、パニックリカバリ、
// リクエストのデッドライン設定、CORS設定を含む。
package middleware

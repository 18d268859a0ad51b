// Package controller はリソースコントローラーが共通で使用する応答ヘルパーと
// エラー分類を提供する。
//
// ハンドラーは成功時に OK / Created、失敗時に Error / NotFound / Fail のいずれか
// ちょうど1つで応答する。コラボレーター（ストアなど）のエラーはハンドラー内で捕捉し、
// Fail で分類に応じたステータスコードに変換する。
package controller

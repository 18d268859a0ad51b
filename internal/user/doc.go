// Package user はユーザーアカウントのHTTPコントローラーを提供する。
//
// 登録・ログイン・ログアウト・プロフィールの参照と更新・退会・アバター画像の管理を扱う。
// "/me" 配下と "/logout"、"/logoutAll" は認証ゲートの後ろに置かれる。
package user

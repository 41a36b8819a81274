// Package api はPairfect APIのHTTPサーフェスを提供する。
//
// サインアップとログインはIDプロバイダへ委譲し、/api/pair は認証ゲートを
// 通過したリクエストのキーワードを画像検索プロバイダへ中継する。
// プロバイダのクライアントは起動時に一度だけ生成し、Server に注入する。
package api

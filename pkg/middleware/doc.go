// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンによる認証ゲート、CORS設定、パニックリカバリ、
// リクエストID付与、アクセスログ、Prometheusメトリクスを含む。
// エラーレスポンスは常に {"detail": "..."} 形式で返す。
package middleware

// Package config はPairfect APIの起動設定を読み込む。
//
// .envファイル（Vercel上では読み込まない）と環境変数から値を取得し、
// IDプロバイダと検索プロバイダの認証情報を検証する。
// 検証に失敗した場合はエラーを返し、呼び出し側は待ち受けを開始せずに終了する。
package config

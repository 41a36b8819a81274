// Package identity は外部IDプロバイダへのアカウント作成、パスワードによるサインイン、
// Bearerトークン検証を委譲するクライアントを提供する。
//
// 本番ではFirebase Authenticationを使用し、開発時はプロセス内で完結する
// ローカル実装に切り替えられる。どちらの実装も状態をリクエスト間で共有せず、
// 並行して呼び出しても安全である。
package identity

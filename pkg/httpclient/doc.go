// Package httpclient は外部プロバイダとのJSON形式のHTTP通信を行うクライアントを提供する。
//
// IDプロバイダ（サインイン）と画像検索プロバイダの呼び出しで共通して使用する。
// リトライは行わず、1回の呼び出しごとにタイムアウトを適用する。
package httpclient

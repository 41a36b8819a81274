// Package apperror はAPI全体で共通して使用するエラー分類を提供する。
//
// プロバイダクライアントは例外ではなく分類済みのエラーを返し、
// HTTP層がその分類をステータスコードに変換する。
package apperror

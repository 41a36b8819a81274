// Package search はGoogle Custom Search APIで画像を検索するクライアントを提供する。
package search

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout は外部呼び出し1回あたりのタイムアウトの既定値。
const DefaultTimeout = 5 * time.Second

// maxErrorBody はエラー時に保持するレスポンスボディの最大バイト数。
const maxErrorBody = 64 * 1024

// Client は外部プロバイダ用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先プロバイダのベースURL。
	baseURL string
}

// StatusError はプロバイダが2xx以外のステータスを返したことを表す。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Body はレスポンスボディ。
	Body []byte
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// New は新しいHTTPクライアントを生成する。
// timeoutが0以下の場合は DefaultTimeout を使用する。
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
	}
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, body any, result any) error {
	return c.doJSON(ctx, http.MethodPost, path, query, body, result)
}

// GetJSON は指定パスにGETリクエストを送信する。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, result)
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// クエリにはAPIキーが含まれるため、エラーメッセージから除去する
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = c.baseURL + path
		}
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

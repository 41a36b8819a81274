package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/pairfect/pkg/apperror"
	"github.com/nao1215/pairfect/pkg/httpclient"
)

const (
	// DefaultBaseURL はCustom Search APIのベースURL。
	DefaultBaseURL = "https://www.googleapis.com"
	// searchPath は検索エンドポイントのパス。
	searchPath = "/customsearch/v1"

	// MinResults は1回の検索で取得する最小件数。
	MinResults = 1
	// MaxResults はプロバイダが1回の呼び出しで返せる最大件数。
	MaxResults = 10
	// DefaultResults は件数が指定されなかった場合の取得件数。
	DefaultResults = 5
)

// Result は検索結果の1件。
type Result struct {
	// Title は画像のタイトル。
	Title string `json:"title"`
	// Link は画像のURL。
	Link string `json:"link"`
	// Thumbnail はサムネイル画像のURL。無い場合は空文字列。
	Thumbnail string `json:"thumbnail"`
	// ContextLink は画像が掲載されているページのURL。無い場合は空文字列。
	ContextLink string `json:"context_link"`
}

// Searcher はキーワードから画像を検索する。
type Searcher interface {
	Search(ctx context.Context, keyword string, maxResults int) ([]Result, error)
}

// Config は検索クライアントの設定。
type Config struct {
	// BaseURL はAPIのベースURL。空の場合は DefaultBaseURL。
	BaseURL string
	// APIKey はGoogle APIキー。
	APIKey string
	// EngineID はカスタム検索エンジンID（cx）。
	EngineID string
	// Timeout は1回の呼び出しのタイムアウト。
	Timeout time.Duration
}

// Client はCustom Search APIの Searcher 実装。
type Client struct {
	http     *httpclient.Client
	apiKey   string
	engineID string
	logger   *zap.Logger
}

var _ Searcher = (*Client)(nil)

// NewClient は検索クライアントを生成する。APIキーとエンジンIDは必須。
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, errors.New("Google APIの認証情報が設定されていません")
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:     httpclient.New(baseURL, cfg.Timeout),
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
		logger:   logger,
	}, nil
}

// ClampMaxResults は取得件数を [MinResults, MaxResults] に丸める。
func ClampMaxResults(n int) int {
	if n < MinResults {
		return MinResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

// apiResponse はCustom Search APIのレスポンスのうち使用する部分。
type apiResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
		Image *struct {
			ThumbnailLink string `json:"thumbnailLink"`
			ContextLink   string `json:"contextLink"`
		} `json:"image"`
	} `json:"items"`
}

// Search はキーワードで画像を検索し、関連度順に最大 maxResults 件を返す。
// maxResults は ClampMaxResults で丸めてから送信する。
func (c *Client) Search(ctx context.Context, keyword string, maxResults int) ([]Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, apperror.InvalidArgument("keyword is required")
	}
	num := ClampMaxResults(maxResults)

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", keyword)
	params.Set("searchType", "image")
	params.Set("num", strconv.Itoa(num))

	var resp apiResponse
	if err := c.http.GetJSON(ctx, searchPath, params, &resp); err != nil {
		c.logger.Warn("画像検索に失敗", zap.String("keyword", keyword), zap.Error(err))
		return nil, apperror.Upstream(fmt.Sprintf("Search API error: %v", err), err)
	}

	results := make([]Result, 0, min(len(resp.Items), num))
	for _, item := range resp.Items {
		if len(results) == num {
			break
		}
		r := Result{Title: item.Title, Link: item.Link}
		if item.Image != nil {
			r.Thumbnail = item.Image.ThumbnailLink
			r.ContextLink = item.Image.ContextLink
		}
		results = append(results, r)
	}

	c.logger.Debug("画像検索が完了", zap.String("keyword", keyword), zap.Int("count", len(results)))
	return results, nil
}

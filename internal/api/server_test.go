package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nao1215/pairfect/internal/identity"
	"github.com/nao1215/pairfect/internal/search"
	"github.com/nao1215/pairfect/pkg/apperror"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testToken はfakeIdentityが有効とみなすトークン。
const testToken = "valid-token"

// fakeIdentity は呼び出し回数を記録するテスト用IDプロバイダ。
type fakeIdentity struct {
	mu          sync.Mutex
	createCalls int
	signInCalls int
	verifyCalls int
	createErr   error
	signInErr   error
}

var _ identity.Provider = (*fakeIdentity)(nil)

func (f *fakeIdentity) CreateUser(_ context.Context, email, _ string) (*identity.UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &identity.UserRecord{UID: "uid-123", Email: email}, nil
}

func (f *fakeIdentity) SignIn(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInCalls++
	if f.signInErr != nil {
		return "", f.signInErr
	}
	return testToken, nil
}

func (f *fakeIdentity) VerifyToken(_ context.Context, token string) (*identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if token != testToken {
		return nil, apperror.Unauthenticated("Invalid token")
	}
	return &identity.Identity{UID: "uid-123", Email: "a@b.com"}, nil
}

func (f *fakeIdentity) counts() (create, signIn, verify int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.signInCalls, f.verifyCalls
}

// fakeSearch は受け取った引数を記録するテスト用検索プロバイダ。
type fakeSearch struct {
	mu       sync.Mutex
	calls    int
	keyword  string
	maxCount int
	results  []search.Result
	err      error
}

var _ search.Searcher = (*fakeSearch)(nil)

func (f *fakeSearch) Search(_ context.Context, keyword string, maxResults int) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keyword = keyword
	f.maxCount = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeSearch) lastCall() (calls int, keyword string, maxCount int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.keyword, f.maxCount
}

// newTestServer はフェイクのプロバイダを注入したテスト用サーバーを生成する。
func newTestServer(t *testing.T, id *fakeIdentity, s *fakeSearch) *Server {
	t.Helper()

	server, err := NewServer(Config{
		Port:           "0",
		Identity:       id,
		Search:         s,
		Logger:         zap.NewNop(),
		Registry:       prometheus.NewRegistry(),
		AllowedOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("サーバーの生成に失敗: %v", err)
	}
	return server
}

// doRequest はリクエストを送信し、レスポンスを返す。
func doRequest(t *testing.T, s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decodeBody はレスポンスボディをmapにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v (body=%s)", err, w.Body.String())
	}
	return body
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	t.Run("プロバイダが欠けている場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := NewServer(Config{Search: &fakeSearch{}}); err == nil {
			t.Error("IDプロバイダなしでエラーが返らなかった")
		}
		if _, err := NewServer(Config{Identity: &fakeIdentity{}}); err == nil {
			t.Error("検索プロバイダなしでエラーが返らなかった")
		}
	})
}

func TestHandleRoot(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
	w := doRequest(t, s, http.MethodGet, "/api", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["message"] != "Welcome to the pairfect API" {
		t.Errorf("message = %v, want %q", body["message"], "Welcome to the pairfect API")
	}
	if body["version"] != apiVersion {
		t.Errorf("version = %v, want %q", body["version"], apiVersion)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
	w := doRequest(t, s, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" || body["service"] != "pairfect" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleSignup(t *testing.T) {
	t.Parallel()

	invalid := []struct {
		name string
		body string
	}{
		{name: "メールアドレスが空の場合", body: `{"email":"","password":"secret123"}`},
		{name: "パスワードが空の場合", body: `{"email":"a@b.com","password":""}`},
		{name: "パスワードが無い場合", body: `{"email":"a@b.com"}`},
		{name: "JSONが不正な場合", body: `{"email":`},
		{name: "ボディが無い場合", body: ""},
	}

	for _, tt := range invalid {
		tt := tt
		t.Run(tt.name+"プロバイダを呼ばずに400を返すこと", func(t *testing.T) {
			t.Parallel()

			id := &fakeIdentity{}
			s := newTestServer(t, id, &fakeSearch{})
			w := doRequest(t, s, http.MethodPost, "/api/signup", tt.body, nil)

			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeBody(t, w)["detail"]; got != msgCredentialsRequired {
				t.Errorf("detail = %v, want %q", got, msgCredentialsRequired)
			}
			if create, _, _ := id.counts(); create != 0 {
				t.Errorf("CreateUser呼び出し回数 = %d, want 0", create)
			}
		})
	}

	t.Run("正しい入力でユーザーが作成され201を返すこと", func(t *testing.T) {
		t.Parallel()

		id := &fakeIdentity{}
		s := newTestServer(t, id, &fakeSearch{})
		w := doRequest(t, s, http.MethodPost, "/api/signup", `{"email":"a@b.com","password":"secret123"}`, nil)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if got := decodeBody(t, w)["message"]; got != "Successfully created user uid-123" {
			t.Errorf("message = %v, want %q", got, "Successfully created user uid-123")
		}
		if create, _, _ := id.counts(); create != 1 {
			t.Errorf("CreateUser呼び出し回数 = %d, want 1", create)
		}
	})

	t.Run("プロバイダのエラーメッセージがそのまま400で返ること", func(t *testing.T) {
		t.Parallel()

		id := &fakeIdentity{createErr: apperror.InvalidArgument("EMAIL_EXISTS")}
		s := newTestServer(t, id, &fakeSearch{})
		w := doRequest(t, s, http.MethodPost, "/api/signup", `{"email":"a@b.com","password":"secret123"}`, nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := decodeBody(t, w)["detail"]; got != "EMAIL_EXISTS" {
			t.Errorf("detail = %v, want %q", got, "EMAIL_EXISTS")
		}
	})
}

func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しい認証情報でトークンが返ること", func(t *testing.T) {
		t.Parallel()

		id := &fakeIdentity{}
		s := newTestServer(t, id, &fakeSearch{})
		w := doRequest(t, s, http.MethodPost, "/api/login", `{"email":"a@b.com","password":"secret123"}`, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := decodeBody(t, w)["token"]; got != testToken {
			t.Errorf("token = %v, want %q", got, testToken)
		}
		if _, signIn, _ := id.counts(); signIn != 1 {
			t.Errorf("SignIn呼び出し回数 = %d, want 1", signIn)
		}
	})

	t.Run("認証に失敗した場合プロバイダのメッセージで400を返すこと", func(t *testing.T) {
		t.Parallel()

		id := &fakeIdentity{signInErr: apperror.InvalidArgument("INVALID_LOGIN_CREDENTIALS")}
		s := newTestServer(t, id, &fakeSearch{})
		w := doRequest(t, s, http.MethodPost, "/api/login", `{"email":"a@b.com","password":"wrong"}`, nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if got := decodeBody(t, w)["detail"]; got != "INVALID_LOGIN_CREDENTIALS" {
			t.Errorf("detail = %v, want %q", got, "INVALID_LOGIN_CREDENTIALS")
		}
	})

	t.Run("入力が欠けている場合はプロバイダを呼ばないこと", func(t *testing.T) {
		t.Parallel()

		id := &fakeIdentity{}
		s := newTestServer(t, id, &fakeSearch{})
		w := doRequest(t, s, http.MethodPost, "/api/login", `{"email":"a@b.com"}`, nil)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if _, signIn, _ := id.counts(); signIn != 0 {
			t.Errorf("SignIn呼び出し回数 = %d, want 0", signIn)
		}
	})
}

func TestHandlePing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantDetail string
	}{
		{name: "ヘッダーが無い場合", headers: nil, wantStatus: http.StatusUnauthorized, wantDetail: "Authorization header missing"},
		{name: "Bearer形式でない場合", headers: map[string]string{"Authorization": "Basic abc"}, wantStatus: http.StatusUnauthorized, wantDetail: "Authorization header must contain a Bearer token"},
		{name: "無効なトークンの場合", headers: bearer("forged"), wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
			w := doRequest(t, s, http.MethodPost, "/api/ping", "", tt.headers)

			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeBody(t, w)["detail"]; got != tt.wantDetail {
				t.Errorf("detail = %v, want %q", got, tt.wantDetail)
			}
		})
	}

	t.Run("有効なトークンの場合uidが返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
		w := doRequest(t, s, http.MethodPost, "/api/ping", "", bearer(testToken))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		body := decodeBody(t, w)
		if body["message"] != "Token is valid" {
			t.Errorf("message = %v, want %q", body["message"], "Token is valid")
		}
		if body["uid"] != "uid-123" {
			t.Errorf("uid = %v, want %q", body["uid"], "uid-123")
		}
	})
}

func TestHandlePair(t *testing.T) {
	t.Parallel()

	t.Run("認証なしの場合は検索せずに401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := &fakeSearch{}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat", "", nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if calls, _, _ := s.lastCall(); calls != 0 {
			t.Errorf("Search呼び出し回数 = %d, want 0", calls)
		}
	})

	t.Run("検索結果がキーワードと共に返ること", func(t *testing.T) {
		t.Parallel()

		s := &fakeSearch{results: []search.Result{
			{Title: "cat 1", Link: "https://img.example/1.jpg", Thumbnail: "https://img.example/t1.jpg", ContextLink: "https://example.com/1"},
			{Title: "cat 2", Link: "https://img.example/2.jpg"},
		}}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat", "", bearer(testToken))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var resp pairResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if resp.Keyword != "cat" {
			t.Errorf("keyword = %q, want %q", resp.Keyword, "cat")
		}
		if len(resp.MatchingImages) != 2 {
			t.Fatalf("matching_images件数 = %d, want 2", len(resp.MatchingImages))
		}
		if resp.MatchingImages[0].ContextLink != "https://example.com/1" {
			t.Errorf("context_link = %q, want %q", resp.MatchingImages[0].ContextLink, "https://example.com/1")
		}
		if _, _, maxCount := s.lastCall(); maxCount != search.DefaultResults {
			t.Errorf("検索件数 = %d, want %d", maxCount, search.DefaultResults)
		}
	})

	t.Run("結果が0件でも配列が返ること", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=nothing", "", bearer(testToken))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), `"matching_images":[]`) {
			t.Errorf("body = %s, want empty array", w.Body.String())
		}
	})

	clamp := []struct {
		name string
		raw  string
		want int
	}{
		{name: "15件の指定は10件に丸められること", raw: "15", want: 10},
		{name: "0件の指定は1件に丸められること", raw: "0", want: 1},
		{name: "負数の指定は1件に丸められること", raw: "-3", want: 1},
		{name: "範囲内の指定はそのまま使われること", raw: "7", want: 7},
	}

	for _, tt := range clamp {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := &fakeSearch{}
			server := newTestServer(t, &fakeIdentity{}, s)
			w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat&max_results="+tt.raw, "", bearer(testToken))

			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
			if _, _, maxCount := s.lastCall(); maxCount != tt.want {
				t.Errorf("検索件数 = %d, want %d", maxCount, tt.want)
			}
		})
	}

	t.Run("JSONボディからキーワードと件数を読み取ること", func(t *testing.T) {
		t.Parallel()

		s := &fakeSearch{}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair", `{"keyword":"dog","max_results":3}`, bearer(testToken))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		calls, keyword, maxCount := s.lastCall()
		if calls != 1 || keyword != "dog" || maxCount != 3 {
			t.Errorf("Search(%q, %d) calls=%d, want Search(%q, %d) calls=1", keyword, maxCount, calls, "dog", 3)
		}
	})

	t.Run("クエリ文字列がボディより優先されること", func(t *testing.T) {
		t.Parallel()

		s := &fakeSearch{}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat&max_results=2", `{"keyword":"dog","max_results":3}`, bearer(testToken))

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if _, keyword, maxCount := s.lastCall(); keyword != "cat" || maxCount != 2 {
			t.Errorf("Search(%q, %d), want Search(%q, %d)", keyword, maxCount, "cat", 2)
		}
	})

	invalid := []struct {
		name   string
		target string
		body   string
		detail string
	}{
		{name: "キーワードが無い場合", target: "/api/pair", detail: "keyword is required"},
		{name: "キーワードが空白のみの場合", target: "/api/pair?keyword=%20%20", detail: "keyword is required"},
		{name: "件数が整数でない場合", target: "/api/pair?keyword=cat&max_results=many", detail: "max_results must be an integer"},
		{name: "ボディが不正な場合", target: "/api/pair", body: `{"keyword":`, detail: "Invalid request body"},
	}

	for _, tt := range invalid {
		tt := tt
		t.Run(tt.name+"検索せずに400を返すこと", func(t *testing.T) {
			t.Parallel()

			s := &fakeSearch{}
			server := newTestServer(t, &fakeIdentity{}, s)
			w := doRequest(t, server, http.MethodPost, tt.target, tt.body, bearer(testToken))

			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if got := decodeBody(t, w)["detail"]; got != tt.detail {
				t.Errorf("detail = %v, want %q", got, tt.detail)
			}
			if calls, _, _ := s.lastCall(); calls != 0 {
				t.Errorf("Search呼び出し回数 = %d, want 0", calls)
			}
		})
	}

	t.Run("検索プロバイダの入力エラーは400になること", func(t *testing.T) {
		t.Parallel()

		s := &fakeSearch{err: apperror.InvalidArgument("keyword is too long")}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat", "", bearer(testToken))

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("検索プロバイダの通信失敗は500になること", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection refused")
		s := &fakeSearch{err: apperror.Upstream("Search API error: connection refused", cause)}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat", "", bearer(testToken))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		want := "Unexpected error: Search API error: connection refused"
		if got := decodeBody(t, w)["detail"]; got != want {
			t.Errorf("detail = %v, want %q", got, want)
		}
	})

	t.Run("分類されないエラーも500になること", func(t *testing.T) {
		t.Parallel()

		s := &fakeSearch{err: errors.New("boom")}
		server := newTestServer(t, &fakeIdentity{}, s)
		w := doRequest(t, server, http.MethodPost, "/api/pair?keyword=cat", "", bearer(testToken))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if got := decodeBody(t, w)["detail"]; got != "Unexpected error: boom" {
			t.Errorf("detail = %v, want %q", got, "Unexpected error: boom")
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/api/pair", "/api/signup", "/api/anything"} {
		path := path
		t.Run(path+"へのプリフライトが許可されること", func(t *testing.T) {
			t.Parallel()

			server := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
			w := doRequest(t, server, http.MethodOptions, path, "", map[string]string{
				"Origin":                         "https://app.pairfect.example",
				"Access-Control-Request-Method":  "POST",
				"Access-Control-Request-Headers": "Authorization, Content-Type",
			})

			if w.Code != http.StatusNoContent {
				t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.pairfect.example" {
				t.Errorf("Access-Control-Allow-Origin = %q", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
				t.Errorf("Access-Control-Allow-Methods = %q", got)
			}
			if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type" {
				t.Errorf("Access-Control-Allow-Headers = %q", got)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
	doRequest(t, server, http.MethodGet, "/api", "", nil)

	w := doRequest(t, server, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `pairfect_http_requests_total{method="GET",route="/api",status="200"} 1`) {
		t.Errorf("メトリクスにリクエスト数が含まれていない: %s", w.Body.String())
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストのキャンセルで停止すること", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(t, &fakeIdentity{}, &fakeSearch{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := server.Run(ctx); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
}

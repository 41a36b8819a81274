package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/nao1215/pairfect/pkg/apperror"
	"github.com/nao1215/pairfect/pkg/httpclient"
)

// DefaultToolkitURL はIdentity Toolkit REST APIのベースURL。
const DefaultToolkitURL = "https://identitytoolkit.googleapis.com"

// signInPath はパスワードサインインのエンドポイント。
const signInPath = "/v1/accounts:signInWithPassword"

// adminAuth はFirebase Admin SDKのうち本パッケージが使用する操作。
// *auth.Client がこれを満たす。
type adminAuth interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseOptions はFirebaseバックエンドの設定。
type FirebaseOptions struct {
	// CredentialsJSON はサービスアカウントの認証情報JSON。
	CredentialsJSON []byte
	// ProjectID はFirebaseプロジェクトID。
	ProjectID string
	// APIKey はクライアント設定のWeb APIキー。サインインに使用する。
	APIKey string
	// ToolkitURL はIdentity Toolkit REST APIのベースURL。
	ToolkitURL string
	// Timeout は外部呼び出し1回あたりのタイムアウト。
	Timeout time.Duration
}

// Firebase はFirebase Authenticationを使用する Provider 実装。
type Firebase struct {
	admin   adminAuth
	toolkit *httpclient.Client
	apiKey  string
	timeout time.Duration
	logger  *zap.Logger
}

var _ Provider = (*Firebase)(nil)

// NewFirebase はサービスアカウントの認証情報からFirebaseクライアントを初期化する。
// 初期化に失敗した場合はエラーを返し、呼び出し側はプロセスを終了させること。
func NewFirebase(ctx context.Context, opts FirebaseOptions, logger *zap.Logger) (*Firebase, error) {
	if len(opts.CredentialsJSON) == 0 {
		return nil, errors.New("Firebaseの認証情報が空です")
	}
	if opts.APIKey == "" {
		return nil, errors.New("FirebaseのAPIキーが空です")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: opts.ProjectID},
		option.WithCredentialsJSON(opts.CredentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("Firebaseアプリの初期化に失敗: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("Firebase Authクライアントの初期化に失敗: %w", err)
	}

	return newFirebase(client, opts, logger), nil
}

func newFirebase(admin adminAuth, opts FirebaseOptions, logger *zap.Logger) *Firebase {
	toolkitURL := opts.ToolkitURL
	if toolkitURL == "" {
		toolkitURL = DefaultToolkitURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	return &Firebase{
		admin:   admin,
		toolkit: httpclient.New(toolkitURL, timeout),
		apiKey:  opts.APIKey,
		timeout: timeout,
		logger:  logger,
	}
}

// CreateUser はFirebaseにユーザーを作成する。
// プロバイダのエラーメッセージはそのまま InvalidArgument として返す。
func (f *Firebase) CreateUser(ctx context.Context, email, password string) (*UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	params := (&auth.UserToCreate{}).Email(email).Password(password)
	u, err := f.admin.CreateUser(ctx, params)
	if err != nil {
		f.logger.Info("ユーザー作成に失敗", zap.Error(err))
		return nil, &apperror.Error{Kind: apperror.KindInvalidArgument, Message: err.Error(), Err: err}
	}

	if u == nil || u.UserInfo == nil {
		return nil, apperror.Unexpected("identity provider returned an empty user record", nil)
	}
	return &UserRecord{UID: u.UID, Email: u.Email}, nil
}

// signInRequest はsignInWithPasswordのリクエストボディ。
type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// signInResponse はsignInWithPasswordのレスポンスボディ。
type signInResponse struct {
	IDToken      string `json:"idToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// toolkitError はIdentity Toolkitのエラーレスポンス。
type toolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn はIdentity Toolkitでパスワード認証を行い、IDトークンを返す。
// 通信エラーと認証拒否は区別せず、どちらも InvalidArgument として返す。
func (f *Firebase) SignIn(ctx context.Context, email, password string) (string, error) {
	var resp signInResponse
	err := f.toolkit.PostJSON(ctx, signInPath, url.Values{"key": {f.apiKey}},
		signInRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp)
	if err != nil {
		msg := toolkitMessage(err)
		f.logger.Info("サインインに失敗", zap.String("reason", msg))
		return "", &apperror.Error{Kind: apperror.KindInvalidArgument, Message: msg, Err: err}
	}
	if resp.IDToken == "" {
		return "", apperror.InvalidArgument("identity provider returned an empty token")
	}
	return resp.IDToken, nil
}

// toolkitMessage はIdentity Toolkitのエラーからメッセージを取り出す。
// エラーボディを解釈できない場合はエラー文字列をそのまま返す。
func toolkitMessage(err error) string {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		var body toolkitError
		if json.Unmarshal(statusErr.Body, &body) == nil && body.Error.Message != "" {
			return body.Error.Message
		}
	}
	return err.Error()
}

// VerifyToken はFirebase IDトークンを検証する。
// 失敗の種類（期限切れ、署名不一致、失効など）は区別しない。
func (f *Firebase) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tok, err := f.admin.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, &apperror.Error{Kind: apperror.KindUnauthenticated, Message: "Invalid token", Err: err}
	}

	id := &Identity{UID: tok.UID, Claims: tok.Claims}
	if email, ok := tok.Claims["email"].(string); ok {
		id.Email = email
	}
	return id, nil
}

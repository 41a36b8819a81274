package config

import "time"

// IDプロバイダのバックエンド種別。
const (
	// BackendFirebase はFirebase Authenticationを使用する。
	BackendFirebase = "firebase"
	// BackendLocal はメモリ上のユーザーテーブルを使用する開発用バックエンド。
	BackendLocal = "local"
)

// Config はアプリケーション全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string
	// LogFormat はログ形式。json以外は開発者向けのコンソール形式。
	LogFormat string

	// IdentityBackend はIDプロバイダのバックエンド種別。
	IdentityBackend string
	// Firebase はFirebaseバックエンドの設定。
	Firebase FirebaseConfig
	// IdentityToolkitURL はIdentity Toolkit REST APIのベースURL。
	IdentityToolkitURL string
	// LocalJWTSecret は開発用バックエンドのトークン署名鍵。
	LocalJWTSecret string

	// Search は検索プロバイダの設定。
	Search SearchConfig

	// UpstreamTimeout は外部プロバイダ呼び出し1回あたりのタイムアウト。
	UpstreamTimeout time.Duration
	// CORSAllowedOrigins はCORSで許可するオリジン。"*" は全許可。
	CORSAllowedOrigins []string
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration
}

// FirebaseConfig はFirebaseの認証情報とクライアント設定。
type FirebaseConfig struct {
	// Credentials はサービスアカウントの認証情報JSON。
	Credentials []byte
	// Client はFIREBASE_CONFIGを解釈したクライアント設定。
	Client ClientConfig
}

// ClientConfig はFirebaseのWebクライアント設定。
// apiKey はパスワードサインインに使用する。
type ClientConfig struct {
	APIKey            string `json:"apiKey"`
	AuthDomain        string `json:"authDomain"`
	ProjectID         string `json:"projectId"`
	StorageBucket     string `json:"storageBucket"`
	MessagingSenderID string `json:"messagingSenderId"`
	AppID             string `json:"appId"`
	DatabaseURL       string `json:"databaseURL"`
}

// SearchConfig はGoogle Custom Searchの設定。
type SearchConfig struct {
	// APIKey はGoogle APIキー。
	APIKey string
	// EngineID はカスタム検索エンジンID。
	EngineID string
	// BaseURL はAPIのベースURL。
	BaseURL string
}

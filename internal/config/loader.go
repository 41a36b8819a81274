package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

// 環境変数のキー。
const (
	keyPort                = "PORT"
	keyLogLevel            = "LOG_LEVEL"
	keyLogFormat           = "LOG_FORMAT"
	keyIdentityBackend     = "IDENTITY_BACKEND"
	keyFirebaseCredentials = "FIREBASE_CREDENTIALS"
	keyFirebaseConfig      = "FIREBASE_CONFIG"
	keyIdentityToolkitURL  = "IDENTITY_TOOLKIT_URL"
	keyLocalJWTSecret      = "LOCAL_JWT_SECRET"
	keyGoogleAPIKey        = "GOOGLE_API_KEY"
	keyGoogleCSEID         = "GOOGLE_CSE_ID"
	keySearchAPIURL        = "SEARCH_API_URL"
	keyUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	keyCORSAllowedOrigins  = "CORS_ALLOWED_ORIGINS"
	keyShutdownTimeout     = "SHUTDOWN_TIMEOUT"

	// keyVercel はVercel上で実行されている場合に設定される。
	keyVercel = "VERCEL"
)

// credentialsSchema はサービスアカウント認証情報に要求する最低限の形。
const credentialsSchema = `{
  "type": "object",
  "required": ["type", "project_id", "private_key", "client_email"],
  "properties": {
    "type": {"type": "string", "enum": ["service_account"]},
    "project_id": {"type": "string", "minLength": 1},
    "private_key": {"type": "string", "minLength": 1},
    "client_email": {"type": "string", "minLength": 1}
  }
}`

// clientConfigSchema はFIREBASE_CONFIGに要求する最低限の形。
const clientConfigSchema = `{
  "type": "object",
  "required": ["apiKey", "projectId"],
  "properties": {
    "apiKey": {"type": "string", "minLength": 1},
    "projectId": {"type": "string", "minLength": 1}
  }
}`

// Load は.envファイルと環境変数から設定を読み込み、検証する。
// 環境変数VERCELが設定されている場合、.envファイルは読み込まない。
func Load() (*Config, error) {
	if os.Getenv(keyVercel) == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return load(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, "8080")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "json")
	v.SetDefault(keyIdentityBackend, BackendFirebase)
	v.SetDefault(keyIdentityToolkitURL, "https://identitytoolkit.googleapis.com")
	v.SetDefault(keySearchAPIURL, "https://www.googleapis.com")
	v.SetDefault(keyUpstreamTimeout, "5s")
	v.SetDefault(keyCORSAllowedOrigins, "*")
	v.SetDefault(keyShutdownTimeout, "10s")
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:               v.GetString(keyPort),
		LogLevel:           strings.ToLower(v.GetString(keyLogLevel)),
		LogFormat:          strings.ToLower(v.GetString(keyLogFormat)),
		IdentityBackend:    strings.ToLower(v.GetString(keyIdentityBackend)),
		IdentityToolkitURL: v.GetString(keyIdentityToolkitURL),
		LocalJWTSecret:     v.GetString(keyLocalJWTSecret),
		Search: SearchConfig{
			APIKey:   v.GetString(keyGoogleAPIKey),
			EngineID: v.GetString(keyGoogleCSEID),
			BaseURL:  v.GetString(keySearchAPIURL),
		},
		CORSAllowedOrigins: splitList(v.GetString(keyCORSAllowedOrigins)),
	}

	var err error
	if cfg.UpstreamTimeout, err = parseDuration(v, keyUpstreamTimeout); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration(v, keyShutdownTimeout); err != nil {
		return nil, err
	}

	switch cfg.IdentityBackend {
	case BackendFirebase:
		if cfg.Firebase, err = loadFirebase(v); err != nil {
			return nil, err
		}
	case BackendLocal:
		if cfg.LocalJWTSecret == "" {
			return nil, fmt.Errorf("%s が設定されていません", keyLocalJWTSecret)
		}
	default:
		return nil, fmt.Errorf("%s の値が不正です: %q", keyIdentityBackend, cfg.IdentityBackend)
	}

	if cfg.Search.APIKey == "" || cfg.Search.EngineID == "" {
		return nil, fmt.Errorf("%s と %s が設定されていません", keyGoogleAPIKey, keyGoogleCSEID)
	}

	return cfg, nil
}

// loadFirebase はFirebaseの認証情報とクライアント設定を読み込み、検証する。
func loadFirebase(v *viper.Viper) (FirebaseConfig, error) {
	credentials := strings.TrimSpace(v.GetString(keyFirebaseCredentials))
	clientConfig := strings.TrimSpace(v.GetString(keyFirebaseConfig))
	if credentials == "" || clientConfig == "" {
		return FirebaseConfig{}, fmt.Errorf("%s と %s の両方を設定してください", keyFirebaseCredentials, keyFirebaseConfig)
	}

	if err := validateJSON(credentialsSchema, credentials); err != nil {
		return FirebaseConfig{}, fmt.Errorf("%s が不正です: %w", keyFirebaseCredentials, err)
	}
	if err := validateJSON(clientConfigSchema, clientConfig); err != nil {
		return FirebaseConfig{}, fmt.Errorf("%s が不正です: %w", keyFirebaseConfig, err)
	}

	var client ClientConfig
	if err := json.Unmarshal([]byte(clientConfig), &client); err != nil {
		return FirebaseConfig{}, fmt.Errorf("%s のパースに失敗: %w", keyFirebaseConfig, err)
	}

	return FirebaseConfig{
		Credentials: []byte(credentials),
		Client:      client,
	}, nil
}

// validateJSON は文書がJSONとして正しく、スキーマを満たすことを検証する。
func validateJSON(schema, document string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(document),
	)
	if err != nil {
		return fmt.Errorf("JSONとして解釈できません: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("スキーマ検証に失敗: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s は正の値を指定してください", key)
	}
	return d, nil
}

// splitList はカンマ区切りの値を分割し、空要素を除く。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package config はゲートウェイの設定を読み込む。
//
// 設定はデフォルト値、YAMLファイル、環境変数の順に重ねて読み込まれ、
// 後から読み込んだものが優先される。読み込み後のConfigは値として扱い、変更しない。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix は環境変数のプレフィックス。
// STOREFRONT_ADMIN_SECRET は admin.secret に対応する。
const EnvPrefix = "STOREFRONT_"

// DevSessionSecret は開発用のセッション署名鍵のデフォルト値。
// 公開されている値のため、本番環境では必ず session.secret を設定する。
const DevSessionSecret = "dev-secret-key"

// legacyAdminPinEnv は旧フロントエンドが管理シークレットに使っていた環境変数名。
const legacyAdminPinEnv = "NEXT_PUBLIC_ADMIN_PIN"

// Config はゲートウェイ全体の設定。
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Admin     AdminConfig     `koanf:"admin"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	CORS      CORSConfig      `koanf:"cors"`
	DB        DBConfig        `koanf:"db"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string `koanf:"port"`
}

// UpstreamConfig は転送先（ストアフロントのレンダリングサーバー）の設定。
type UpstreamConfig struct {
	// URL は転送先のベースURL。
	URL string `koanf:"url"`
	// Timeout は転送先への1リクエストあたりのタイムアウト。
	Timeout time.Duration `koanf:"timeout"`
}

// AdminConfig は管理画面ゲートの設定。
type AdminConfig struct {
	// Prefix は保護対象のパスプレフィックス。
	Prefix string `koanf:"prefix"`
	// Param はシークレットを運ぶクエリパラメータ名。
	Param string `koanf:"param"`
	// Secret は管理画面の共有シークレット。空の場合は管理画面に入れない。
	Secret string `koanf:"secret"`
}

// SessionConfig は匿名訪問者セッションの設定。
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	Cookie string        `koanf:"cookie"`
	TTL    time.Duration `koanf:"ttl"`
	Secure bool          `koanf:"secure"`
}

// RateLimitConfig はローカルAPIのレート制限。RPSが0の場合は無効。
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// CORSConfig はCORSの許可オリジン。
type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

// DBConfig はSQLiteの設定。
type DBConfig struct {
	Path string `koanf:"path"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level string `koanf:"level"`
}

// UsesDevSessionSecret はセッション署名鍵が開発用のデフォルト値のままの場合にtrueを返す。
func (c Config) UsesDevSessionSecret() bool {
	return c.Session.Secret == DevSessionSecret
}

// defaults はデフォルト設定を返す。
func defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"port": "8080",
		},
		"upstream": map[string]any{
			"url":     "http://localhost:3000",
			"timeout": 30 * time.Second,
		},
		"admin": map[string]any{
			"prefix": "/admin",
			"param":  "key",
			"secret": "",
		},
		"session": map[string]any{
			"secret": DevSessionSecret,
			"cookie": "sf_visitor",
			"ttl":    30 * 24 * time.Hour,
			"secure": false,
		},
		"ratelimit": map[string]any{
			"rps":   20.0,
			"burst": 40,
		},
		"cors": map[string]any{
			"origins": []string{"http://localhost:3000"},
		},
		"db": map[string]any{
			"path": "/data/storefront.db",
		},
		"log": map[string]any{
			"level": "info",
		},
	}
}

// Option はLoadの挙動を変更する。
type Option func(*loadOptions)

type loadOptions struct {
	file string
}

// WithFile はYAML設定ファイルを読み込む。
func WithFile(path string) Option {
	return func(o *loadOptions) {
		o.file = path
	}
}

// Load はデフォルト値、YAMLファイル、環境変数の順に設定を読み込む。
func Load(opts ...Option) (Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	k := koanf.New(".")
	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return Config{}, fmt.Errorf("デフォルト設定の読み込みに失敗: %w", err)
	}

	if o.file != "" {
		if err := k.Load(file.Provider(o.file), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", o.file, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", transformEnv), nil); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("設定の展開に失敗: %w", err)
	}

	if cfg.Admin.Secret == "" {
		cfg.Admin.Secret = os.Getenv(legacyAdminPinEnv)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// transformEnv は STOREFRONT_UPSTREAM_URL を upstream.url に変換する。
// cors.origins はカンマ区切りのリストとして解釈する。
func transformEnv(key, value string) (string, any) {
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ReplaceAll(strings.ToLower(key), "_", ".")

	if key == "cors.origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return key, origins
	}
	return key, value
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port が空です"))
	}

	u, err := url.Parse(c.Upstream.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("upstream.url が不正です: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("upstream.url のスキームはhttpまたはhttpsである必要があります: %q", c.Upstream.URL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("upstream.url にホストがありません: %q", c.Upstream.URL))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout は正の値である必要があります"))
	}

	if !strings.HasPrefix(c.Admin.Prefix, "/") {
		errs = append(errs, fmt.Errorf("admin.prefix は / で始まる必要があります: %q", c.Admin.Prefix))
	}
	if c.Admin.Param == "" {
		errs = append(errs, errors.New("admin.param が空です"))
	}

	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret が空です"))
	}
	if c.Session.Cookie == "" {
		errs = append(errs, errors.New("session.cookie が空です"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl は正の値である必要があります"))
	}

	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("ratelimit.rps は0以上である必要があります"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("ratelimit.burst は1以上である必要があります"))
	}

	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path が空です"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("設定の検証に失敗: %w", errors.Join(errs...))
	}
	return nil
}

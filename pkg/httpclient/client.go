package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout は転送先へのリクエストのデフォルトタイムアウト。
const DefaultTimeout = 30 * time.Second

// hopByHopHeaders はプロキシで引き継いではならないヘッダー（RFC 9110 7.6.1）。
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client は転送先（ストアフロントのレンダラー）へリクエストを中継するHTTPクライアント。
// リダイレクトは追従せず、転送先の応答をそのまま呼び出し元へ返す。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は転送先のベースURL。
	baseURL *url.URL
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithTimeout は転送先へのリクエストのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTransport は内部で使用するRoundTripperを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// New は新しい転送用HTTPクライアントを生成する。
// baseURLには転送先のベースURL（例: "http://storefront-web:3000"）を指定する。
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("転送先URLの解析に失敗: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("転送先URLにスキームとホストが必要です: %q", baseURL)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: u,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL は転送先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request は転送するリクエストの内容。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// RawQuery はエンコード済みのクエリ文字列。加工せずにそのまま転送する。
	RawQuery string
	// Header はクライアントから受け取ったヘッダー。
	Header http.Header
	// Body はリクエストボディ。nilでもよい。
	Body io.Reader
	// ContentLength はボディの長さ。不明な場合は-1。
	ContentLength int64
	// ClientIP は元のクライアントのIPアドレス。X-Forwarded-Forに追記する。
	ClientIP string
	// Host は元のリクエストのHostヘッダー。X-Forwarded-Hostに設定する。
	Host string
	// Proto は元のリクエストのスキーム（http / https）。X-Forwarded-Protoに設定する。
	Proto string
	// RequestID はリクエストID。X-Request-IDに設定する。
	RequestID string
}

// Forward はリクエストを転送先へ送信し、レスポンスを返す。
// ステータスコードが2xx以外でもエラーにはしない。レスポンスボディは呼び出し元が閉じること。
func (c *Client) Forward(ctx context.Context, r Request) (*http.Response, error) {
	if r.Method == "" {
		return nil, errors.New("HTTPメソッドが指定されていません")
	}

	target := *c.baseURL
	target.Path = joinPath(c.baseURL.Path, r.Path)
	target.RawPath = ""
	target.RawQuery = r.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if r.Body != nil && r.ContentLength >= 0 {
		req.ContentLength = r.ContentLength
	}

	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	RemoveHopByHopHeaders(req.Header)

	if r.ClientIP != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+r.ClientIP)
		} else {
			req.Header.Set("X-Forwarded-For", r.ClientIP)
		}
	}
	if r.Host != "" {
		req.Header.Set("X-Forwarded-Host", r.Host)
	}
	if r.Proto != "" {
		req.Header.Set("X-Forwarded-Proto", r.Proto)
	}
	if r.RequestID != "" {
		req.Header.Set("X-Request-ID", r.RequestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("転送先へのリクエスト送信に失敗: %w", err)
	}
	return resp, nil
}

// RemoveHopByHopHeaders はヘッダーからホップバイホップヘッダーを取り除く。
// Connectionヘッダーに列挙されたヘッダーも取り除く。
func RemoveHopByHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// joinPath はベースURLのパスとリクエストパスを連結する。
func joinPath(base, path string) string {
	if path == "" {
		path = "/"
	}
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

package admingate

import (
	"crypto/subtle"
	"net/url"
	"path"
	"strings"
)

const (
	// DefaultPrefix は保護対象となる管理用パスのデフォルトプレフィックス。
	DefaultPrefix = "/admin"
	// DefaultParam はシークレットを運ぶクエリパラメータのデフォルト名。
	DefaultParam = "key"
	// RootPath は認可されなかったリクエストのリダイレクト先。
	RootPath = "/"
)

// Action は判定結果の種類を表す。
type Action int

const (
	// ActionForward はリクエストをそのまま後段に転送することを表す。
	ActionForward Action = iota
	// ActionRedirect はリクエストを破棄してリダイレクトすることを表す。
	ActionRedirect
)

// String はActionの文字列表現を返す。
func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision は1リクエストに対する判定結果。
type Decision struct {
	// Action は転送かリダイレクトか。
	Action Action
	// Location はリダイレクト先のパス。ActionForwardの場合は空。
	Location string
}

// Forward はリクエストを転送する判定を返す。
func Forward() Decision {
	return Decision{Action: ActionForward}
}

// RedirectTo は指定パスへリダイレクトする判定を返す。
func RedirectTo(path string) Decision {
	return Decision{Action: ActionRedirect, Location: path}
}

// Allowed はリクエストが転送される場合にtrueを返す。
func (d Decision) Allowed() bool {
	return d.Action == ActionForward
}

// Config はGateの設定。
type Config struct {
	// Prefix は保護対象のパスプレフィックス。空の場合はDefaultPrefix。
	Prefix string
	// Param はシークレットを運ぶクエリパラメータ名。空の場合はDefaultParam。
	Param string
	// Secret は期待するシークレット。空の場合は管理画面に誰も入れない。
	Secret string
}

// Gate は管理画面のアクセス判定を行う。生成後は不変であり、並行に使用できる。
type Gate struct {
	prefix string
	param  string
	secret string
}

// New はConfigから新しいGateを生成する。
func New(cfg Config) *Gate {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	param := cfg.Param
	if param == "" {
		param = DefaultParam
	}
	return &Gate{
		prefix: prefix,
		param:  param,
		secret: cfg.Secret,
	}
}

// Prefix は保護対象のパスプレフィックスを返す。
func (g *Gate) Prefix() string {
	return g.prefix
}

// Param はシークレットを運ぶクエリパラメータ名を返す。
func (g *Gate) Param() string {
	return g.param
}

// Configured は期待するシークレットが設定されている場合にtrueを返す。
func (g *Gate) Configured() bool {
	return g.secret != ""
}

// Protects はパスが管理用プレフィックスで始まる場合にtrueを返す。
// パスは比較の前にCanonicalPathで正規化する。
func (g *Gate) Protects(p string) bool {
	return strings.HasPrefix(CanonicalPath(p), g.prefix)
}

// CanonicalPath はストアフロントのレンダラーが解決するのと同じ形にパスを正規化する。
//
// バックスラッシュはスラッシュとして扱い、連続するスラッシュと "." / ".." の
// セグメントを解決する。末尾のスラッシュは保つ。
// スラッシュで始まらないパス（OPTIONS * など）はそのまま返す。
func CanonicalPath(p string) string {
	if p == "" || (p[0] != '/' && p[0] != '\\') {
		return p
	}

	p = strings.ReplaceAll(p, `\`, "/")
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// Decide はパスとクエリパラメータから転送かリダイレクトかを判定する。
//
// パスはCanonicalPathで正規化してから判定する。
// 管理用プレフィックスで始まらないパスは常に転送する。
// プレフィックス配下ではクエリパラメータが設定値と完全一致した場合のみ転送し、
// それ以外（パラメータの欠落や空文字列を含む）はサイトルートへリダイレクトする。
// 設定値が空の場合は常にリダイレクトとなる。
func (g *Gate) Decide(p string, query url.Values) Decision {
	if !g.Protects(p) {
		return Forward()
	}

	supplied := query.Get(g.param)
	if supplied == "" || g.secret == "" {
		return RedirectTo(RootPath)
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(g.secret)) != 1 {
		return RedirectTo(RootPath)
	}
	return Forward()
}

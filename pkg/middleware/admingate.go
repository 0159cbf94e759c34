package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/pkg/admingate"
)

// AdminGate は管理画面ゲートの判定をHTTPに適用するGinミドルウェアを返す。
//
// パスはadmingate.CanonicalPathで正規化したものに置き換えてから判定する。
// 後段の転送は判定に使ったパスをそのまま送るため、"//admin" や "/shop/../admin" が
// ゲートを素通りして管理画面に解決されることはない。正規形のパスとクエリ文字列は変更しない。
// リダイレクトと判定された場合は307で判定結果のLocationへ誘導し、後段の処理を中断する。
// ゲート自体はログや試行回数を記録しない。
func AdminGate(g *admingate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if canonical := admingate.CanonicalPath(c.Request.URL.Path); canonical != c.Request.URL.Path {
			c.Request.URL.Path = canonical
			c.Request.URL.RawPath = ""
		}

		d := g.Decide(c.Request.URL.Path, c.Request.URL.Query())
		if d.Allowed() {
			c.Next()
			return
		}

		c.Redirect(http.StatusTemporaryRedirect, d.Location)
		c.Abort()
	}
}

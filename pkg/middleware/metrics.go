package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// UpstreamRoute はローカルのルートに一致しなかったリクエストのルートラベル。
// こうしたリクエストは転送先へ送られるか、ゲートでリダイレクトされる。
const UpstreamRoute = "upstream"

// RequestObserver はリクエストの結果を受け取る。
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Metrics はリクエストのメソッド、ルート、ステータス、処理時間を記録するGinミドルウェアを返す。
// ルートにはパスそのものではなくルート定義（例: /api/v1/preferences）を使う。
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = UpstreamRoute
		}
		observer.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

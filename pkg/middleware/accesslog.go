package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// redactedValue は伏せ字にした値の置き換え文字列。
const redactedValue = "***REDACTED***"

// sensitiveParamPatterns はパラメータ名にこれらを含む場合に値を伏せ字にする。
var sensitiveParamPatterns = []string{
	"secret",
	"token",
	"password",
	"pin",
}

// AccessLog はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
//
// クエリ文字列のうちredactParamsに指定した名前のパラメータと、
// 名前に secret / token / password / pin を含むパラメータの値は伏せ字にする。
// 管理画面のシークレットはURLで運ばれるため、そのままログに残さない。
func AccessLog(logger *zap.Logger, redactParams ...string) gin.HandlerFunc {
	exact := make(map[string]struct{}, len(redactParams))
	for _, p := range redactParams {
		exact[strings.ToLower(p)] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", redactQuery(c.Request.URL.RawQuery, exact)),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", GetRequestID(c)),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		switch {
		case status >= 500:
			logger.Error("リクエスト処理", fields...)
		case status >= 400:
			logger.Warn("リクエスト処理", fields...)
		default:
			logger.Info("リクエスト処理", fields...)
		}
	}
}

// redactQuery は生のクエリ文字列の機微な値を伏せ字にする。
// パラメータの順序と伏せ字にしない値のエンコードはそのまま保つ。
func redactQuery(raw string, exact map[string]struct{}) string {
	if raw == "" {
		return ""
	}

	parts := strings.Split(raw, "&")
	for i, part := range parts {
		k, v, found := strings.Cut(part, "=")
		if !found || v == "" {
			continue
		}
		name, err := url.QueryUnescape(k)
		if err != nil {
			name = k
		}
		if isSensitiveParam(name, exact) {
			parts[i] = k + "=" + redactedValue
		}
	}
	return strings.Join(parts, "&")
}

// isSensitiveParam はパラメータ名が伏せ字の対象かどうかを判定する。
func isSensitiveParam(name string, exact map[string]struct{}) bool {
	lower := strings.ToLower(name)
	if _, ok := exact[lower]; ok {
		return true
	}
	for _, p := range sensitiveParamPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

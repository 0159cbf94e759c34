package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients は同時に保持するクライアントごとのリミッタの上限。
// 上限を超えると最も長くアクセスのないクライアントのリミッタから破棄する。
const maxTrackedClients = 10000

// RateLimit はクライアントIPごとにリクエスト数を制限するGinミドルウェアを返す。
// rpsが0以下の場合は何もしない。上限を超えた場合は429を返す。
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	return rateLimit(rps, burst, maxTrackedClients)
}

// rateLimit は保持するリミッタの上限を指定してRateLimitミドルウェアを生成する。
func rateLimit(rps float64, burst, maxClients int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	clients, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		// maxClientsが正であれば失敗しない
		panic(err)
	}
	var mu sync.Mutex
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/rps))))

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := clients.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
			clients.Add(ip, limiter)
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "リクエストが多すぎます。しばらく待ってから再試行してください",
			})
			return
		}

		c.Next()
	}
}

// Package middleware はストアフロントゲートウェイで使用するGinミドルウェアを提供する。
//
// 管理画面ゲート、訪問者セッション、リクエストID、アクセスログ、
// パニックリカバリ、CORS、レート制限、メトリクス記録を含む。
package middleware

// Package gateway はストアフロントの前段に立つゲートウェイの内部実装を提供する。
//
// すべてのリクエストはまず管理画面ゲートを通り、管理画面へのアクセスは
// 共有シークレットを持つ場合のみ許可される。ヘルスチェック、メトリクス、
// 訪問者設定APIはゲートウェイ自身が処理し、それ以外はストアフロントの
// レンダラーへ転送する。
package gateway

// Package httpclient はゲートウェイから転送先へリクエストを中継するHTTPクライアントを提供する。
//
// ゲートウェイ自身が処理しないリクエストは、このクライアントを通じて
// ストアフロントのレンダラーへ送られる。クエリ文字列は加工せずに転送し、
// リダイレクトは追従せずに転送先の応答をそのまま返す。
package httpclient

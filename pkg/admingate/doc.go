// Package admingate は管理画面へのアクセス可否を判定する。
//
// 管理用プレフィックス配下のパスに対して、URLクエリパラメータで渡された
// 共有シークレットと起動時に設定されたシークレットを比較し、
// 転送（Forward）またはサイトルートへのリダイレクトを決定する。
// 判定は純粋関数であり、I/Oやリクエスト間の状態を持たない。
package admingate

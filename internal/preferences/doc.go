// Package preferences は訪問者ごとの表示設定を管理する。
//
// 通知、ニュースレター、ダークモードの3項目を匿名の訪問者IDに紐付けて
// SQLiteに保存する。保存されていない訪問者にはデフォルト値を返す。
package preferences

package config

import "errors"

// errReadBytesNotSupported はmapProviderに対してReadBytesが呼ばれた場合のエラー。
var errReadBytesNotSupported = errors.New("config: mapProviderはReadBytesに対応していません")

// mapProvider はマップから設定を読み込むkoanfプロバイダ。
// ネストしたマップをそのまま返す。
type mapProvider map[string]any

// ReadBytes はサポートしない。
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

// Read は設定マップを返す。
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

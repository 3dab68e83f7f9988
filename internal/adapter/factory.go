package adapter

import (
	"fmt"
)

// adapterRegistry は、アダプタ名とPageAdapter実装のマッピングを保持します。
var adapterRegistry = map[string]func() PageAdapter{
	"generic": NewGenericAdapter,
}

// GetAdapter は、指定された名前に対応するPageAdapterの新しいインスタンスを返します。
// 名前が空の場合は "generic" を返します。
func GetAdapter(name string) (PageAdapter, error) {
	if name == "" {
		name = "generic"
	}
	factory, ok := adapterRegistry[name]
	if !ok {
		return nil, fmt.Errorf("名前 '%s' に対応するアダプタが見つかりません", name)
	}
	return factory(), nil
}

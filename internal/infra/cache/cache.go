package cache

import (
	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/infra/fsx"
)

// Guard 决定一个条目是否还需要处理。
//
// 规则（粗粒度新鲜度检查）：
// - FinalPath 存在 => 已完成，绝不覆盖
// - 不比较内容/大小/时间/来源版本：空文件或损坏文件同样视为已完成（已知限制）
//
// Guard 只读，不产生任何副作用。
type Guard struct{}

// NeedsProcessing 在 FinalPath 不存在时返回 true。
// FinalPath 是目录等非普通文件时返回 fsx.PathTypeConflictError。
func (Guard) NeedsProcessing(item domain.WorkItem) (bool, error) {
	ok, err := fsx.FileExists(item.FinalPath)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// RawPresent 是 Fetcher 的第二级缓存：raw 中间文件存在即不再下载。
// 没有中间产物的条目（upscale）恒为 false。
func (Guard) RawPresent(item domain.WorkItem) (bool, error) {
	if !item.IsVector() {
		return false, nil
	}
	return fsx.FileExists(item.RawPath)
}

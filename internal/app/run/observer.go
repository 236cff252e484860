package run

import (
	"time"

	"github.com/John-Robertt/assetprep/internal/domain"
)

// 条目内部的阶段名（OnStage 的 stage 参数）。
const (
	StageDownload = "download"
	StageConvert  = "convert"
	StageDelete   = "delete"
)

// Observer 把“进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// 执行是串行的，事件按发生顺序在同一个 goroutine 中回调。
type Observer interface {
	// OnStart 在批次开始时调用一次。
	OnStart(b domain.Batch)
	// OnStage 在条目进入 download/convert/delete 阶段前调用。
	OnStage(item domain.WorkItem, stage string)
	// OnItemDone 在某个条目得出结局后调用（包括 skipped）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(domain.Batch)                                 {}
func (nopObserver) OnStage(domain.WorkItem, string)                      {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}

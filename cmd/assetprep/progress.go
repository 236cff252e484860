package main

import (
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/assetprep/internal/app/run"
	"github.com/John-Robertt/assetprep/internal/domain"
)

var _ run.Observer = (*progressLog)(nil)

// progressLog 把 run 层的事件转成逐条进度日志（stderr）。
// 计数只用于最后的完成消息；run 串行回调，不需要加锁。
type progressLog struct {
	log *zap.Logger

	startedAt time.Time
	converted int
	skipped   int
	failed    int
}

func newProgressLog(log *zap.Logger) *progressLog {
	return &progressLog{log: log}
}

func (p *progressLog) OnStart(b domain.Batch) {
	p.startedAt = time.Now()
	p.converted, p.skipped, p.failed = 0, 0, 0

	fields := []zap.Field{
		zap.String("flow", b.Flow),
		zap.String("out", b.OutDir),
		zap.Int("items", len(b.Items)),
	}
	if b.Flow == domain.FlowUpscale {
		fields = append(fields, zap.Int("scale", b.Params.Scale))
	}
	if n := len(b.Rejected); n > 0 {
		fields = append(fields, zap.Int("rejected", n))
	}
	p.log.Info("开始", fields...)

	for _, rj := range b.Rejected {
		p.failed++
		p.log.Warn("非法输入", zap.String("input", rj.Input), zap.String("reason", rj.Reason))
	}
}

func (p *progressLog) OnStage(item domain.WorkItem, stage string) {
	switch stage {
	case run.StageDownload:
		p.log.Info("下载", zap.String("name", string(item.Name)), zap.String("url", item.Source))
	case run.StageConvert:
		p.log.Info("转换", zap.String("name", string(item.Name)), zap.String("out", filepath.Base(item.FinalPath)))
	case run.StageDelete:
		p.log.Info("删除中间文件", zap.String("name", string(item.Name)), zap.String("raw", filepath.Base(item.RawPath)))
	default:
		p.log.Debug(stage, zap.String("name", string(item.Name)))
	}
}

func (p *progressLog) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	base := []zap.Field{
		zap.Int("idx", idx),
		zap.Int("total", total),
		zap.String("name", res.Name),
		zap.Duration("took", dur.Round(time.Millisecond)),
	}
	switch res.Status {
	case domain.StatusConverted:
		p.converted++
		p.log.Info("完成", base...)
	case domain.StatusSkipped:
		p.skipped++
		p.log.Info("已存在，跳过", base...)
	default:
		p.failed++
		p.log.Warn("失败", append(base,
			zap.String("error_code", res.ErrorCode),
			zap.String("error", res.ErrorMsg),
		)...)
	}

	if idx == total {
		p.log.Info("全部完成",
			zap.Int("converted", p.converted),
			zap.Int("skipped", p.skipped),
			zap.Int("failed", p.failed),
			zap.Duration("elapsed", time.Since(p.startedAt).Round(time.Millisecond)),
		)
	}
}

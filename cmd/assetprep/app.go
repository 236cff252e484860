package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/John-Robertt/assetprep/internal/app/run"
	"github.com/John-Robertt/assetprep/internal/config"
	"github.com/John-Robertt/assetprep/internal/discover"
	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/fetch"
	"github.com/John-Robertt/assetprep/internal/infra/httpx"
	"github.com/John-Robertt/assetprep/internal/infra/imgx"
	"github.com/John-Robertt/assetprep/internal/locator"
	"github.com/John-Robertt/assetprep/internal/scan"
	"github.com/John-Robertt/assetprep/internal/watch"
)

// app 把生效配置装配成一次（或 watch 模式下多次）批处理运行。
type app struct {
	eff    config.EffectiveConfig
	log    *zap.Logger
	client *http.Client

	stdout, stderr io.Writer
	tty            bool
}

func newApp(eff config.EffectiveConfig, log *zap.Logger, stdout, stderr io.Writer, tty bool) *app {
	return &app{
		eff:    eff,
		log:    log,
		client: httpx.NewClient(eff.FetchTimeout, eff.UserAgent),
		stdout: stdout,
		stderr: stderr,
		tty:    tty,
	}
}

// runOnce 构造批次、执行、落盘 report 并输出结果，返回退出码。
func (a *app) runOnce(ctx context.Context) int {
	b, err := a.buildBatch(ctx)
	if err != nil {
		a.log.Error("构造批次失败", zap.Error(err))
		emitReport(a.stdout, a.stderr, a.tty, reportForBatchError(a.eff, err))
		return 1
	}
	if len(b.Items) == 0 && len(b.Rejected) == 0 {
		a.log.Info("没有需要处理的条目", zap.String("flow", b.Flow))
	}

	deps := run.Deps{
		Fetcher:    fetch.Fetcher{Client: a.client},
		Rasterizer: imgx.OksvgRasterizer{},
	}
	rr := run.ExecuteWithObserver(ctx, b, deps, newProgressLog(a.log))

	code := 0
	if !rr.OK() {
		code = 1
	}
	if a.eff.ReportPath != "" {
		if err := writeReportFile(a.eff.ReportPath, rr); err != nil {
			a.log.Error("写入 report 失败", zap.String("path", a.eff.ReportPath), zap.Error(err))
			code = 1
		} else {
			a.log.Info("report 已写入", zap.String("path", a.eff.ReportPath))
		}
	}

	emitReport(a.stdout, a.stderr, a.tty, rr)
	return code
}

// watch 先完整运行一次，然后监听输入目录；ctx 取消后返回最后一次运行的退出码。
func (a *app) watch(ctx context.Context) int {
	code := a.runOnce(ctx)
	err := watch.Dir(ctx, a.eff.InputDir, a.log, watch.DefaultDebounce, func(ctx context.Context) error {
		code = a.runOnce(ctx)
		if code != 0 {
			return errors.New("本轮存在失败条目")
		}
		return nil
	})
	if err != nil {
		a.log.Error("监听失败", zap.Error(err))
		return 1
	}
	return code
}

func (a *app) buildBatch(ctx context.Context) (domain.Batch, error) {
	switch a.eff.Flow {
	case domain.FlowBadges:
		ids := append([]string(nil), a.eff.Names...)
		if a.eff.IndexURL != "" {
			urls, err := discover.Discover(ctx, a.client, a.eff.IndexURL)
			if err != nil {
				return domain.Batch{}, domain.FetchError("discover", a.eff.IndexURL, err)
			}
			a.log.Info("索引页发现", zap.String("index", a.eff.IndexURL), zap.Int("svg", len(urls)))
			ids = append(ids, urls...)
		}
		return locator.BuildBadgeBatch(ids, a.eff.BaseURL, a.eff.OutDir, a.eff.Params), nil
	case domain.FlowUpscale:
		files, err := scan.ScanPNGs(a.eff.InputDir)
		if err != nil {
			return domain.Batch{}, domain.FilesystemError("scan", a.eff.InputDir, err)
		}
		return locator.BuildUpscaleBatch(files, a.eff.OutDir, a.eff.Params), nil
	default:
		return domain.Batch{}, fmt.Errorf("未知 flow：%q", a.eff.Flow)
	}
}

// reportForBatchError 把“批次都没能构造出来”的错误表示为单个 failed 条目。
func reportForBatchError(eff config.EffectiveConfig, err error) domain.RunReport {
	rr := reportForConfigError(eff.Flow, err)
	rr.OutDir = eff.OutDir
	rr.Items[0].ErrorCode = domain.ErrorCode(err)
	if rr.Items[0].ErrorCode == "" {
		rr.Items[0].ErrorCode = domain.ErrCodeIOFailed
	}
	rr.Items[0].Source = eff.IndexURL
	if eff.Flow == domain.FlowUpscale {
		rr.Items[0].Source = eff.InputDir
	}
	return rr
}

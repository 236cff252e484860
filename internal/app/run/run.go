package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/infra/cache"
	"github.com/John-Robertt/assetprep/internal/infra/fsx"
	"github.com/John-Robertt/assetprep/internal/infra/imgx"
)

// Fetcher 是下载阶段的能力（默认实现见 internal/fetch）。
type Fetcher interface {
	Fetch(ctx context.Context, url, rawPath string) (fetched bool, err error)
}

// Deps 是流水线依赖的可替换能力。upscale 批次不需要 Fetcher/Rasterizer。
type Deps struct {
	Fetcher    Fetcher
	Rasterizer imgx.Rasterizer
}

// Execute 串行执行一个 Batch，并返回对外稳定的 RunReport。
// 任何条目级错误都被降级为该条目的 failed 结局，绝不影响其它条目。
func Execute(ctx context.Context, b domain.Batch, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, b, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 输出进度。
func ExecuteWithObserver(ctx context.Context, b domain.Batch, deps Deps, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	if deps.Rasterizer == nil {
		deps.Rasterizer = imgx.OksvgRasterizer{}
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Flow:      b.Flow,
		OutDir:    b.OutDir,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, len(b.Items)+len(b.Rejected)),
	}
	if b.Flow == domain.FlowUpscale {
		rr.Scale = b.Params.Scale
	}

	obs.OnStart(b)

	for _, rj := range b.Rejected {
		rr.Items = append(rr.Items, domain.ItemResult{
			Source:    rj.Input,
			Status:    domain.StatusFailed,
			ErrorCode: domain.ErrCodeInvalidParameter,
			ErrorMsg:  rj.Reason,
		})
	}

	p := pipeline{deps: deps, params: b.Params, obs: obs}
	total := len(b.Items)
	for i, item := range b.Items {
		started := time.Now()
		res := p.process(ctx, item)
		rr.Items = append(rr.Items, res)
		obs.OnItemDone(i+1, total, res, time.Since(started))
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

type pipeline struct {
	deps   Deps
	params domain.Params
	guard  cache.Guard
	obs    Observer
}

// process 把一个条目推进到结局：Cache Guard -> Fetcher -> Converter -> Cleanup。
// 每个阶段都返回 error，这里统一折叠为 ItemResult，不向外传播。
func (p pipeline) process(ctx context.Context, item domain.WorkItem) domain.ItemResult {
	res := domain.ItemResult{
		Name:   string(item.Name),
		Source: item.Source,
		Output: item.FinalPath,
	}

	if err := ctx.Err(); err != nil {
		return failed(res, err)
	}

	need, err := p.guard.NeedsProcessing(item)
	if err != nil {
		return failed(res, domain.FilesystemError("stat_final", item.FinalPath, err))
	}
	if !need {
		res.Status = domain.StatusSkipped
		return res
	}

	if item.IsVector() {
		return p.vector(ctx, item, res)
	}
	return p.raster(item, res)
}

func (p pipeline) vector(ctx context.Context, item domain.WorkItem, res domain.ItemResult) domain.ItemResult {
	if p.deps.Fetcher == nil {
		return failed(res, domain.FetchError("fetch", item.Source, errors.New("未配置 Fetcher")))
	}

	if ok, _ := p.guard.RawPresent(item); !ok {
		p.obs.OnStage(item, StageDownload)
	}
	fetched, err := p.deps.Fetcher.Fetch(ctx, item.Source, item.RawPath)
	res.Fetched = fetched
	if err != nil {
		return failed(res, err)
	}

	p.obs.OnStage(item, StageConvert)
	raw, err := os.ReadFile(item.RawPath)
	if err != nil {
		return failed(res, domain.FilesystemError("read_raw", item.RawPath, err))
	}
	img, err := p.deps.Rasterizer.Rasterize(raw)
	if err != nil {
		// raw 保留：下次运行可以跳过下载，直接重试转换。
		return failed(res, asConversion(err, item.RawPath))
	}
	out, err := imgx.EncodePNG(img)
	if err != nil {
		return failed(res, err)
	}
	skipped, err := writeFinal(item, out)
	if err != nil {
		return failed(res, err)
	}

	// 只有 final 已落盘才删除 raw。
	p.obs.OnStage(item, StageDelete)
	removed, err := fsx.RemoveIfExists(item.RawPath)
	if err != nil {
		return failed(res, domain.FilesystemError("remove_raw", item.RawPath, err))
	}
	res.CleanedUp = removed
	res.Status = domain.StatusConverted
	if skipped {
		res.Status = domain.StatusSkipped
	}
	return res
}

func (p pipeline) raster(item domain.WorkItem, res domain.ItemResult) domain.ItemResult {
	// scale 在读源文件之前检查：非法参数不读、不写。
	if p.params.Scale <= 0 {
		return failed(res, domain.InvalidParameter("upscale", fmt.Errorf("%w：%d", imgx.ErrInvalidScale, p.params.Scale)))
	}

	p.obs.OnStage(item, StageConvert)
	src, err := os.ReadFile(item.Source)
	if err != nil {
		return failed(res, domain.FilesystemError("read_source", item.Source, err))
	}
	img, err := imgx.Upscale(src, p.params.Scale)
	if err != nil {
		return failed(res, asConversion(err, item.Source))
	}
	out, err := imgx.EncodePNG(img)
	if err != nil {
		return failed(res, err)
	}
	skipped, err := writeFinal(item, out)
	if err != nil {
		return failed(res, err)
	}
	res.Status = domain.StatusConverted
	if skipped {
		res.Status = domain.StatusSkipped
	}
	return res
}

// writeFinal 原子写入 final，且绝不覆盖。
// Guard 通过之后目标又出现（另一个进程抢先写入）时返回 skipped=true。
func writeFinal(item domain.WorkItem, data []byte) (skipped bool, err error) {
	dir, name := filepath.Dir(item.FinalPath), filepath.Base(item.FinalPath)
	if err := fsx.WriteFileAtomicNoOverwrite(dir, name, data); err != nil {
		if errors.Is(err, os.ErrExist) {
			return true, nil
		}
		return false, domain.FilesystemError("write_final", item.FinalPath, err)
	}
	return false, nil
}

// asConversion 保留组件给出的分类；未分类的转换错误归为 conversion_failed。
func asConversion(err error, path string) error {
	if domain.ErrorCode(err) != "" {
		return err
	}
	return domain.ConversionError("convert", path, err)
}

func failed(res domain.ItemResult, err error) domain.ItemResult {
	res.Status = domain.StatusFailed
	res.ErrorCode = classify(err)
	res.ErrorMsg = err.Error()
	return res
}

// classify 把 error 映射为 error_code；未知错误一律视为 io_failed。
func classify(err error) string {
	if c := domain.ErrorCode(err); c != "" {
		return c
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrCodeFetchFailed
	}
	return domain.ErrCodeIOFailed
}

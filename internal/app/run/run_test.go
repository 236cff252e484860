package run

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/fetch"
	"github.com/John-Robertt/assetprep/internal/locator"
)

const badgeSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="8" height="4" viewBox="0 0 8 4">
  <rect x="0" y="0" width="4" height="4" fill="#00ff00"/>
</svg>`

// cdn 是一个记录每个路径访问次数的假 CDN。
type cdn struct {
	mu   sync.Mutex
	hits map[string]int
	body map[string]string
}

func newCDN(t *testing.T, body map[string]string) (*cdn, *httptest.Server) {
	t.Helper()
	c := &cdn{hits: map[string]int{}, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.hits[r.URL.Path]++
		b, ok := c.body[r.URL.Path]
		c.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(b))
	}))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *cdn) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

func TestExecute_Badges_ConvertedSkippedFailed(t *testing.T) {
	out := t.TempDir()
	cd, srv := newCDN(t, map[string]string{"/banners/a.svg": badgeSVG})

	// b 的最终产物已存在。
	if err := os.WriteFile(filepath.Join(out, "b.png"), []byte("done"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	b := locator.BuildBadgeBatch([]string{"a", "b", "c"}, srv.URL+"/banners/", out, domain.DefaultParams())
	rr := Execute(context.Background(), b, Deps{Fetcher: fetch.Fetcher{Client: srv.Client()}})

	if rr.Summary != (domain.ReportSummary{Converted: 1, Skipped: 1, Failed: 1}) {
		t.Fatalf("summary 不符合预期：%+v items=%+v", rr.Summary, rr.Items)
	}
	if rr.RunID == "" || rr.Flow != domain.FlowBadges {
		t.Fatalf("report 元信息不完整：%+v", rr)
	}

	byName := indexByName(rr)
	if byName["a"].Status != domain.StatusConverted || !byName["a"].Fetched || !byName["a"].CleanedUp {
		t.Fatalf("a 不符合预期：%+v", byName["a"])
	}
	if byName["b"].Status != domain.StatusSkipped {
		t.Fatalf("b 不符合预期：%+v", byName["b"])
	}
	if byName["c"].Status != domain.StatusFailed || byName["c"].ErrorCode != domain.ErrCodeFetchFailed || byName["c"].ErrorMsg == "" {
		t.Fatalf("c 不符合预期：%+v", byName["c"])
	}

	// a：raw 已清理，PNG 存在且尺寸由 SVG 决定。
	assertNotExist(t, filepath.Join(out, "a.svg"))
	img := decodePNG(t, filepath.Join(out, "a.png"))
	if bb := img.Bounds(); bb.Dx() != 8 || bb.Dy() != 4 {
		t.Fatalf("a.png 尺寸不符合预期：%v", bb)
	}
	// 右半边透明。
	if c := color.NRGBAModel.Convert(img.At(6, 2)).(color.NRGBA); c.A == 255 {
		t.Fatalf("透明区域应保留 alpha<255，实际 %v", c)
	}

	// b：已存在则不下载，且内容不被覆盖。
	if n := cd.count("/banners/b.svg"); n != 0 {
		t.Fatalf("b 的 final 已存在，不应发请求，实际 %d 次", n)
	}
	if got, _ := os.ReadFile(filepath.Join(out, "b.png")); string(got) != "done" {
		t.Fatalf("已存在的 final 不应被覆盖：%q", string(got))
	}

	// c：不留下任何文件。
	assertNotExist(t, filepath.Join(out, "c.svg"))
	assertNotExist(t, filepath.Join(out, "c.png"))
}

func TestExecute_Badges_Idempotent(t *testing.T) {
	out := t.TempDir()
	cd, srv := newCDN(t, map[string]string{
		"/a.svg": badgeSVG,
		"/b.svg": badgeSVG,
	})
	b := locator.BuildBadgeBatch([]string{"a", "b"}, srv.URL, out, domain.DefaultParams())
	deps := Deps{Fetcher: fetch.Fetcher{Client: srv.Client()}}

	first := Execute(context.Background(), b, deps)
	if first.Summary.Converted != 2 {
		t.Fatalf("首次运行期望 converted=2，实际 %+v", first.Summary)
	}
	before, _ := os.ReadFile(filepath.Join(out, "a.png"))

	second := Execute(context.Background(), b, deps)
	if second.Summary != (domain.ReportSummary{Skipped: 2}) {
		t.Fatalf("第二次运行期望全部 skipped，实际 %+v", second.Summary)
	}
	after, _ := os.ReadFile(filepath.Join(out, "a.png"))
	if !bytes.Equal(before, after) {
		t.Fatalf("第二次运行不应改变最终产物")
	}
	if n := cd.count("/a.svg"); n != 1 {
		t.Fatalf("a 只应下载 1 次，实际 %d 次", n)
	}
}

func TestExecute_Badges_ConversionFailureKeepsRaw(t *testing.T) {
	out := t.TempDir()
	_, srv := newCDN(t, map[string]string{
		"/good.svg":   badgeSVG,
		"/broken.svg": "<svg><g></svg>",
	})
	b := locator.BuildBadgeBatch([]string{"broken", "good"}, srv.URL, out, domain.DefaultParams())

	rr := Execute(context.Background(), b, Deps{Fetcher: fetch.Fetcher{Client: srv.Client()}})

	byName := indexByName(rr)
	if byName["broken"].Status != domain.StatusFailed || byName["broken"].ErrorCode != domain.ErrCodeConversionFailed {
		t.Fatalf("broken 不符合预期：%+v", byName["broken"])
	}
	if byName["good"].Status != domain.StatusConverted {
		t.Fatalf("单条失败不应影响其它条目：%+v", byName["good"])
	}
	if _, err := os.Stat(filepath.Join(out, "broken.svg")); err != nil {
		t.Fatalf("转换失败时应保留 raw：%v", err)
	}
	assertNotExist(t, filepath.Join(out, "broken.png"))
	assertNotExist(t, filepath.Join(out, "good.svg"))
}

func TestExecute_Badges_ExistingRawIsNotRefetched(t *testing.T) {
	out := t.TempDir()
	cd, srv := newCDN(t, map[string]string{"/a.svg": "<not-svg/>"})

	// raw 已存在（例如上次转换失败后保留下来的）。
	if err := os.WriteFile(filepath.Join(out, "a.svg"), []byte(badgeSVG), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	b := locator.BuildBadgeBatch([]string{"a"}, srv.URL, out, domain.DefaultParams())
	rr := Execute(context.Background(), b, Deps{Fetcher: fetch.Fetcher{Client: srv.Client()}})

	if rr.Summary.Converted != 1 || rr.Items[0].Fetched {
		t.Fatalf("期望使用已有 raw 转换成功：%+v", rr.Items)
	}
	if n := cd.count("/a.svg"); n != 0 {
		t.Fatalf("raw 已存在时不应下载，实际 %d 次", n)
	}
}

func TestExecute_RejectedInputsAreReported(t *testing.T) {
	out := t.TempDir()
	b := locator.BuildBadgeBatch([]string{"../x"}, "https://cdn.test", out, domain.DefaultParams())

	rr := Execute(context.Background(), b, Deps{})
	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeInvalidParameter {
		t.Fatalf("非法输入应记为 invalid_parameter：%+v", rr.Items)
	}
}

func TestExecute_Upscale(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "ranks_upscale")

	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	src.SetNRGBA(1, 1, color.NRGBA{0, 0, 255, 100})
	writePNG(t, filepath.Join(in, "champion.png"), src)
	if err := os.WriteFile(filepath.Join(in, "broken.png"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	b := locator.BuildUpscaleBatch([]string{
		filepath.Join(in, "broken.png"),
		filepath.Join(in, "champion.png"),
	}, out, domain.Params{Scale: 3, Format: domain.FormatPNG})

	rr := Execute(context.Background(), b, Deps{})
	byName := indexByName(rr)
	if byName["broken.png"].ErrorCode != domain.ErrCodeConversionFailed {
		t.Fatalf("broken.png 应为 conversion_failed：%+v", byName["broken.png"])
	}
	if byName["champion.png"].Status != domain.StatusConverted {
		t.Fatalf("champion.png 应转换成功：%+v", byName["champion.png"])
	}
	if rr.Scale != 3 {
		t.Fatalf("report 应记录 scale=3，实际 %d", rr.Scale)
	}

	img := decodePNG(t, filepath.Join(out, "champion.png"))
	if bb := img.Bounds(); bb.Dx() != 6 || bb.Dy() != 6 {
		t.Fatalf("输出尺寸不符合预期：%v", bb)
	}
	if c := color.NRGBAModel.Convert(img.At(5, 5)).(color.NRGBA); c.A == 255 {
		t.Fatalf("半透明像素放大后应保留透明度，实际 %v", c)
	}
	assertNotExist(t, filepath.Join(out, "broken.png"))

	// 再跑一次：全部由 Guard 判定（broken 仍失败，champion 跳过）。
	again := Execute(context.Background(), b, Deps{})
	if again.Summary != (domain.ReportSummary{Skipped: 1, Failed: 1}) {
		t.Fatalf("第二次运行 summary 不符合预期：%+v", again.Summary)
	}
}

func TestExecute_Upscale_InvalidScaleWritesNothing(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writePNG(t, filepath.Join(in, "a.png"), image.NewNRGBA(image.Rect(0, 0, 1, 1)))

	b := locator.BuildUpscaleBatch([]string{filepath.Join(in, "a.png")}, out, domain.Params{Scale: 0, Format: domain.FormatPNG})
	rr := Execute(context.Background(), b, Deps{})

	if rr.Summary.Failed != 1 || rr.Items[0].ErrorCode != domain.ErrCodeInvalidParameter {
		t.Fatalf("scale=0 应为 invalid_parameter：%+v", rr.Items)
	}
	assertNotExist(t, filepath.Join(out, "a.png"))
}

func TestExecute_CancelledContextFailsRemainingItems(t *testing.T) {
	out := t.TempDir()
	cd, srv := newCDN(t, map[string]string{"/a.svg": badgeSVG})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := locator.BuildBadgeBatch([]string{"a"}, srv.URL, out, domain.DefaultParams())
	rr := Execute(ctx, b, Deps{Fetcher: fetch.Fetcher{Client: srv.Client()}})

	if rr.Summary.Failed != 1 {
		t.Fatalf("ctx 已取消时条目应失败：%+v", rr.Items)
	}
	if n := cd.count("/a.svg"); n != 0 {
		t.Fatalf("ctx 已取消时不应发请求，实际 %d 次", n)
	}
}

type recordObserver struct {
	starts int
	stages []string
	done   []string
}

func (o *recordObserver) OnStart(domain.Batch) { o.starts++ }

func (o *recordObserver) OnStage(item domain.WorkItem, stage string) {
	o.stages = append(o.stages, string(item.Name)+":"+stage)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.done = append(o.done, res.Name+":"+res.Status)
}

func TestExecuteWithObserver_EmitsStageEvents(t *testing.T) {
	out := t.TempDir()
	_, srv := newCDN(t, map[string]string{"/a.svg": badgeSVG})
	if err := os.WriteFile(filepath.Join(out, "b.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	obs := &recordObserver{}
	b := locator.BuildBadgeBatch([]string{"a", "b"}, srv.URL, out, domain.DefaultParams())
	_ = ExecuteWithObserver(context.Background(), b, Deps{Fetcher: fetch.Fetcher{Client: srv.Client()}}, obs)

	if obs.starts != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.starts)
	}
	wantStages := []string{"a:download", "a:convert", "a:delete"}
	if !reflect.DeepEqual(obs.stages, wantStages) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.stages, wantStages)
	}
	wantDone := []string{"a:converted", "b:skipped"}
	if !reflect.DeepEqual(obs.done, wantDone) {
		t.Fatalf("条目事件不符合预期：got=%v want=%v", obs.done, wantDone)
	}
}

func indexByName(rr domain.RunReport) map[string]domain.ItemResult {
	m := make(map[string]domain.ItemResult, len(rr.Items))
	for _, it := range rr.Items {
		m[it.Name] = it
	}
	return m
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望 %q 不存在，Stat err=%v", path, err)
	}
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取 %q 失败：%v", path, err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("解码 %q 失败：%v", path, err)
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码 PNG 失败：%v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("写入 PNG 失败：%v", err)
	}
}

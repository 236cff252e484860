package locator

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/assetprep/internal/domain"
)

// DefaultBadgeBaseURL 是徽章/旗帜 SVG 所在的 CDN 目录。
const DefaultBadgeBaseURL = "https://beta-cdn.wynncraft.com/nextgen/banners/"

// Badge 由标识 + CDN 目录 + 输出目录推导出条目（纯函数，无 I/O，不会失败）。
//
//	source = <baseURL>/<name>.svg
//	raw    = <outDir>/<name>.svg
//	final  = <outDir>/<name>.png
func Badge(name domain.Name, baseURL, outDir string) domain.WorkItem {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return domain.WorkItem{
		Name:      name,
		Source:    base + "/" + url.PathEscape(string(name)) + ".svg",
		RawPath:   filepath.Join(outDir, string(name)+".svg"),
		FinalPath: filepath.Join(outDir, string(name)+".png"),
	}
}

// BadgeFromURL 接受完整的 SVG URL；name 取 URL 的文件名（去掉 .svg）。
// 文件名不是合法 Name 时返回错误（调用方把它记为 rejected）。
func BadgeFromURL(raw, outDir string) (domain.WorkItem, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.WorkItem{}, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.WorkItem{}, fmt.Errorf("只支持 http/https：%q", raw)
	}
	base := path.Base(u.Path)
	stem := base
	if strings.HasSuffix(strings.ToLower(base), ".svg") {
		stem = base[:len(base)-len(".svg")]
	}
	name, ok := domain.ParseName(stem)
	if !ok {
		return domain.WorkItem{}, fmt.Errorf("无法从 URL 推导合法文件名：%q", raw)
	}
	return domain.WorkItem{
		Name:      name,
		Source:    u.String(),
		RawPath:   filepath.Join(outDir, string(name)+".svg"),
		FinalPath: filepath.Join(outDir, string(name)+".png"),
	}, nil
}

// Raster 为 upscale 推导条目：输出文件名直接沿用输入文件名，没有 raw 中间文件。
func Raster(inputPath, outDir string) domain.WorkItem {
	base := filepath.Base(inputPath)
	return domain.WorkItem{
		Name:      domain.Name(base),
		Source:    inputPath,
		FinalPath: filepath.Join(outDir, base),
	}
}

// BuildBadgeBatch 把标识列表显式构造为 Batch。
//
// - 含 "://" 的输入按完整 URL 处理，其余按标识处理
// - 非法输入进入 Rejected（仍会出现在 report 中），不会中断构造
// - 同一个 FinalPath 只保留第一次出现（重复输入不会产生两次处理）
func BuildBadgeBatch(ids []string, baseURL, outDir string, params domain.Params) domain.Batch {
	b := domain.Batch{
		Flow:   domain.FlowBadges,
		OutDir: outDir,
		Params: params,
		Items:  make([]domain.WorkItem, 0, len(ids)),
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		var item domain.WorkItem
		if strings.Contains(id, "://") {
			it, err := BadgeFromURL(id, outDir)
			if err != nil {
				b.Rejected = append(b.Rejected, domain.Rejected{Input: id, Reason: err.Error()})
				continue
			}
			item = it
		} else {
			name, ok := domain.ParseName(strings.TrimSuffix(id, ".svg"))
			if !ok {
				b.Rejected = append(b.Rejected, domain.Rejected{Input: id, Reason: fmt.Sprintf("非法标识：%q", id)})
				continue
			}
			item = Badge(name, baseURL, outDir)
		}

		if _, dup := seen[item.FinalPath]; dup {
			continue
		}
		seen[item.FinalPath] = struct{}{}
		b.Items = append(b.Items, item)
	}
	return b
}

// BuildUpscaleBatch 把扫描得到的输入文件构造为 Batch。
func BuildUpscaleBatch(files []string, outDir string, params domain.Params) domain.Batch {
	b := domain.Batch{
		Flow:   domain.FlowUpscale,
		OutDir: outDir,
		Params: params,
		Items:  make([]domain.WorkItem, 0, len(files)),
	}
	for _, f := range files {
		b.Items = append(b.Items, Raster(f, outDir))
	}
	return b
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/infra/fsx"
)

// HTTPStatusError 表示 CDN 返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Fetcher 把 URL 的原始字节落盘到 raw 路径。
//
// 约束：
// - raw 已存在 => 不发请求（第二级缓存，独立于 final 的检查）
// - 只发一次同步 GET；不重试、不限速
// - 响应体原样写入，不做任何内容校验（校验属于 Converter）
type Fetcher struct {
	Client *http.Client
}

// Fetch 返回 fetched=true 表示本次实际下载并写入了 rawPath。
// 所有错误都已分类：下载失败为 fetch_failed，落盘失败为 io_failed。
func (f Fetcher) Fetch(ctx context.Context, u, rawPath string) (fetched bool, err error) {
	exists, err := fsx.FileExists(rawPath)
	if err != nil {
		return false, domain.FilesystemError("stat_raw", rawPath, err)
	}
	if exists {
		return false, nil
	}

	b, err := f.get(ctx, u)
	if err != nil {
		return false, domain.FetchError("get", u, err)
	}

	// 临时文件 + rename：即使进程中途崩溃也不会留下半截 raw 文件。
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(rawPath), filepath.Base(rawPath), b); err != nil {
		return false, domain.FilesystemError("write_raw", rawPath, err)
	}
	return true, nil
}

func (f Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	if f.Client == nil {
		return nil, errors.New("http client 为空")
	}
	if strings.TrimSpace(u) == "" {
		return nil, errors.New("url 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

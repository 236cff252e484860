package discover

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/assetprep/internal/domain"
	"github.com/John-Robertt/assetprep/internal/fetch"
)

// Discover 抓取一个 HTML 索引页，返回其中引用的所有 .svg 资源的绝对 URL。
//
// 约束：
// - 只看 a[href] / img[src] / object[data]，扩展名大小写不敏感
// - 相对链接按页面 URL 解析；结果去重并按字典序排序
// - 抓取失败为 fetch_failed；页面里没有任何 SVG 不算错误（返回空列表）
func Discover(ctx context.Context, c *http.Client, indexURL string) ([]string, error) {
	html, err := fetchPage(ctx, c, indexURL)
	if err != nil {
		return nil, domain.FetchError("discover", indexURL, err)
	}
	return Parse(html, indexURL)
}

// Parse 是纯函数：相同的 html + pageURL => 相同的结果。
func Parse(html []byte, pageURL string) ([]string, error) {
	base, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, 16)
	collect := func(sel, attr string) {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(attr)
			if !ok {
				return
			}
			if u := resolveSVG(base, v); u != "" {
				seen[u] = struct{}{}
			}
		})
	}
	collect("a[href]", "href")
	collect("img[src]", "src")
	collect("object[data]", "data")

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func resolveSVG(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(r)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if !strings.EqualFold(path.Ext(u.Path), ".svg") {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func fetchPage(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fetch.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

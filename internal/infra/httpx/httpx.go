package httpx

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultUserAgent 在配置未指定 user_agent 时使用。
const DefaultUserAgent = "assetprep/1.0 (+https://github.com/John-Robertt/assetprep)"

// Transport 只负责给请求补齐 User-Agent，然后交给 Base。
//
// 约束：不做重试、不做退避。一次 GET 失败就是该条目失败，由下一次运行自然重来。
type Transport struct {
	Base      http.RoundTripper
	UserAgent string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}
	if req.Header.Get("User-Agent") != "" || strings.TrimSpace(t.UserAgent) == "" {
		return t.Base.RoundTrip(req)
	}
	// Clone：不在 RoundTripper 内部修改调用方的 request。
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.UserAgent)
	return t.Base.RoundTrip(r)
}

// NewClient 构造用于 CDN 下载 / 索引页抓取的 HTTP client。
//
// timeout<=0 表示不设总超时：挂起的请求会一直阻塞当前批次，
// 需要有界延迟时由配置的 fetch_timeout 兜底。
func NewClient(timeout time.Duration, userAgent string) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	c := &http.Client{
		Transport: &Transport{Base: base, UserAgent: ua},
	}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}

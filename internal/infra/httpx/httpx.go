package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultRetryMax = 2

	// MaxBodyBytes 限制数据表下载大小；投稿表远小于该值。
	MaxBodyBytes = 32 << 20
)

// Transport 把“UA 池 + 代理 + 有界重试”固化为统一策略。
//
// 重试条件：网络错误，或 5xx/429 响应；只重试可重放的 GET/HEAD。
type Transport struct {
	Base http.RoundTripper

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
	// Backoff 是两次尝试之间的基础等待时间（线性递增）；0 表示不等待。
	Backoff time.Duration
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 && t.Backoff > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(time.Duration(attempt) * t.Backoff):
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.ua != nil {
			r.Header.Set("User-Agent", t.ua.random())
		}

		resp, err := t.Base.RoundTrip(r)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
				return nil, lastErr
			}
			continue
		}
		if !retryableStatus(resp.StatusCode) || attempt == max {
			return resp, nil
		}
		// 丢弃本次响应体，保证连接可复用。
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// NewClient 构造下载数据表用的 HTTP client。
//
// 规则：
// - proxyURL 非空：走代理
// - 内置 UA 池：每个请求随机 UA
// - 有界重试 + 总超时
func NewClient(proxyURL string) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
	if proxyURL = strings.TrimSpace(proxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
	}

	return &http.Client{
		Transport: &Transport{
			Base:     base,
			ua:       globalUA,
			RetryMax: defaultRetryMax,
			Backoff:  500 * time.Millisecond,
		},
		Timeout: defaultTimeout,
	}, nil
}

// HTTPStatusError 表示服务端返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Get 下载 rawURL 的完整响应体（限制 MaxBodyBytes）。
func Get(ctx context.Context, c *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxBodyBytes {
		return nil, fmt.Errorf("GET %s: 响应超过 %d 字节", rawURL, MaxBodyBytes)
	}
	return b, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}

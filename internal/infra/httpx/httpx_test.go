package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNewClient_Proxy(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	base := tr.Base.(*http.Transport)
	req, _ := http.NewRequest(http.MethodGet, "https://example.org/data.csv", nil)
	u, err := base.Proxy(req)
	if err != nil || u == nil || u.Host != "127.0.0.1:8080" {
		t.Fatalf("期望走代理 127.0.0.1:8080，实际 u=%v err=%v", u, err)
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	_, err := NewClient("http://[::1")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestGet_RetriesServerErrorsAndSetsUA(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("期望设置 User-Agent")
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("id,title\n1,Hello\n"))
	}))
	defer srv.Close()

	c := testClient()
	b, err := Get(context.Background(), c, srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "id,title\n1,Hello\n" {
		t.Fatalf("响应体不符合预期：%q", b)
	}
	if hits.Load() != 3 {
		t.Fatalf("期望 3 次请求，实际 %d", hits.Load())
	}
}

func TestGet_StatusError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), testClient(), srv.URL)
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 HTTP 404，实际 err=%v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx 不应重试，实际请求 %d 次", hits.Load())
	}
}

func TestGet_PersistentServerErrorReturnsLastResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), testClient(), srv.URL)
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("期望 HTTP 503，实际 err=%v", err)
	}
}

func testClient() *http.Client {
	return &http.Client{Transport: &Transport{
		Base:     http.DefaultTransport,
		ua:       globalUA,
		RetryMax: 2,
	}}
}

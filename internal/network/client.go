// Package network は、imgdownのHTTP通信に関する機能を提供します。
// Cookie Jarによるセッション管理とコネクションプールをカプセル化した、
// 一回の実行で共有されるHTTPクライアントを実装しています。
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/config"
)

// HTTPError は、HTTPリクエストで発生したエラーとステータスコードを保持します。
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Response は、ステータス200で受信したレスポンスの内容です。
// ボディは全てメモリに読み込まれます。
type Response struct {
	URL         string
	ContentType string
	Body        []byte
}

// Client は、Cookie Jarとコネクションプールを内包し、HTTPセッションを管理するクライアントです。
// 複数のgoroutineから同時に使用できます。
type Client struct {
	httpClient     *http.Client
	transport      *http.Transport
	userAgent      string
	defaultHeaders map[string]string
}

// NewClient は NetworkSettings に基づいて HTTP クライアントを初期化します。
// RequestTimeoutMillis が0以下の場合はタイムアウトを設定しません。
func NewClient(settings config.NetworkSettings) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jarの作成に失敗しました: %w", err)
	}

	// 実行ごとに専用のプールを持たせ、Closeで確実に解放できるようにする
	transport := http.DefaultTransport.(*http.Transport).Clone()

	httpClient := &http.Client{
		Jar:       jar,
		Transport: transport,
	}
	if settings.RequestTimeoutMillis > 0 {
		httpClient.Timeout = time.Duration(settings.RequestTimeoutMillis) * time.Millisecond
	}

	return &Client{
		httpClient:     httpClient,
		transport:      transport,
		userAgent:      settings.UserAgent,
		defaultHeaders: settings.DefaultHeaders,
	}, nil
}

// Fetch は、指定されたURLにGETリクエストを送信し、レスポンスボディ全体を返します。
// ステータスが200以外の場合、ボディを読み捨てたうえで *HTTPError を返します。
func (c *Client) Fetch(ctx context.Context, reqURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("GETリクエストの作成に失敗しました (%s): %w", reqURL, err)
	}

	// デフォルトヘッダーを全て設定
	for key, value := range c.defaultHeaders {
		req.Header.Set(key, value)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GETリクエストの送信に失敗しました (%s): %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        reqURL,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました (%s): %w", reqURL, err)
	}

	return &Response{
		URL:         reqURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Close は、プールされているアイドル接続を全て閉じます。
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

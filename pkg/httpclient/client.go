package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/shouni/go-visitor-log/pkg/retry"
)

const (
	// HTTPクライアント関連の定数
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	MaxBodySize           = int64(10 * 1024 * 1024) // 10MB: レスポンスボディの最大読み込みサイズ

	// エラーメッセージに含めるボディの最大表示バイト数
	errorBodyDisplayLimit = 1024

	// サイトからのブロックを避けるためのUser-Agent
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en-GB,en;q=0.9"
)

// Doer はHTTPリクエストを実行する機能のインターフェースを定義します。
// テストではモックに差し替えられます。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NonRetryableHTTPError はリトライ対象外のHTTPステータスコードエラーを示すカスタムエラー型です。
type NonRetryableHTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *NonRetryableHTTPError) Error() string {
	if len(e.Body) > 0 {
		body := strings.TrimSpace(string(e.Body))
		if len(body) > errorBodyDisplayLimit {
			body = body[:errorBodyDisplayLimit] + "..."
		}
		return fmt.Sprintf("HTTPクライアントエラー (非リトライ対象): ステータスコード %d, ボディ: %s", e.StatusCode, body)
	}
	return fmt.Sprintf("HTTPクライアントエラー (非リトライ対象): ステータスコード %d, ボディなし", e.StatusCode)
}

// Client はHTTPリクエストと指数バックオフを用いたリトライロジックを管理します。
type Client struct {
	httpClient  Doer
	retryConfig retry.Config
	userAgent   string
	logger      *zap.SugaredLogger
}

// Option は Client の生成時に適用される設定関数です。
type Option func(*Client)

// WithHTTPClient は内部のHTTPクライアントを差し替えます。
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		c.httpClient = d
	}
}

// WithUserAgent はリクエストに使用するUser-Agentを設定します。空文字列の場合は無視されます。
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetryConfig はリトライ動作の設定を差し替えます。
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

// WithLogger は構造化ロガーを設定します。
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New は、新しいClientを生成します。
// connectTimeout は接続確立まで、readTimeout はレスポンス待ちに適用され、
// リクエスト全体は両者の合計で打ち切られます。
func New(connectTimeout, readTimeout time.Duration, opts ...Option) *Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   connectTimeout + readTimeout,
			Transport: transport,
		},
		retryConfig: retry.DefaultConfig(),
		userAgent:   DefaultUserAgent,
		logger:      zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithMaxRetries は最大リトライ回数を設定します。
func (c *Client) WithMaxRetries(max uint64) *Client {
	c.retryConfig.MaxRetries = max
	return c
}

// addCommonHeaders は共通のHTTPヘッダーを設定します。
func (c *Client) addCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)
}

// FetchBytes はURLからレスポンスボディを取得し、バイト配列として返します。
// 一時的なエラーは設定されたリトライ回数まで指数バックオフで再試行されます。
func (c *Client) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	var bodyBytes []byte
	attempt := 0

	op := func() error {
		attempt++
		c.logger.Debugw("HTTP GET を実行します", "url", url, "attempt", attempt)

		start := time.Now()
		var fetchErr error
		bodyBytes, fetchErr = c.doFetch(ctx, url)
		if fetchErr != nil {
			return fetchErr
		}

		c.logger.Debugw("HTTP GET が完了しました",
			"url", url,
			"attempt", attempt,
			"bytes", len(bodyBytes),
			"elapsed", time.Since(start).String(),
		)
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debugw("リトライ待機中", "url", url, "attempt", attempt, "wait", wait.String(), "reason", err.Error())
	}

	err := retry.DoWithNotify(
		ctx,
		c.retryConfig,
		fmt.Sprintf("URL(%s)のフェッチ", url),
		op,
		c.isHTTPRetryableError,
		notify,
	)

	if err != nil {
		return nil, err
	}
	return bodyBytes, nil
}

// FetchDocument はURLからHTMLを取得し、goquery.Documentを返します。
func (c *Client) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	bodyBytes, err := c.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(bodyBytes)))
	if err != nil {
		return nil, fmt.Errorf("HTML解析に失敗しました: %w", err)
	}
	return doc, nil
}

// doFetch は実際の一度のHTTP GETリクエストを実行し、レスポンスボディを返します。
func (c *Client) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)
	}
	c.addCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}

	defer resp.Body.Close()

	if err := checkResponseForRetry(resp); err != nil {
		return nil, err
	}

	limitedReader := io.LimitReader(resp.Body, MaxBodySize)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}

	if resp.ContentLength > 0 && resp.ContentLength > MaxBodySize {
		return nil, fmt.Errorf("レスポンスボディが最大サイズ (%dバイト) を超えました", MaxBodySize)
	}

	return bodyBytes, nil
}

// checkResponseForRetry はHTTPレスポンスのステータスコードを評価し、リトライすべきエラーか、非リトライ対象のエラーかを返します。
// 2xx は成功、429 と 5xx はリトライ対象、それ以外は非リトライ対象として扱います。
func checkResponseForRetry(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	// 注意: この関数はレスポンスボディを読み込みますが、閉じる責務は持ちません。
	// 呼び出し元が resp.Body.Close() を実行する必要があります。
	limitedReader := io.LimitReader(resp.Body, MaxBodySize)
	bodyBytes, readErr := io.ReadAll(limitedReader)

	if resp.ContentLength > 0 && resp.ContentLength > MaxBodySize {
		return fmt.Errorf("レスポンスボディが最大サイズ (%dバイト) を超えました", MaxBodySize)
	}

	// 429 / 5xx 系: リトライ対象のエラー
	if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
		if readErr != nil {
			return fmt.Errorf("HTTPステータスコードエラー (リトライ対象, ボディ読み込み失敗): %d, 原因: %w", resp.StatusCode, readErr)
		}
		// リトライ対象のエラーとしてそのまま返す
		return fmt.Errorf("HTTPステータスコードエラー (リトライ対象): %d, 詳細: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	// その他の非成功ステータス: 非リトライ対象 (NonRetryableHTTPError としてラップ)
	if readErr != nil {
		return &NonRetryableHTTPError{
			StatusCode: resp.StatusCode,
		}
	}
	return &NonRetryableHTTPError{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
	}
}

// IsNonRetryableError は与えられたエラーが非リトライ対象のHTTPエラーであるかを判断します。
func IsNonRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var nonRetryable *NonRetryableHTTPError
	return errors.As(err, &nonRetryable)
}

// isHTTPRetryableError はエラーがHTTPリトライ対象かどうかを判定します。
// この関数は retry.ShouldRetryFunc 型のシグネチャを満たします。
func (c *Client) isHTTPRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 1. Contextエラー（タイムアウト/キャンセル）はリトライ対象。
	//    リクエスト単位のタイムアウトがここに含まれる。実行全体のキャンセルは
	//    バックオフ側のコンテキスト監視が打ち切る
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// 2. 非リトライ対象エラーはリトライしない
	if IsNonRetryableError(err) {
		return false
	}

	// 3. 429/5xxエラーやネットワークエラー（NonRetryableHTTPErrorでないもの）はすべてリトライ対象
	return true
}

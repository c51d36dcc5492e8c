package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-visitor-log/pkg/config"
	"github.com/shouni/go-visitor-log/pkg/counter"
	"github.com/shouni/go-visitor-log/pkg/csvlog"
	"github.com/shouni/go-visitor-log/pkg/retry"
	"github.com/shouni/go-visitor-log/pkg/scraper"
)

// overallTimeoutMargin は、リトライ待機とHTTPタイムアウトの合計に上乗せする余裕です。
const overallTimeoutMargin = 10 * time.Second

// scrapeCmd は、カウンター値を1回取得してCSVログへ追記するコマンドです。
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "訪問者カウンターを取得してCSVログに1行追記する",
	Long: `設定されたURLからHTMLを取得し、カウンター要素の数値を抽出して
追記専用のCSVログに記録します。取得や抽出に失敗した場合も空の値で
行を追記し、終了コードで失敗を通知します。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape(cmd.Context())
	},
}

// runScrape は、scrape サブコマンドの本体です。
// 依存を組み立てて1回分のスクレイプを実行します。
func runScrape(parent context.Context) error {
	cfg := GetConfig()
	logger := GetLogger()

	// 1. 設定の検証とURLの正規化 (失敗時は行を追記せずに終了)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定が不正です: %w", err)
	}
	targetURL, err := ensureScheme(cfg.URL)
	if err != nil {
		return err
	}

	// 2. 依存性の初期化
	extractor, err := counter.NewExtractor(GetGlobalClient())
	if err != nil {
		return fmt.Errorf("抽出器の初期化に失敗しました: %w", err)
	}
	extractor.WithSelector(cfg.Selector).WithLogger(logger)

	writer := csvlog.NewWriter(cfg.OutCSV).WithLogger(logger)

	runner, err := scraper.NewRunner(extractor, writer)
	if err != nil {
		return fmt.Errorf("スクレイパーの初期化に失敗しました: %w", err)
	}
	runner.WithLogger(logger)

	// 3. 全体処理のコンテキストを設定
	ctx, cancel := context.WithTimeout(parent, overallScrapeTimeout(cfg))
	defer cancel()

	// 4. スクレイプの実行 (失敗時も空の値での追記は Run 内で完了している)
	obs, err := runner.Run(ctx, targetURL)
	if err != nil {
		return err
	}

	logger.Infow("スクレイプが正常に完了しました",
		"url", obs.URL,
		"value", *obs.Value,
		"out_csv", writer.Path(),
	)
	return nil
}

// overallScrapeTimeout は、全リトライ試行とバックオフ待機を収められる
// 全体タイムアウトを設定値から算出します。
func overallScrapeTimeout(cfg config.Config) time.Duration {
	retryCfg := retry.ConfigForFactor(cfg.Retries, cfg.Backoff)
	perAttempt := cfg.ConnectTimeout + cfg.ReadTimeout
	attempts := time.Duration(cfg.Retries + 1)
	return attempts*perAttempt + retryCfg.MaxWaitTotal() + overallTimeoutMargin
}

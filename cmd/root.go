package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shouni/go-visitor-log/pkg/config"
	"github.com/shouni/go-visitor-log/pkg/httpclient"
	"github.com/shouni/go-visitor-log/pkg/retry"
)

// appName は、ヘルプやログに表示するアプリケーション名です。
const appName = "visitor-log"

// --- グローバル変数とフラグ構造体 ---

// AppFlags は、全コマンド共通の永続フラグの値を保持します。
// ここで受けた値は Changed 判定を経て config.Overrides に変換されるため、
// 未指定のフラグは環境変数と既定値の解決を妨げません。
type AppFlags struct {
	URL            string
	OutCSV         string
	UserAgent      string
	ConnectTimeout float64 // 秒
	ReadTimeout    float64 // 秒
	Retries        uint64
	Backoff        float64
	Selector       string
	Verbose        bool
}

// Flags は、アプリケーション固有フラグにアクセスするためのグローバル変数です。
var Flags AppFlags

// サブコマンド間で共有する依存。initAppPreRunE で初期化されます。
var (
	appConfig    config.Config
	appLogger    *zap.SugaredLogger
	globalClient *httpclient.Client
)

// rootCmd は visitor-log のルートコマンドです。
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Webページの訪問者カウンターを定点記録するスクレイパー",
	Long: `visitor-log は、指定ページから訪問者カウンターの値を取得し、
追記専用のCSVログへ1行ずつ記録するCLIツールです。

取得や抽出に失敗した場合も空の値で行を追記するため、実行の痕跡が
必ず残ります。設定は CLIフラグ > 環境変数 (SCRAPER_*) > 既定値 の
優先順位で解決されます。`,
	SilenceUsage:      true,
	PersistentPreRunE: initAppPreRunE,
}

// --- 初期化とロジック ---

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVarP(&Flags.URL, "url", "u", "", "取得対象ページのURL (既定: "+config.DefaultURL+")")
	rootCmd.PersistentFlags().StringVarP(&Flags.OutCSV, "out", "o", "", "追記先CSVログのパス (既定: "+config.DefaultOutCSV+")")
	rootCmd.PersistentFlags().StringVar(&Flags.UserAgent, "user-agent", "", "HTTPリクエストのUser-Agentヘッダー")
	rootCmd.PersistentFlags().Float64Var(&Flags.ConnectTimeout, "connect-timeout", 0, "接続確立のタイムアウト（秒）")
	rootCmd.PersistentFlags().Float64Var(&Flags.ReadTimeout, "read-timeout", 0, "レスポンス読み取りのタイムアウト（秒）")
	rootCmd.PersistentFlags().Uint64Var(&Flags.Retries, "retries", 0, "失敗時の再試行回数")
	rootCmd.PersistentFlags().Float64Var(&Flags.Backoff, "backoff", 0, "指数バックオフの係数")
	rootCmd.PersistentFlags().StringVar(&Flags.Selector, "selector", "", "カウンター要素のCSSセレクター")
	rootCmd.PersistentFlags().BoolVarP(&Flags.Verbose, "verbose", "v", false, "デバッグログを有効にする")
}

// collectOverrides は、コマンドラインで明示的に指定されたフラグだけを
// config.Overrides へ写し取ります。未指定のフラグを nil のまま残すことで、
// 環境変数と既定値へのフォールバックを成立させます。
func collectOverrides(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	flags := cmd.Flags()

	if flags.Changed("url") {
		o.URL = &Flags.URL
	}
	if flags.Changed("out") {
		o.OutCSV = &Flags.OutCSV
	}
	if flags.Changed("user-agent") {
		o.UserAgent = &Flags.UserAgent
	}
	if flags.Changed("connect-timeout") {
		o.ConnectTimeout = &Flags.ConnectTimeout
	}
	if flags.Changed("read-timeout") {
		o.ReadTimeout = &Flags.ReadTimeout
	}
	if flags.Changed("retries") {
		o.Retries = &Flags.Retries
	}
	if flags.Changed("backoff") {
		o.Backoff = &Flags.Backoff
	}
	if flags.Changed("selector") {
		o.Selector = &Flags.Selector
	}
	if flags.Changed("verbose") {
		o.Verbose = &Flags.Verbose
	}
	return o
}

// initAppPreRunE は、サブコマンド実行前に設定の解決と共有依存の構築を行う
// PersistentPreRunE です。
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	// 1. 設定の解決 (CLIフラグ > 環境変数 > 既定値)
	appConfig = config.Resolve(collectOverrides(cmd))

	// 2. ロガーの構築
	logger, err := newLogger(appConfig.Verbose)
	if err != nil {
		return fmt.Errorf("ロガーの初期化に失敗しました: %w", err)
	}
	appLogger = logger.Sugar()

	// 3. 共有HTTPクライアントの初期化
	retryCfg := retry.ConfigForFactor(appConfig.Retries, appConfig.Backoff)
	globalClient = httpclient.New(
		appConfig.ConnectTimeout,
		appConfig.ReadTimeout,
		httpclient.WithUserAgent(appConfig.UserAgent),
		httpclient.WithRetryConfig(retryCfg),
		httpclient.WithLogger(appLogger),
	)

	appLogger.Debugw("設定を解決しました",
		"url", appConfig.URL,
		"out_csv", appConfig.OutCSV,
		"connect_timeout", appConfig.ConnectTimeout.String(),
		"read_timeout", appConfig.ReadTimeout.String(),
		"retries", appConfig.Retries,
		"backoff", appConfig.Backoff,
		"selector", appConfig.Selector,
	)
	return nil
}

// newLogger は、構造化ロガーを構築します。ログは標準出力へ、
// タイムスタンプは秒精度のISO-8601 (UTC) で出力されます。
func newLogger(verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05Z"))
	}
	return cfg.Build()
}

// GetConfig は、解決済みのアプリケーション設定を返します。
func GetConfig() config.Config {
	return appConfig
}

// GetLogger は、共有の構造化ロガーを返します。
// 初期化前に呼ばれた場合は no-op ロガーを返します。
func GetLogger() *zap.SugaredLogger {
	if appLogger == nil {
		return zap.NewNop().Sugar()
	}
	return appLogger
}

// GetGlobalClient は、初期化された共有HTTPクライアントを返す関数 (DIの代わり)
func GetGlobalClient() *httpclient.Client {
	return globalClient
}

func init() {
	addAppPersistentFlags(rootCmd)
	rootCmd.AddCommand(scrapeCmd, discoverCmd, checkCmd)
}

// --- エントリポイント ---

// Execute は、ルートコマンドを実行します。
// 失敗時はバッファ済みのログを書き出した上で非ゼロ終了します。
func Execute() {
	err := rootCmd.Execute()
	if appLogger != nil {
		_ = appLogger.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

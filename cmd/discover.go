package cmd

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/spf13/cobra"

	"github.com/shouni/go-visitor-log/pkg/feed"
)

// overallFeedTimeoutFactor は、フィードの取得と解析の全体処理に、
// HTTPタイムアウトの何倍の時間を許容するかを決定します。
const overallFeedTimeoutFactor = 2

var (
	// discoverFeedURL は --feed フラグで指定されたフィードのURLを保持します。
	discoverFeedURL string
	// discoverAll は、イベント以外のリンクも表示するかを保持します。
	discoverAll bool
)

// discoverCmd は、RSSフィードから監視候補のイベントURLを列挙するコマンドです。
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "RSSフィードから監視候補のイベントURLを列挙する",
	Long: `対象サイトのRSSフィードを取得・解析し、イベントページへのリンクを
一覧表示します。--feed でフィードURLを直接指定しない場合は、
取得対象URLのホストから <scheme>://<host>/feed/ を導出します。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(cmd.Context())
	},
}

// resolveFeedURL は、--feed の指定を優先し、なければ取得対象URLから
// フィードURLを導出します。
func resolveFeedURL() (string, error) {
	if discoverFeedURL != "" {
		return ensureScheme(discoverFeedURL)
	}

	pageURL, err := ensureScheme(GetConfig().URL)
	if err != nil {
		return "", err
	}
	derived, err := feed.DeriveFeedURL(pageURL)
	if err != nil {
		return "", fmt.Errorf("フィードURLの導出に失敗しました: %w", err)
	}
	return derived, nil
}

// runDiscoverPipeline は、フィードの取得と解析を実行するメインロジックです。
func runDiscoverPipeline(parent context.Context, feedURL string) (*gofeed.Feed, error) {
	parser, err := feed.NewParser(GetGlobalClient())
	if err != nil {
		return nil, fmt.Errorf("フィードパーサーの初期化に失敗しました: %w", err)
	}

	cfg := GetConfig()
	overallTimeout := (cfg.ConnectTimeout + cfg.ReadTimeout) * overallFeedTimeoutFactor
	ctx, cancel := context.WithTimeout(parent, overallTimeout)
	defer cancel()

	return parser.FetchAndParse(ctx, feedURL)
}

// runDiscover は、discover サブコマンドの本体です。
func runDiscover(parent context.Context) error {
	feedURL, err := resolveFeedURL()
	if err != nil {
		return err
	}

	parsed, err := runDiscoverPipeline(parent, feedURL)
	if err != nil {
		return err
	}

	// 結果の出力
	adapter := feed.NewFeedAdapter(parsed)
	fmt.Printf("--- フィード解析結果: %s ---\n", parsed.Title)
	fmt.Printf("フィードURL: %s (リンク総数: %d)\n", feedURL, len(adapter.GetLinks()))

	count := 0
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		if !discoverAll && !feed.IsEventLink(item.Link) {
			continue
		}
		count++
		fmt.Printf("[%d] %s\n", count, item.Title)
		fmt.Printf("    URL: %s\n", item.Link)
		if item.PublishedParsed != nil {
			fmt.Printf("    公開日時: %s\n", item.PublishedParsed.UTC().Format("2006-01-02 15:04:05 UTC"))
		}
	}

	if count == 0 {
		fmt.Println("該当するリンクは見つかりませんでした。")
		return nil
	}
	fmt.Printf("--- 合計 %d 件 ---\n", count)
	return nil
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverFeedURL, "feed", "f", "", "RSSフィードのURL (未指定なら取得対象URLから導出)")
	discoverCmd.Flags().BoolVar(&discoverAll, "all", false, "イベント以外のリンクも含めて表示する")
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-visitor-log/pkg/csvlog"
)

// checkCmd は、CSVログの整合性を検査するコマンドです。
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "CSVログの整合性を検査する",
	Long: `追記済みのCSVログを読み込み、ヘッダー・列数・タイムスタンプ形式
(ISO-8601 UTC)・時系列順・値の形式を検査します。
違反が見つかった場合は非ゼロで終了します。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck()
	},
}

// runCheck は、check サブコマンドの本体です。
func runCheck() error {
	cfg := GetConfig()

	result, err := csvlog.Verify(cfg.OutCSV)
	if err != nil {
		return fmt.Errorf("CSVログの検査に失敗しました (path: %s): %w", cfg.OutCSV, err)
	}

	// 結果の出力
	fmt.Printf("--- CSVログ検査結果: %s ---\n", cfg.OutCSV)
	fmt.Printf("総行数:   %d\n", result.Rows)
	fmt.Printf("空値の行: %d\n", result.BlankRows)
	fmt.Printf("記録期間: %s 〜 %s\n",
		result.First.Format(time.RFC3339),
		result.Last.Format(time.RFC3339),
	)
	fmt.Println("整合性に問題はありません。")
	return nil
}

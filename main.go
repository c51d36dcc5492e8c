package main

import "github.com/shouni/go-visitor-log/cmd"

// main 関数は、CLIのルートコマンドに処理を委譲します。
// 終了コードの制御は cmd.Execute が担います。
func main() {
	cmd.Execute()
}

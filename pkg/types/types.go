package types

import (
	"strconv"
	"time"
)

// CSVHeader は観測ログの先頭行に書かれる列名です。列順は Record の出力と一致します。
var CSVHeader = []string{"timestamp_utc", "value", "url"}

// Observation は、一回のスクレイプで記録される観測値を保持します。
// これは、Scraperの出力、CSVログの入力として利用されます。
type Observation struct {
	TimestampUTC time.Time // 観測時刻 (UTC)
	Value        *int      // 訪問者カウンター値。取得できなかった場合は nil
	URL          string    // 取得対象のURL
}

// HasValue はカウンター値が取得できているかを返します。
func (o Observation) HasValue() bool {
	return o.Value != nil
}

// Record は CSV 行として書き出す文字列スライスを返します。
// タイムスタンプは秒精度のRFC3339 (UTC, Z表記)、値が無い場合は空文字列になります。
func (o Observation) Record() []string {
	value := ""
	if o.Value != nil {
		value = strconv.Itoa(*o.Value)
	}
	return []string{o.TimestampUTC.UTC().Format(time.RFC3339), value, o.URL}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shouni/go-visitor-log/pkg/counter"
	"github.com/shouni/go-visitor-log/pkg/httpclient"
	"github.com/shouni/go-visitor-log/pkg/retry"
)

// 組み込みのデフォルト値。他のデフォルトは各コンポーネントの定数を参照します。
const (
	DefaultURL    = "https://ungvetenskapssport.se/event/robotiklager-norrkoping-2026/"
	DefaultOutCSV = "data/visitor_counter.csv"
)

// 環境変数名。すべて SCRAPER_ プレフィックスを持ちます。
const (
	EnvURL            = "SCRAPER_URL"
	EnvOutCSV         = "SCRAPER_OUT_CSV"
	EnvUserAgent      = "SCRAPER_USER_AGENT"
	EnvConnectTimeout = "SCRAPER_CONNECT_TIMEOUT"
	EnvReadTimeout    = "SCRAPER_READ_TIMEOUT"
	EnvRetries        = "SCRAPER_RETRIES"
	EnvBackoff        = "SCRAPER_BACKOFF"
	EnvSelector       = "SCRAPER_SELECTOR"
	EnvVerbose        = "SCRAPER_VERBOSE"
)

// Config は一回の実行で使用される確定済みの設定値を保持します。
// 解決後は変更されない値として各コンポーネントへ渡されます。
type Config struct {
	URL            string
	OutCSV         string
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retries        uint64
	Backoff        float64
	Selector       string
	Verbose        bool
}

// Overrides はコマンドラインで明示されたフラグの値を保持します。
// nil のフィールドは「指定なし」を意味し、環境変数やデフォルト値を上書きしません。
// タイムアウトは秒単位の数値です。
type Overrides struct {
	URL            *string
	OutCSV         *string
	UserAgent      *string
	ConnectTimeout *float64
	ReadTimeout    *float64
	Retries        *uint64
	Backoff        *float64
	Selector       *string
	Verbose        *bool
}

// Defaults は組み込みのデフォルト設定を返します。
func Defaults() Config {
	return Config{
		URL:            DefaultURL,
		OutCSV:         DefaultOutCSV,
		UserAgent:      httpclient.DefaultUserAgent,
		ConnectTimeout: httpclient.DefaultConnectTimeout,
		ReadTimeout:    httpclient.DefaultReadTimeout,
		Retries:        retry.DefaultMaxRetries,
		Backoff:        retry.DefaultBackoffFactor,
		Selector:       counter.DefaultSelector,
		Verbose:        false,
	}
}

// Resolve は デフォルト値 → 環境変数 → 明示されたフラグ の優先順で設定を確定します。
// カレントディレクトリに .env があれば先に環境変数へ読み込みます
// (.env は既存の環境変数を上書きしません)。
// 数値の環境変数が解釈できない場合は黙ってデフォルト値を使用します。
func Resolve(overrides Overrides) Config {
	_ = godotenv.Load()

	cfg := Defaults()
	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)
	return cfg
}

// Validate は実行に必須の設定値が揃っているかを検証します。
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("取得対象のURLが設定されていません")
	}
	if strings.TrimSpace(c.OutCSV) == "" {
		return fmt.Errorf("CSVログの出力パスが設定されていません")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvURL); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv(EnvOutCSV); v != "" {
		cfg.OutCSV = v
	}
	if v := os.Getenv(EnvUserAgent); v != "" {
		cfg.UserAgent = v
	}
	cfg.ConnectTimeout = envSeconds(EnvConnectTimeout, cfg.ConnectTimeout)
	cfg.ReadTimeout = envSeconds(EnvReadTimeout, cfg.ReadTimeout)
	cfg.Retries = envUint(EnvRetries, cfg.Retries)
	cfg.Backoff = envFloat(EnvBackoff, cfg.Backoff)
	if v := os.Getenv(EnvSelector); v != "" {
		cfg.Selector = v
	}
	cfg.Verbose = envBool(EnvVerbose, cfg.Verbose)
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.URL != nil {
		cfg.URL = *o.URL
	}
	if o.OutCSV != nil {
		cfg.OutCSV = *o.OutCSV
	}
	if o.UserAgent != nil {
		cfg.UserAgent = *o.UserAgent
	}
	if o.ConnectTimeout != nil {
		cfg.ConnectTimeout = secondsToDuration(*o.ConnectTimeout)
	}
	if o.ReadTimeout != nil {
		cfg.ReadTimeout = secondsToDuration(*o.ReadTimeout)
	}
	if o.Retries != nil {
		cfg.Retries = *o.Retries
	}
	if o.Backoff != nil {
		cfg.Backoff = *o.Backoff
	}
	if o.Selector != nil && *o.Selector != "" {
		cfg.Selector = *o.Selector
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
}

// envFloat は環境変数を浮動小数として読み取ります。未設定または解釈できない場合は fallback を返します。
func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envSeconds は秒単位の環境変数を time.Duration として読み取ります。
func envSeconds(key string, fallback time.Duration) time.Duration {
	return secondsToDuration(envFloat(key, fallback.Seconds()))
}

// envUint は環境変数を非負整数として読み取ります。未設定または解釈できない場合は fallback を返します。
func envUint(key string, fallback uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// envBool は環境変数を真偽値として読み取ります。未設定または解釈できない場合は fallback を返します。
func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// リトライ関連の定数
	DefaultMaxRetries = 3 // 初回試行後の最大リトライ回数

	// バックオフのデフォルト設定
	DefaultBackoffFactor = 1.5
	MaxBackoffInterval   = 60 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// NotifyFunc はリトライ待機の直前に呼び出され、直前の失敗エラーと待機時間を受け取ります。
type NotifyFunc func(err error, wait time.Duration)

// Config はリトライ動作を設定するための構造体です。
// MaxRetries は初回試行を含まないリトライ回数で、総試行回数は MaxRetries+1 回になります。
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return ConfigForFactor(DefaultMaxRetries, DefaultBackoffFactor)
}

// ConfigForFactor はバックオフ係数 factor に基づく設定を生成します。
// 待機時間は factor 秒から始まり、リトライごとに factor 倍へ指数的に伸びます
// (k回目のリトライ前の待機は factor^k 秒)。factor が 1 未満の場合は
// 待機時間を一定 (factor 秒) とし、負数は待機なしとして扱います。
func ConfigForFactor(maxRetries uint64, factor float64) Config {
	cfg := Config{
		MaxRetries:  maxRetries,
		Multiplier:  factor,
		MaxInterval: MaxBackoffInterval,
	}
	if factor < 1 {
		cfg.Multiplier = 1
	}
	if factor > 0 {
		cfg.InitialInterval = time.Duration(factor * float64(time.Second))
	}
	return cfg
}

// MaxWaitTotal は全リトライで発生しうる待機時間の合計を返します。
// 待機はジッターなしのため、これは見積もりではなく上限そのものです。
// 間隔の伸び方はバックオフポリシーの実装と同じ規則に従います。
func (c Config) MaxWaitTotal() time.Duration {
	var total time.Duration
	interval := c.InitialInterval
	for i := uint64(0); i < c.MaxRetries; i++ {
		total += interval
		if float64(interval) >= float64(c.MaxInterval)/c.Multiplier {
			interval = c.MaxInterval
		} else {
			interval = time.Duration(float64(interval) * c.Multiplier)
		}
	}
	return total
}

// newBackOffPolicy は Config からコンテキスト付きのバックオフポリシーを構築します。
// 待機時間はジッターなしの決定的な値で、打ち切りは回数とコンテキストのみで行います。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.RandomizationFactor = 0 // ジッターなし。待機列は設定値から一意に決まる
	b.MaxElapsedTime = 0      // 経過時間では打ち切らない

	bo := backoff.WithMaxRetries(b, cfg.MaxRetries)
	return backoff.WithContext(bo, ctx)
}

// Do は指数バックオフとカスタムエラー判定を使用して操作をリトライします。
// Configを引数で受け取ることで、特定のクライアント構造体への依存を排除しています。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	return DoWithNotify(ctx, cfg, operationName, op, shouldRetryFn, nil)
}

// DoWithNotify は Do と同じリトライを行いつつ、待機のたびに notify を呼び出します。
// notify が nil の場合は通知しません。
func DoWithNotify(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc, notify NotifyFunc) error {
	bo := newBackOffPolicy(ctx, cfg)

	var lastErr error
	var permanent bool

	// リトライ処理内で実行される実際の操作
	retryableOp := func() error {
		err := op()

		if err == nil {
			return nil // 成功
		}

		// 外部から渡された判定関数を使用
		if shouldRetryFn(err) {
			lastErr = fmt.Errorf("一時的なエラーが発生、リトライします: %w", err)
			return lastErr // リトライ対象
		}

		permanent = true
		lastErr = fmt.Errorf("致命的なエラーのためリトライを中止: %w", err)
		return backoff.Permanent(lastErr) // 永続エラーとしてラップし、即時終了
	}

	err := backoff.RetryNotify(retryableOp, bo, backoff.Notify(notify))

	if err != nil {
		// コンテキストキャンセル/タイムアウトのエラー処理。
		// 操作側のエラーが deadline を包んでいる場合と区別するため ctx.Err() を直接見る
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, err)
		}

		// backoff.Retry は PermanentError を解いて中身を返すため、フラグで判別する
		if permanent {
			return err
		}

		// その他のリトライ上限到達エラー
		return fmt.Errorf("%sに失敗しました: 最大リトライ回数 (%d回) に到達。最終エラー: %w", operationName, cfg.MaxRetries, err)
	}
	return nil
}

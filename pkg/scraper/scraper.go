package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shouni/go-visitor-log/pkg/types"
)

// 実行結果の分類に使用するセンチネルエラー。
// いずれの場合も空の値の行は記録済みで、終了コードを非ゼロにするために返されます。
var (
	// ErrFetchFailed は取得がリトライ上限まで失敗したことを示します。
	ErrFetchFailed = errors.New("カウンター値の取得に失敗しました")
	// ErrNoValue はページからカウンター値を抽出できなかったことを示します。
	ErrNoValue = errors.New("カウンター要素から値を抽出できませんでした")
)

// CounterExtractor は訪問者カウンター値を取得する機能のインターフェースです。
type CounterExtractor interface {
	FetchAndExtractCount(ctx context.Context, url string) (value int, found bool, err error)
}

// ObservationWriter は観測値をログへ追記する機能のインターフェースです。
type ObservationWriter interface {
	Append(obs types.Observation) error
}

// Runner は一回のスクレイプ実行 (取得 → 抽出 → 記録) を統括します。
// 実行は単一スレッドで同期的に行われ、所要時間はタイムアウトとリトライ設定で抑えられます。
type Runner struct {
	extractor CounterExtractor
	writer    ObservationWriter
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewRunner は Runner を初期化します。
func NewRunner(extractor CounterExtractor, writer ObservationWriter) (*Runner, error) {
	if extractor == nil {
		return nil, fmt.Errorf("scraper.NewRunner: CounterExtractor cannot be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("scraper.NewRunner: ObservationWriter cannot be nil")
	}
	return &Runner{
		extractor: extractor,
		writer:    writer,
		logger:    zap.NewNop().Sugar(),
		now:       time.Now,
	}, nil
}

// WithLogger は構造化ロガーを設定します。
func (r *Runner) WithLogger(logger *zap.SugaredLogger) *Runner {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithClock は現在時刻の取得関数を差し替えます。テストで使用します。
func (r *Runner) WithClock(now func() time.Time) *Runner {
	if now != nil {
		r.now = now
	}
	return r
}

// Run は一回のスクレイプを実行し、記録した観測値を返します。
//
// タイムスタンプは実行開始時点で確定します。取得がリトライ上限まで失敗した場合や
// カウンター値を抽出できなかった場合でも、空の値の行を記録したうえで
// それぞれ ErrFetchFailed / ErrNoValue を返します。
// ログへの書き込みに失敗した場合は行を残さず、そのエラーを優先して返します。
func (r *Runner) Run(ctx context.Context, url string) (types.Observation, error) {
	start := r.now().UTC()
	obs := types.Observation{
		TimestampUTC: start,
		URL:          url,
	}

	r.logger.Infow("スクレイプを開始します", "url", url, "timestamp", obs.Record()[0])

	value, found, fetchErr := r.extractor.FetchAndExtractCount(ctx, url)

	switch {
	case fetchErr != nil:
		r.logger.Errorw("カウンター値の取得に失敗しました。空の値で記録します", "url", url, "error", fetchErr.Error())
	case !found:
		r.logger.Warnw("カウンター値が見つかりませんでした。空の値で記録します", "url", url)
	default:
		obs.Value = &value
		r.logger.Infow("カウンター値を取得しました", "url", url, "value", value)
	}

	// 取得の成否にかかわらず1行を追記する。書き込み失敗が最優先のエラーになる
	if err := r.writer.Append(obs); err != nil {
		return obs, fmt.Errorf("観測値の記録に失敗しました: %w", err)
	}

	r.logger.Infow("観測値を記録しました", "record", obs.Record())

	if fetchErr != nil {
		return obs, fmt.Errorf("%w (空の値を記録済み): %w", ErrFetchFailed, fetchErr)
	}
	if !found {
		return obs, fmt.Errorf("%w (空の値を記録済み)", ErrNoValue)
	}
	return obs, nil
}

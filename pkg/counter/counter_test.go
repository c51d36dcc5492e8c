package counter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-visitor-log/pkg/counter"
)

// ======================================================================
// モック (Mock) の定義
// ======================================================================

// MockFetcher はテスト用の counter.Fetcher インターフェースの実装です。
type MockFetcher struct {
	htmlContent string
	fetchError  error
}

// FetchBytes はモックされたHTMLをバイト配列として返すか、エラーを返します。
func (m *MockFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	return []byte(m.htmlContent), nil
}

// ======================================================================
// テスト関数
// ======================================================================

func TestNewExtractor(t *testing.T) {
	t.Run("success_with_valid_fetcher", func(t *testing.T) {
		fetcher := &MockFetcher{}
		extractor, err := counter.NewExtractor(fetcher)
		assert.NoError(t, err)
		assert.NotNil(t, extractor)
	})

	t.Run("error_with_nil_fetcher", func(t *testing.T) {
		extractor, err := counter.NewExtractor(nil)
		assert.Error(t, err)
		assert.Nil(t, extractor)
		assert.Contains(t, err.Error(), "Fetcher cannot be nil")
	})
}

// TestFetchAndExtractCount は Extractor の主要なメソッドをテストします。
func TestFetchAndExtractCount(t *testing.T) {
	testCases := []struct {
		name          string
		html          string
		selector      string
		fetchErr      error
		expectedValue int
		expectedFound bool
		expectedError bool
	}{
		// 1. ネットワークエラーのテスト
		{
			name:          "fetch_error",
			fetchErr:      errors.New("network timeout"),
			expectedError: true,
		},

		// 2. 単純なカウンター要素 (IDセレクター指定)
		{
			name:          "simple_counter_span",
			html:          `<html><body><span id="counter">482</span></body></html>`,
			selector:      "#counter",
			expectedValue: 482,
			expectedFound: true,
		},

		// 3. 既定セレクターのウィジェット (アイコンと説明テキスト付き)
		{
			name:          "default_selector_widget",
			html:          `<html><body><div class="wpem-viewed-event"><i class="wpem-icon-eye"></i> 1376 viewed</div></body></html>`,
			expectedValue: 1376,
			expectedFound: true,
		},

		// 4. 子要素が分かれていてもテキストは空白区切りで連結される
		{
			name:          "nested_children_joined",
			html:          `<html><body><div class="wpem-viewed-event"><span>Viewed</span><span>482</span><span>times</span></div></body></html>`,
			expectedValue: 482,
			expectedFound: true,
		},

		// 5. 複数の数値がある場合は最後の数字列を採用する
		{
			name:          "multiple_numbers_takes_last",
			html:          `<html><body><div class="wpem-viewed-event">Seen 42 times today, 57 total</div></body></html>`,
			expectedValue: 57,
			expectedFound: true,
		},

		// 6. カンマ区切りの数値は最後の数字列 (下位桁) を採用する
		{
			name:          "comma_separated_number",
			html:          `<html><body><div class="wpem-viewed-event">1,234 viewed</div></body></html>`,
			expectedValue: 234,
			expectedFound: true,
		},

		// 7. カウンター要素が存在しない場合は「値なし」でエラーにしない
		{
			name:          "missing_counter_element",
			html:          `<html><body><p>No counter here</p></body></html>`,
			expectedValue: 0,
			expectedFound: false,
		},

		// 8. カウンター要素に数値が含まれない場合も「値なし」
		{
			name:          "counter_without_digits",
			html:          `<html><body><div class="wpem-viewed-event">no views yet</div></body></html>`,
			expectedValue: 0,
			expectedFound: false,
		},

		// 9. int に収まらない桁数は「値なし」として扱う
		{
			name:          "overflowing_number",
			html:          `<html><body><div class="wpem-viewed-event">99999999999999999999999999</div></body></html>`,
			expectedValue: 0,
			expectedFound: false,
		},

		// 10. 複数の一致要素がある場合は最初の要素のみ見る
		{
			name:          "first_matching_element_wins",
			html:          `<html><body><div class="wpem-viewed-event">10</div><div class="wpem-viewed-event">20</div></body></html>`,
			expectedValue: 10,
			expectedFound: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// モックのセットアップ
			fetcher := &MockFetcher{
				htmlContent: tc.html,
				fetchError:  tc.fetchErr,
			}

			extractor, err := counter.NewExtractor(fetcher)
			require.NoError(t, err)
			if tc.selector != "" {
				extractor.WithSelector(tc.selector)
			}

			ctx := context.Background()
			value, found, err := extractor.FetchAndExtractCount(ctx, "https://example.com/"+tc.name)

			// 1. エラーチェック
			if tc.expectedError {
				assert.Error(t, err, "エラーが期待されていましたが、エラーがありませんでした")
				return
			}
			assert.NoError(t, err, "予期せぬエラーが発生しました")

			// 2. 検出フラグチェック
			assert.Equal(t, tc.expectedFound, found, "foundが期待値と異なります")

			// 3. 抽出値チェック
			assert.Equal(t, tc.expectedValue, value, "抽出された値が期待値と異なります")
		})
	}
}

func TestWithSelector(t *testing.T) {
	fetcher := &MockFetcher{htmlContent: `<html><body><p class="views">7</p></body></html>`}

	t.Run("custom_selector", func(t *testing.T) {
		extractor, err := counter.NewExtractor(fetcher)
		require.NoError(t, err)

		value, found, err := extractor.WithSelector("p.views").FetchAndExtractCount(context.Background(), "https://example.com")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 7, value)
	})

	t.Run("empty_selector_keeps_default", func(t *testing.T) {
		extractor, err := counter.NewExtractor(fetcher)
		require.NoError(t, err)

		// 既定セレクターのままなので p.views は見つからない
		_, found, err := extractor.WithSelector("").FetchAndExtractCount(context.Background(), "https://example.com")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

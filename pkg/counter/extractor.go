package counter

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultSelector は訪問者カウンター要素の既定のCSSセレクターです。
// WP Event Manager が埋め込む閲覧数ウィジェットを指します。
const DefaultSelector = "div.wpem-viewed-event"

// digitRunPattern は連続する数字の並びにマッチします。
var digitRunPattern = regexp.MustCompile(`\d+`)

// Extractor は、Fetcher を使って訪問者カウンターの抽出プロセスを管理します。
type Extractor struct {
	fetcher  Fetcher
	selector string
	logger   *zap.SugaredLogger
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。
func NewExtractor(fetcher Fetcher) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("counter.NewExtractor: Fetcher cannot be nil")
	}
	return &Extractor{
		fetcher:  fetcher,
		selector: DefaultSelector,
		logger:   zap.NewNop().Sugar(),
	}, nil
}

// WithSelector はカウンター要素のCSSセレクターを設定します。空文字列の場合は無視されます。
func (e *Extractor) WithSelector(selector string) *Extractor {
	if selector != "" {
		e.selector = selector
	}
	return e
}

// WithLogger は構造化ロガーを設定します。
func (e *Extractor) WithLogger(logger *zap.SugaredLogger) *Extractor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// FetchAndExtractCount は指定されたURLからページを取得し、訪問者カウンターの値を抽出します。
// カウンター要素が存在しない、または数値を含まない場合は found=false を返します。
// これはエラーではなく「値なし」の観測として扱われます。
func (e *Extractor) FetchAndExtractCount(ctx context.Context, url string) (value int, found bool, err error) {
	// 1. Fetcherから生のバイト配列を取得 (通信の責務)
	htmlBytes, err := e.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return 0, false, err
	}

	// 2. Extractor内でgoquery.Documentに変換 (解析の責務)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return 0, false, fmt.Errorf("HTML解析に失敗しました: %w", err)
	}

	value, found = e.extractCount(doc)
	return value, found, nil
}

// extractCount はドキュメントからカウンター要素を探し、そのテキストに含まれる最後の数値を取り出します。
func (e *Extractor) extractCount(doc *goquery.Document) (int, bool) {
	sel := doc.Find(e.selector).First()
	if sel.Length() == 0 {
		e.logger.Debugw("カウンター要素が見つかりません", "selector", e.selector)
		return 0, false
	}

	text := nodeText(sel.Nodes[0])
	runs := digitRunPattern.FindAllString(text, -1)
	if len(runs) == 0 {
		e.logger.Debugw("カウンター要素に数値が含まれていません", "selector", e.selector, "text", text)
		return 0, false
	}

	// 最後の数字の並びをカウンター値として採用する
	raw := runs[len(runs)-1]
	value, err := strconv.Atoi(raw)
	if err != nil {
		e.logger.Debugw("カウンター値の変換に失敗しました", "raw", raw, "error", err.Error())
		return 0, false
	}
	return value, true
}

// nodeText は要素配下のテキストノードを空白一つで連結して返します。
// 各テキストノードは前後の空白を除去し、空になったノードは読み飛ばします。
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

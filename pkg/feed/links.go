package feed

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// 汎用抽出のためのインターフェースとアダプター

// LinkSource は、リンクアイテムのリストを提供できる任意の型を表します。
// このインターフェースが抽象化の境界線となります。
type LinkSource interface {
	GetLinks() []string
}

// FeedAdapter は gofeed.Feed を LinkSource に適合させるためのアダプターです。
// gofeed.Feed の具体的な構造への依存を内部に閉じ込めます。
type FeedAdapter struct {
	*gofeed.Feed
}

// NewFeedAdapter は gofeed.Feed から新しいアダプターを作成します。
func NewFeedAdapter(feed *gofeed.Feed) *FeedAdapter {
	return &FeedAdapter{Feed: feed}
}

// GetLinks は LinkSource インターフェースを満たし、gofeed.Feed からリンクを抽出します。
func (a *FeedAdapter) GetLinks() []string {
	// nil またはアイテムがない場合は、すぐに空のスライスを返します。
	if a.Feed == nil || len(a.Items) == 0 {
		return []string{}
	}

	// 抽出ロジック
	urls := make([]string, 0, len(a.Items))
	for _, item := range a.Items {
		// リンクが存在し、空文字列ではないことを確認
		if item.Link != "" {
			urls = append(urls, item.Link)
		}
	}
	return urls
}

// EventLinks はフィード内のイベントページ (/event/ パス) へのリンクのみを返します。
func (a *FeedAdapter) EventLinks() []string {
	return FilterEventLinks(a.GetLinks())
}

// FilterEventLinks はイベントページ (/event/ パス) へのリンクのみを残します。
// URLとして解釈できないリンクは読み飛ばします。
func FilterEventLinks(links []string) []string {
	filtered := make([]string, 0, len(links))
	for _, link := range links {
		if IsEventLink(link) {
			filtered = append(filtered, link)
		}
	}
	return filtered
}

// IsEventLink は、リンクのパスがイベントページ (/event/) を指すかを判定します。
// URLとして解釈できないリンクは false を返します。
func IsEventLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/event/")
}

// DeriveFeedURL はページURLから同一サイトの既定のフィードURL
// (<scheme>://<host>/feed/) を導出します。WordPressサイトの慣習に従います。
func DeriveFeedURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("URLの解析に失敗しました (%s): %w", pageURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("スキームとホストを持つ絶対URLが必要です: %s", pageURL)
	}
	return u.Scheme + "://" + u.Host + "/feed/", nil
}

// 汎用的な抽出関数 (オプション)

// GetAllLinks は LinkSource インターフェースを満たすオブジェクトからリンクを抽出する汎用関数です。
// この関数は LinkSource 実装の詳細を知る必要がありません。
func GetAllLinks(source LinkSource) []string {
	if source == nil {
		return []string{}
	}
	return source.GetLinks()
}

package csvlog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shouni/go-visitor-log/pkg/types"
)

// Writer は観測値を追記専用のCSVログに書き込みます。
// 既存の行を書き換えることはなく、ファイルは単調に成長します。
type Writer struct {
	path   string
	logger *zap.SugaredLogger
}

// NewWriter は、新しいWriterを生成します。
func NewWriter(path string) *Writer {
	return &Writer{
		path:   path,
		logger: zap.NewNop().Sugar(),
	}
}

// WithLogger は構造化ロガーを設定します。
func (w *Writer) WithLogger(logger *zap.SugaredLogger) *Writer {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Path はログファイルのパスを返します。
func (w *Writer) Path() string {
	return w.path
}

// Append は観測値を1行としてCSVログに追記します。
// ファイルが存在しない、または空の場合は先頭にヘッダー行を書き込みます。
// 行データは一度のWriteでまとめて書き込むため、途中で切れた行が残ることはありません。
func (w *Writer) Append(obs types.Observation) error {
	if w.path == "" {
		return fmt.Errorf("CSVログのパスが設定されていません")
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("CSVログのディレクトリ作成に失敗しました (%s): %w", dir, err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("CSVログのオープンに失敗しました (%s): %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("CSVログの状態取得に失敗しました (%s): %w", w.path, err)
	}

	// ヘッダーと行をバッファに組み立ててから書き込む
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if info.Size() == 0 {
		if err := cw.Write(types.CSVHeader); err != nil {
			return fmt.Errorf("CSVヘッダーのエンコードに失敗しました: %w", err)
		}
		w.logger.Debugw("新規CSVログにヘッダーを書き込みます", "path", w.path)
	}

	if err := cw.Write(obs.Record()); err != nil {
		return fmt.Errorf("CSV行のエンコードに失敗しました: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("CSVエンコードに失敗しました: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("CSVログへの書き込みに失敗しました (%s): %w", w.path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("CSVログのクローズに失敗しました (%s): %w", w.path, err)
	}

	w.logger.Debugw("CSVログに行を追記しました", "path", w.path, "record", obs.Record())
	return nil
}

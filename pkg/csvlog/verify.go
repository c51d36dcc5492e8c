package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/go-visitor-log/pkg/types"
)

// VerifyResult はCSVログ検証の集計結果を保持します。
type VerifyResult struct {
	Rows      int       // ヘッダーを除くデータ行数
	BlankRows int       // 値が空の行数
	First     time.Time // 最初の観測時刻 (データ行がある場合)
	Last      time.Time // 最後の観測時刻 (データ行がある場合)
}

// Verify はCSVログがチャート描画側の前提を満たしているかを検証します。
// 検証項目: ヘッダー行、列数、タイムスタンプのRFC3339 UTC (Z表記) 形式と単調非減少、
// 値列が空または非負整数であること、URL列が空でないこと。
// 最初の違反でエラーを返します。
func Verify(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("CSVログのオープンに失敗しました (%s): %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // 列数は行ごとに自前で検証する

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("CSVログが空です (%s)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("CSVヘッダーの読み込みに失敗しました: %w", err)
	}
	if !slices.Equal(header, types.CSVHeader) {
		return nil, fmt.Errorf("CSVヘッダーが不正です: %q (期待: %q)", header, types.CSVHeader)
	}

	result := &VerifyResult{}
	var prev time.Time
	rowNum := 1 // ヘッダー行が1行目

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			return nil, fmt.Errorf("行%dの読み込みに失敗しました: %w", rowNum, err)
		}

		if len(record) != len(types.CSVHeader) {
			return nil, fmt.Errorf("行%dの列数が%dです (期待: %d)", rowNum, len(record), len(types.CSVHeader))
		}

		ts, err := parseUTCTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("行%dのタイムスタンプが不正です: %w", rowNum, err)
		}
		if result.Rows > 0 && ts.Before(prev) {
			return nil, fmt.Errorf("行%dのタイムスタンプが直前の行より過去です (%s < %s)", rowNum, record[0], prev.Format(time.RFC3339))
		}

		if record[1] == "" {
			result.BlankRows++
		} else if _, err := strconv.ParseUint(record[1], 10, 63); err != nil {
			return nil, fmt.Errorf("行%dの値が非負整数ではありません: %q", rowNum, record[1])
		}

		if record[2] == "" {
			return nil, fmt.Errorf("行%dのURL列が空です", rowNum)
		}

		if result.Rows == 0 {
			result.First = ts
		}
		result.Last = ts
		prev = ts
		result.Rows++
	}

	return result, nil
}

// parseUTCTimestamp は Z表記のRFC3339タイムスタンプのみを受理します。
func parseUTCTimestamp(raw string) (time.Time, error) {
	if !strings.HasSuffix(raw, "Z") {
		return time.Time{}, fmt.Errorf("UTC (Z表記) ではありません: %q", raw)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("RFC3339として解釈できません: %q", raw)
	}
	return ts, nil
}

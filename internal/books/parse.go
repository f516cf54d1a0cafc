package books

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin/binding"

	"github.com/yourusername/bookstore-api/internal/storage"
)

var csvColumns = []string{"name", "author", "price"}

// parseImport はファイルの中身から形式を判定し、書籍の行に変換します。
// どれか1行でも不正なら何も返さずエラーにします。
func parseImport(data []byte) ([]storage.BookInput, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newError("INVALID_INPUT", "ファイルが空です。", nil)
	}

	mtype := mimetype.Detect(data)
	var (
		rows []storage.BookInput
		err  error
	)
	switch {
	case mtype.Is("application/json"):
		rows, err = parseJSONRows(data)
	case mtype.Is("text/csv"), mtype.Is("text/plain"):
		rows, err = parseCSVRows(data)
	default:
		return nil, newError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("JSON または CSV ファイルを送ってください（検出された形式: %s）", mtype.String()), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newError("INVALID_INPUT", "取り込む行がありません。", nil)
	}
	return rows, nil
}

func parseJSONRows(data []byte) ([]storage.BookInput, error) {
	var reqs []createBookRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, newError("INVALID_ROW", "JSON は {name, author, price} の配列で指定してください。", err)
	}

	rows := make([]storage.BookInput, 0, len(reqs))
	for i, req := range reqs {
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			return nil, rowError(i+1, "name, author, price は必須です", err)
		}
		rows = append(rows, req.input())
	}
	return rows, nil
}

func parseCSVRows(data []byte) ([]storage.BookInput, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, newError("INVALID_ROW", "CSV のヘッダー行を読み取れません。", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []storage.BookInput
	for line := 1; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rowError(line, "CSV の形式が不正です", err)
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[index["price"]]), 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, rowError(line, "price は数値で指定してください", err)
		}
		rows = append(rows, storage.BookInput{
			Name:   record[index["name"]],
			Author: record[index["author"]],
			Price:  price,
		})
	}
	return rows, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(csvColumns))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, newError("INVALID_ROW",
				fmt.Sprintf("CSV のヘッダーに %s 列がありません（必要な列: %s）", col, strings.Join(csvColumns, ",")), nil)
		}
	}
	return index, nil
}

func rowError(row int, reason string, err error) *Error {
	return newError("INVALID_ROW", fmt.Sprintf("%d 行目: %s", row, reason), err)
}

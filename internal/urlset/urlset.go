// Package urlset は、コマンドライン引数・URLリストファイル・HTMLページから集めた
// 入力を、重複のないダウンロード対象の一覧にまとめます。
package urlset

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/adapter"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/network"
)

// ErrNoURLs は、全ての入力元を合わせてもURLが1件もない場合に返されます。
var ErrNoURLs = errors.New("URLが指定されていません")

// Fetcher は、HTMLページの取得に使用するHTTPセッションです。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*network.Response, error)
}

// Set は重複を取り除いたURLの一覧です。URLは最初に出現した順序で並びます。
type Set struct {
	URLs []string
	// Duplicates は取り除かれた重複の件数です。
	Duplicates int
}

// Len はURLの件数を返します。
func (s Set) Len() int {
	return len(s.URLs)
}

// Dedupe は文字列として完全に一致するURLを1件にまとめます。大文字小文字の正規化は行いません。
func Dedupe(urls []string) Set {
	seen := make(map[string]struct{}, len(urls))
	set := Set{URLs: make([]string, 0, len(urls))}
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			set.Duplicates++
			continue
		}
		seen[u] = struct{}{}
		set.URLs = append(set.URLs, u)
	}
	return set
}

// ReadURLFile は、1行に1つURLが書かれたUTF-8のテキストファイルを読み込みます。
// 前後の空白を取り除いたうえで、空行と '#' で始まる行は無視します。
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("URLファイルを開けませんでした (path=%s): %w", path, err)
	}
	defer f.Close()

	urls, err := ParseURLList(f)
	if err != nil {
		return nil, fmt.Errorf("URLファイルの読み込みに失敗しました (path=%s): %w", path, err)
	}
	return urls, nil
}

// ParseURLList は ReadURLFile と同じ規則で r からURLを読み取ります。先頭のBOMは無視されます。
func ParseURLList(r io.Reader) ([]string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(r, decoder))

	var urls []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

// ScrapePage は、HTMLページを取得して pageAdapter で画像URLを抽出します。
func ScrapePage(ctx context.Context, client Fetcher, pageAdapter adapter.PageAdapter, pageURL string) ([]string, error) {
	resp, err := client.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("ページの取得に失敗しました (url=%s): %w", pageURL, err)
	}
	urls, err := pageAdapter.ExtractImageURLs(resp.Body, resp.ContentType, pageURL)
	if err != nil {
		return nil, fmt.Errorf("ページからの画像URL抽出に失敗しました (url=%s): %w", pageURL, err)
	}
	return urls, nil
}

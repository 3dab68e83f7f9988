// Package adapter は、HTMLページから画像URLを抽出する処理を抽象化するインターフェースと、
// その具体的な実装を提供します。サイトごとの抽出ルールをプラグイン形式で追加できます。
package adapter

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// PageAdapter は、取得済みのHTMLページから画像URLを抽出します。
type PageAdapter interface {
	// ExtractImageURLs は、pageURL を基準に解決した絶対URLを、ページ内の出現順で返します。
	ExtractImageURLs(htmlBody []byte, contentType string, pageURL string) ([]string, error)
}

// NewDocumentFromBytes は、Content-Typeの charset に従ってUTF-8に変換したうえで
// goquery.Document を生成します。charset が指定されていない場合はUTF-8とみなします。
func NewDocumentFromBytes(htmlBody []byte, contentType string) (*goquery.Document, error) {
	decoded, err := decodeBody(htmlBody, charsetOf(contentType))
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(decoded))
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

func decodeBody(b []byte, charset string) ([]byte, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return b, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("未対応の文字コードです (charset=%s): %w", charset, err)
	}
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("文字コード変換に失敗しました (charset=%s): %w", charset, err)
	}
	return decoded, nil
}

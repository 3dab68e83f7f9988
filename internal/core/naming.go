package core

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultExtension は、URLとContent-Typeのどちらからも拡張子を判定できない場合の値です。
const DefaultExtension = ".jpg"

var knownImageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// contentTypeExtensions は判定の優先順に並んでいます。
var contentTypeExtensions = []struct {
	needles []string
	ext     string
}{
	{[]string{"png"}, ".png"},
	{[]string{"jpeg", "jpg"}, ".jpg"},
	{[]string{"gif"}, ".gif"},
	{[]string{"webp"}, ".webp"},
}

// DetectExtension は、保存ファイルの拡張子を決定します。
// URLのパスが既知の画像拡張子で終わる場合はそれを小文字化して使い、
// それ以外はContent-Typeから推測し、どちらも該当しなければ ".jpg" を返します。
func DetectExtension(rawURL, contentType string) string {
	lowerPath := strings.ToLower(urlPath(rawURL))
	for _, suffix := range knownImageSuffixes {
		if strings.HasSuffix(lowerPath, suffix) {
			return path.Ext(lowerPath)
		}
	}

	ct := strings.ToLower(contentType)
	for _, candidate := range contentTypeExtensions {
		for _, needle := range candidate.needles {
			if strings.Contains(ct, needle) {
				return candidate.ext
			}
		}
	}
	return DefaultExtension
}

// urlPath はURLのパス部分を返します。解析できない場合は文字列全体を返します。
func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

// GenerateFileName は、img_YYYYMMDD_HHMMSS_ffffff<ext> 形式のファイル名を生成します。
// 同一マイクロ秒内に生成された名前は衝突します。
func GenerateFileName(t time.Time, ext string) string {
	return fmt.Sprintf("img_%s_%06d%s", t.Format("20060102_150405"), t.Nanosecond()/int(time.Microsecond), ext)
}

// IsImageContentType は、Content-Typeが "image/" で始まるかどうかを判定します。
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

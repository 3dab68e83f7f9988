package urlset

import (
	"context"
	"log"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/adapter"
)

// Builder は、複数の入力元からURLを集めます。入力元ごとの失敗はログに記録され、
// 他の入力元の処理は続行されます。
type Builder struct {
	logger *log.Logger
	urls   []string
	errs   []error
}

// NewBuilder は Builder を返します。logger が nil の場合は標準のロガーを使用します。
func NewBuilder(logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{logger: logger}
}

// AddFile は URLリストファイルの内容を追加します。
func (b *Builder) AddFile(path string) error {
	urls, err := ReadURLFile(path)
	if err != nil {
		b.logger.Printf("ERROR: %v", err)
		b.errs = append(b.errs, err)
		return err
	}
	b.logger.Printf("INFO: %d件のURLを %s から読み込みました", len(urls), path)
	b.urls = append(b.urls, urls...)
	return nil
}

// AddArgs はコマンドライン引数で直接指定されたURLを追加します。
func (b *Builder) AddArgs(args []string) {
	if len(args) == 0 {
		return
	}
	b.logger.Printf("INFO: %d件のURLを引数から追加しました", len(args))
	b.urls = append(b.urls, args...)
}

// AddPages は各HTMLページから抽出した画像URLを追加します。
func (b *Builder) AddPages(ctx context.Context, client Fetcher, pageAdapter adapter.PageAdapter, pages []string) {
	for _, page := range pages {
		urls, err := ScrapePage(ctx, client, pageAdapter, page)
		if err != nil {
			b.logger.Printf("WARNING: %v", err)
			b.errs = append(b.errs, err)
			continue
		}
		b.logger.Printf("INFO: %d件の画像URLを %s から抽出しました", len(urls), page)
		b.urls = append(b.urls, urls...)
	}
}

// Errors は入力元の読み込み中に発生したエラーを返します。
func (b *Builder) Errors() []error {
	return b.errs
}

// Build は集めたURLの重複を取り除いて返します。1件もない場合は ErrNoURLs を返します。
func (b *Builder) Build() (Set, error) {
	if len(b.urls) == 0 {
		return Set{}, ErrNoURLs
	}
	set := Dedupe(b.urls)
	if set.Duplicates > 0 {
		b.logger.Printf("INFO: 重複していた %d件のURLを除外しました", set.Duplicates)
	}
	return set, nil
}

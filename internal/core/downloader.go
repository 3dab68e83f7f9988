// Package core は、imgdownの中核となる並行ダウンロード処理を実装します。
package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/config"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/model"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/network"
)

// ErrInvalidConcurrency は、同時ダウンロード数が1未満の場合に返されます。
var ErrInvalidConcurrency = errors.New("同時ダウンロード数は1以上である必要があります")

// progressInterval は、進捗ログを出力する最短間隔です。
const progressInterval = 2 * time.Second

// Fetcher は、単一URLのGETを行うHTTPセッションです。
// *network.Client が実装します。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*network.Response, error)
}

// Options は Downloader の動作を調整します。ゼロ値のフィールドには既定値が使われます。
type Options struct {
	// Concurrency は同時ダウンロード数の上限です。0 は config.DefaultConcurrency を意味し、
	// 負の値は ErrInvalidConcurrency になります。
	Concurrency int
	Network     config.NetworkSettings
	// Clock はファイル名のタイムスタンプに使われます。既定は time.Now です。
	Clock  func() time.Time
	Logger *log.Logger
	// OnOutcome は各URLの処理が完了するたびに、トークンを保持したままそのgoroutine上で呼ばれます。
	OnOutcome func(model.DownloadOutcome)
	// Verbose が true の場合、各URLの状態遷移をログに出力します。
	Verbose bool
}

// Downloader は、URLの集合を上限付きの並行数でダウンロードし、保存先ディレクトリに書き込みます。
type Downloader struct {
	dir         string
	concurrency int
	network     config.NetworkSettings
	clock       func() time.Time
	logger      *log.Logger
	onOutcome   func(model.DownloadOutcome)
	verbose     bool
}

// NewDownloader は保存先ディレクトリを解決・作成し、Downloader を返します。
// dir が空の場合はホームディレクトリ配下の既定の保存先を使用します。
func NewDownloader(dir string, opts Options) (*Downloader, error) {
	if opts.Concurrency == 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("%w (値=%d)", ErrInvalidConcurrency, opts.Concurrency)
	}

	if dir == "" {
		defaultDir, err := config.DefaultOutputDirectory()
		if err != nil {
			return nil, fmt.Errorf("既定の保存先の解決に失敗しました: %w", err)
		}
		dir = defaultDir
	}
	if err := ensureDirectory(dir); err != nil {
		return nil, err
	}

	d := &Downloader{
		dir:         dir,
		concurrency: opts.Concurrency,
		network:     opts.Network,
		clock:       opts.Clock,
		logger:      opts.Logger,
		onOutcome:   opts.OnOutcome,
		verbose:     opts.Verbose,
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	return d, nil
}

// Directory は保存先ディレクトリのパスを返します。
func (d *Downloader) Directory() string {
	return d.dir
}

// Concurrency は同時ダウンロード数の上限を返します。
func (d *Downloader) Concurrency() int {
	return d.concurrency
}

// DownloadAll は全てのURLを並行にダウンロードし、入力と同じ順序で結果を返します。
// 同時に処理されるURLは Concurrency 個を超えません。個々のURLの失敗は結果に記録され、
// 他のURLの処理を中断することはありません。
// エラーを返すのは、全URLで共有する準備処理に失敗した場合のみです。
func (d *Downloader) DownloadAll(ctx context.Context, urls []string) ([]model.DownloadOutcome, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	// 実行中に削除された場合に備え、ディスパッチ前に再度確認する
	if err := ensureDirectory(d.dir); err != nil {
		return nil, err
	}

	client, err := network.NewClient(d.network)
	if err != nil {
		return nil, fmt.Errorf("ネットワーククライアントの初期化に失敗しました: %w", err)
	}
	defer client.Close()

	d.logger.Printf("INFO: %d件のダウンロードを開始します (同時実行数=%d, 保存先=%s)", len(urls), d.concurrency, d.dir)

	outcomes := make([]model.DownloadOutcome, len(urls))
	tokens := semaphore.NewWeighted(int64(d.concurrency))
	progress := rate.Sometimes{Interval: progressInterval}
	var completed atomic.Int64
	var group errgroup.Group

	for i, u := range urls {
		i, u := i, u
		group.Go(func() error {
			outcomes[i] = d.runUnit(ctx, tokens, client, u)

			n := completed.Add(1)
			progress.Do(func() {
				d.logger.Printf("INFO: 進捗 %d/%d", n, len(urls))
			})
			return nil
		})
	}
	// 各goroutineはエラーを返さない
	_ = group.Wait()

	d.logger.Printf("INFO: 全%d件の処理が完了しました。", completed.Load())
	return outcomes, nil
}

// runUnit はトークンを取得してから1件のURLを処理します。
// トークンを取得できなかった場合も結果は NetworkError として報告されます。
func (d *Downloader) runUnit(ctx context.Context, tokens *semaphore.Weighted, client Fetcher, rawURL string) model.DownloadOutcome {
	if err := tokens.Acquire(ctx, 1); err != nil {
		outcome := model.NetworkError(rawURL, err.Error())
		d.report(outcome)
		return outcome
	}
	defer tokens.Release(1)

	outcome := d.FetchAndSave(ctx, client, rawURL)
	d.report(outcome)
	return outcome
}

func (d *Downloader) report(outcome model.DownloadOutcome) {
	if d.onOutcome != nil {
		d.onOutcome(outcome)
	}
}

// FetchAndSave は単一のURLを取得し、画像であれば保存先に書き込みます。
// 発生した全ての失敗は戻り値の DownloadOutcome に変換され、panicも含めて呼び出し元へは伝播しません。
func (d *Downloader) FetchAndSave(ctx context.Context, client Fetcher, rawURL string) (outcome model.DownloadOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("ERROR: 処理中に予期せぬエラーが発生しました (url=%s): %v", rawURL, r)
			outcome = model.NetworkError(rawURL, fmt.Sprintf("予期せぬエラー: %v", r))
		}
		d.trace(rawURL, model.StateDone)
	}()

	d.trace(rawURL, model.StateRequesting)
	resp, err := client.Fetch(ctx, rawURL)
	if err != nil {
		var httpErr *network.HTTPError
		if errors.As(err, &httpErr) {
			return model.HTTPError(rawURL, httpErr.StatusCode)
		}
		return model.NetworkError(rawURL, err.Error())
	}

	d.trace(rawURL, model.StateValidating)
	if !IsImageContentType(resp.ContentType) {
		return model.RejectedNotImage(rawURL)
	}

	d.trace(rawURL, model.StateSaving)
	filename := GenerateFileName(d.clock(), DetectExtension(rawURL, resp.ContentType))
	if err := writeFileAtomic(filepath.Join(d.dir, filename), resp.Body); err != nil {
		return model.NetworkError(rawURL, err.Error())
	}

	return model.Success(rawURL, filename, int64(len(resp.Body)))
}

func (d *Downloader) trace(rawURL string, state model.UnitState) {
	if d.verbose {
		d.logger.Printf("DEBUG: %s -> %s", rawURL, state)
	}
}

func ensureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗しました (path=%s): %w", dir, err)
	}
	return nil
}

// writeFileAtomic は、同じディレクトリの一時ファイルに書き込んでから名前を変更します。
// 失敗した場合、一時ファイルは残りません。
func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".imgdown-*.part")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました (dir=%s): %w", filepath.Dir(dest), err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ファイルの書き込みに失敗しました (path=%s, size=%d bytes): %w", dest, len(data), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ファイルのクローズに失敗しました (path=%s): %w", dest, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ファイル権限の設定に失敗しました (path=%s): %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ファイルの配置に失敗しました (path=%s): %w", dest, err)
	}
	return nil
}

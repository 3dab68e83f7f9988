package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/adapter"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/config"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/core"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/model"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/network"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/report"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/urlset"
)

// stringList は繰り返し指定できるフラグの値です。
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// options はコマンドラインフラグの解析結果です。
type options struct {
	file       string
	output     string
	concurrent int
	pages      stringList
	configFile string
	timeout    time.Duration
	logFile    string
	strict     bool
	verbose    bool
	urls       []string

	// concurrentSet は -c/--concurrent が明示的に指定された場合に true になります。
	concurrentSet bool
}

func newFlagSet(stderr io.Writer, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("imgdown", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.file, "f", "", "URLを1行ずつ記述したファイル")
	fs.StringVar(&opts.file, "file", "", "URLを1行ずつ記述したファイル")
	fs.StringVar(&opts.output, "o", "", "保存先ディレクトリ (既定: ~/Pictures/imgdown_downloads)")
	fs.StringVar(&opts.output, "output", "", "保存先ディレクトリ (既定: ~/Pictures/imgdown_downloads)")
	fs.IntVar(&opts.concurrent, "c", 0, fmt.Sprintf("同時ダウンロード数 (既定: %d)", config.DefaultConcurrency))
	fs.IntVar(&opts.concurrent, "concurrent", 0, fmt.Sprintf("同時ダウンロード数 (既定: %d)", config.DefaultConcurrency))
	fs.Var(&opts.pages, "p", "画像を抽出するHTMLページのURL (複数指定可)")
	fs.Var(&opts.pages, "page", "画像を抽出するHTMLページのURL (複数指定可)")
	fs.StringVar(&opts.configFile, "config", "", "設定ファイルのパス")
	fs.DurationVar(&opts.timeout, "timeout", 0, "リクエストごとのタイムアウト (既定: なし)")
	fs.StringVar(&opts.logFile, "log-file", "", "ログを追記するファイル")
	fs.BoolVar(&opts.strict, "strict", false, "失敗が1件でもあれば終了コード1で終了します")
	fs.BoolVar(&opts.verbose, "v", false, "各URLの状態遷移をログに出力します")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "使い方: imgdown [オプション] [URL...]")
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs はフラグと位置引数が混在していても全てのフラグを解析します。
func parseArgs(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := newFlagSet(stderr, opts)
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fs, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		opts.urls = append(opts.urls, rest[0])
		args = rest[1:]
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "c" || f.Name == "concurrent" {
			opts.concurrentSet = true
		}
	})
	return opts, fs, nil
}

// main関数はimgdownのエントリーポイントです。
func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := log.New(stderr, fmt.Sprintf("[imgdown %s] ", uuid.NewString()[:8]), log.LstdFlags)

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Printf("ERROR: %v", err)
		return 1
	}

	if closeLog, err := setupLogFile(logger, stderr, cfg); err != nil {
		logger.Printf("WARNING: ログファイルを開けませんでした: %v", err)
	} else {
		defer closeLog()
	}

	// --- URLの収集 ---
	builder := urlset.NewBuilder(logger)
	if opts.file != "" {
		// 読み込めなかった場合も、他の入力元にURLがあれば続行する
		_ = builder.AddFile(opts.file)
	}
	builder.AddArgs(opts.urls)
	if len(opts.pages) > 0 {
		if err := addPages(ctx, builder, cfg, opts.pages); err != nil {
			logger.Printf("ERROR: %v", err)
			return 1
		}
	}

	set, err := builder.Build()
	if err != nil {
		fmt.Fprintln(stderr, "❌ "+err.Error())
		fs.Usage()
		if opts.strict {
			return 1
		}
		return 0
	}

	// --- ダウンロード ---
	downloader, err := core.NewDownloader(cfg.OutputDirectory, core.Options{
		Concurrency: cfg.MaxConcurrentDownloads,
		Network:     cfg.Network,
		Logger:      logger,
		Verbose:     opts.verbose,
		OnOutcome: func(o model.DownloadOutcome) {
			if !o.OK() {
				logger.Printf("WARNING: %s (%s)", o.Reason(), o.URL)
			}
		},
	})
	if err != nil {
		logger.Printf("ERROR: %v", err)
		return 1
	}

	printer := report.NewPrinter(stdout)
	printer.Header(set.Len(), downloader.Directory())

	start := time.Now()
	outcomes, err := downloader.DownloadAll(ctx, set.URLs)
	if err != nil {
		logger.Printf("ERROR: %v", err)
		return 1
	}

	printer.Outcomes(outcomes)
	stats := core.Summarize(outcomes, time.Since(start))
	printer.Summary(stats)

	if opts.strict && stats.Failed() > 0 {
		return 1
	}
	return 0
}

// loadConfig は設定ファイル(指定された場合)を読み込み、コマンドラインフラグで上書きします。
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.LoadAndResolve(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.output != "" {
		cfg.OutputDirectory = opts.output
	}
	if opts.concurrentSet {
		if opts.concurrent < 1 {
			return nil, fmt.Errorf("%w (値=%d)", core.ErrInvalidConcurrency, opts.concurrent)
		}
		cfg.MaxConcurrentDownloads = opts.concurrent
	}
	if opts.timeout > 0 {
		cfg.Network.RequestTimeoutMillis = int(opts.timeout.Milliseconds())
	}
	if opts.logFile != "" {
		cfg.EnableLogFile = true
		cfg.LogFilePath = opts.logFile
	}
	return cfg, nil
}

func addPages(ctx context.Context, builder *urlset.Builder, cfg *config.Config, pages []string) error {
	pageAdapter, err := adapter.GetAdapter(cfg.PageAdapter)
	if err != nil {
		return fmt.Errorf("ページアダプタの取得に失敗しました: %w", err)
	}
	client, err := network.NewClient(cfg.Network)
	if err != nil {
		return fmt.Errorf("ネットワーククライアントの初期化に失敗しました: %w", err)
	}
	defer client.Close()

	builder.AddPages(ctx, client, pageAdapter, pages)
	return nil
}

// setupLogFile は、設定に従ってログを標準エラー出力とファイルの両方に出力するようにします。
// 返された関数でファイルを閉じます。
func setupLogFile(logger *log.Logger, stderr io.Writer, cfg *config.Config) (func(), error) {
	if !cfg.EnableLogFile {
		return func() {}, nil
	}

	path := cfg.LogFilePath
	if path == "" {
		// デフォルトは日付形式
		today := time.Now().Format("2006-01-02")
		path = fmt.Sprintf("imgdown_%s.log", today)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	logger.SetOutput(io.MultiWriter(stderr, f))
	logger.Printf("INFO: ログ出力をファイル '%s' に開始しました", path)
	return func() {
		logger.SetOutput(stderr)
		f.Close()
	}, nil
}

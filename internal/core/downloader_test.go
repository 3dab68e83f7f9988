package core

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/config"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/model"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/network"
)

var pngBody = []byte("\x89PNG\r\n\x1a\nfake")

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody)
	})
	mux.HandleFunc("/b.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody)
	})
	mux.HandleFunc("/photo.JPG", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		w.Write([]byte("GIF89a"))
	})
	mux.HandleFunc("/noext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png; charset=binary")
		w.Write(pngBody)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestDownloader(t *testing.T, opts Options) *Downloader {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	d, err := NewDownloader(t.TempDir(), opts)
	require.NoError(t, err)
	return d
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type fetcherFunc func(ctx context.Context, url string) (*network.Response, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (*network.Response, error) {
	return f(ctx, url)
}

func TestDownloadAll_OutcomePerURLInInputOrder(t *testing.T) {
	// Arrange
	server := newImageServer(t)
	d := newTestDownloader(t, Options{Concurrency: 2})
	urls := []string{
		server.URL + "/a.png",
		server.URL + "/missing.png",
		server.URL + "/page",
		server.URL + "/noext",
		server.URL + "/photo.JPG",
	}

	// Act
	outcomes, err := d.DownloadAll(context.Background(), urls)

	// Assert
	require.NoError(t, err)
	require.Len(t, outcomes, len(urls))
	for i, o := range outcomes {
		require.Equal(t, urls[i], o.URL)
	}

	require.Equal(t, model.StatusSuccess, outcomes[0].Status)
	require.Equal(t, ".png", filepath.Ext(outcomes[0].SavedFilename))
	require.Equal(t, int64(len(pngBody)), outcomes[0].BytesWritten)

	require.Equal(t, model.HTTPError(urls[1], http.StatusNotFound), outcomes[1])
	require.Equal(t, model.RejectedNotImage(urls[2]), outcomes[2])

	require.Equal(t, model.StatusSuccess, outcomes[3].Status)
	require.Equal(t, ".png", filepath.Ext(outcomes[3].SavedFilename))

	require.Equal(t, model.StatusSuccess, outcomes[4].Status)
	require.Equal(t, ".jpg", filepath.Ext(outcomes[4].SavedFilename))

	saved, err := os.ReadFile(filepath.Join(d.Directory(), outcomes[0].SavedFilename))
	require.NoError(t, err)
	require.Equal(t, pngBody, saved)
}

func TestDownloadAll_NeverExceedsConcurrencyLimit(t *testing.T) {
	const total = 20
	const limit = 3

	// リクエスト受信から結果の報告(保存完了後)までを実行中として数える
	var inFlight, maxInFlight atomic.Int32
	track := func() {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				return
			}
		}
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		track()
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("JPEG"))
	}))
	defer server.Close()

	d := newTestDownloader(t, Options{
		Concurrency: limit,
		// ファイル名の生成は保存フェーズ中に行われる
		Clock: func() time.Time {
			time.Sleep(20 * time.Millisecond)
			return time.Now()
		},
		OnOutcome: func(model.DownloadOutcome) { inFlight.Add(-1) },
	})
	urls := make([]string, total)
	for i := range urls {
		urls[i] = server.URL + "/img/" + string(rune('a'+i))
	}

	outcomes, err := d.DownloadAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, outcomes, total)
	for _, o := range outcomes {
		require.True(t, o.OK(), "失敗した結果があります: %+v", o)
	}
	require.Zero(t, inFlight.Load())
	require.LessOrEqual(t, maxInFlight.Load(), int32(limit))
	require.GreaterOrEqual(t, maxInFlight.Load(), int32(2), "並行に処理されていません")
}

func TestDownloadAll_CancelledContextCountsEveryUnit(t *testing.T) {
	const total = 5
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBody)
	}))
	defer server.Close()

	var buf syncBuffer
	var reported atomic.Int32
	d := newTestDownloader(t, Options{
		Concurrency: 1,
		Logger:      log.New(&buf, "", 0),
		OnOutcome:   func(model.DownloadOutcome) { reported.Add(1) },
	})
	urls := make([]string, total)
	for i := range urls {
		urls[i] = server.URL + "/img/" + string(rune('a'+i))
	}

	outcomes, err := d.DownloadAll(ctx, urls)

	require.NoError(t, err)
	require.Len(t, outcomes, total)
	for i, o := range outcomes {
		require.Equal(t, urls[i], o.URL)
		if !o.OK() {
			require.Equal(t, model.StatusNetworkError, o.Status)
		}
	}
	require.Equal(t, int32(total), reported.Load())
	require.Contains(t, buf.String(), "全5件の処理が完了しました")
}

func TestDownloadAll_FailuresAreIsolated(t *testing.T) {
	server := newImageServer(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL + "/x.png"
	dead.Close()

	d := newTestDownloader(t, Options{Concurrency: 1})
	outcomes, err := d.DownloadAll(context.Background(), []string{deadURL, server.URL + "/a.png"})

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, model.StatusNetworkError, outcomes[0].Status)
	require.NotEmpty(t, outcomes[0].Message)
	require.Empty(t, outcomes[0].SavedFilename)
	require.True(t, outcomes[1].OK())
}

func TestDownloadAll_NoFileForRejectedResponses(t *testing.T) {
	server := newImageServer(t)
	d := newTestDownloader(t, Options{})

	outcomes, err := d.DownloadAll(context.Background(), []string{
		server.URL + "/missing.png",
		server.URL + "/page",
	})

	require.NoError(t, err)
	require.Equal(t, model.HTTPError(server.URL+"/missing.png", 404), outcomes[0])
	require.Equal(t, model.StatusRejectedNotImage, outcomes[1].Status)
	require.Empty(t, listDir(t, d.Directory()), "失敗したダウンロードのファイルが残っています")
}

func TestDownloadAll_SameMicrosecondCollides(t *testing.T) {
	// 同一マイクロ秒に完了した場合は同じファイル名になり、後から書いた方で上書きされる
	server := newImageServer(t)
	fixed := time.Date(2024, time.January, 2, 3, 4, 5, 6000, time.Local)
	d := newTestDownloader(t, Options{Clock: func() time.Time { return fixed }})

	outcomes, err := d.DownloadAll(context.Background(), []string{server.URL + "/a.png", server.URL + "/b.png"})

	require.NoError(t, err)
	require.True(t, outcomes[0].OK())
	require.True(t, outcomes[1].OK())
	require.Equal(t, "img_20240102_030405_000006.png", outcomes[0].SavedFilename)
	require.Equal(t, outcomes[0].SavedFilename, outcomes[1].SavedFilename)
	require.Equal(t, []string{"img_20240102_030405_000006.png"}, listDir(t, d.Directory()))
}

func TestDownloadAll_OnOutcomeCalledOncePerURL(t *testing.T) {
	server := newImageServer(t)

	var mu sync.Mutex
	seen := map[string]int{}
	d := newTestDownloader(t, Options{
		Concurrency: 4,
		OnOutcome: func(o model.DownloadOutcome) {
			mu.Lock()
			defer mu.Unlock()
			seen[o.URL]++
		},
	})

	urls := []string{server.URL + "/a.png", server.URL + "/page", server.URL + "/missing.png"}
	_, err := d.DownloadAll(context.Background(), urls)
	require.NoError(t, err)

	require.Len(t, seen, len(urls))
	for _, u := range urls {
		require.Equal(t, 1, seen[u])
	}
}

func TestDownloadAll_EmptyInput(t *testing.T) {
	d := newTestDownloader(t, Options{})
	outcomes, err := d.DownloadAll(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestNewDownloader_DirectoryIsIdempotent(t *testing.T) {
	server := newImageServer(t)
	dir := filepath.Join(t.TempDir(), "nested", "images")

	for i := 0; i < 2; i++ {
		d, err := NewDownloader(dir, Options{Logger: discardLogger()})
		require.NoError(t, err)
		outcomes, err := d.DownloadAll(context.Background(), []string{server.URL + "/a.png"})
		require.NoError(t, err)
		require.True(t, outcomes[0].OK())
	}

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewDownloader_Defaults(t *testing.T) {
	d := newTestDownloader(t, Options{})
	require.Equal(t, 5, d.Concurrency())
}

func TestNewDownloader_ZeroConcurrencyUsesDefault(t *testing.T) {
	d := newTestDownloader(t, Options{Concurrency: 0})
	require.Equal(t, config.DefaultConcurrency, d.Concurrency())
}

func TestNewDownloader_InvalidConcurrency(t *testing.T) {
	_, err := NewDownloader(t.TempDir(), Options{Concurrency: -1})
	require.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestNewDownloader_DirectoryCreationFailure(t *testing.T) {
	// 通常ファイルの下にはディレクトリを作成できない
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := NewDownloader(filepath.Join(file, "sub"), Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "保存先ディレクトリの作成に失敗しました")
}

func TestFetchAndSave_PanicBecomesNetworkError(t *testing.T) {
	d := newTestDownloader(t, Options{})
	client := fetcherFunc(func(ctx context.Context, url string) (*network.Response, error) {
		panic("boom")
	})

	outcome := d.FetchAndSave(context.Background(), client, "https://example.com/a.png")

	require.Equal(t, model.StatusNetworkError, outcome.Status)
	require.Contains(t, outcome.Message, "boom")
}

func TestFetchAndSave_WriteFailureLeavesNoFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d, err := NewDownloader(dir, Options{Logger: discardLogger()})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	client := fetcherFunc(func(ctx context.Context, url string) (*network.Response, error) {
		return &network.Response{URL: url, ContentType: "image/png", Body: pngBody}, nil
	})
	outcome := d.FetchAndSave(context.Background(), client, "https://example.com/a.png")

	require.Equal(t, model.StatusNetworkError, outcome.Status)
	require.Empty(t, outcome.SavedFilename)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestFetchAndSave_VerboseTracesStates(t *testing.T) {
	var buf syncBuffer
	d := newTestDownloader(t, Options{Verbose: true, Logger: log.New(&buf, "", 0)})
	client := fetcherFunc(func(ctx context.Context, url string) (*network.Response, error) {
		return &network.Response{URL: url, ContentType: "image/webp", Body: []byte("RIFF")}, nil
	})

	outcome := d.FetchAndSave(context.Background(), client, "https://example.com/pic")
	require.True(t, outcome.OK())
	require.Equal(t, ".webp", filepath.Ext(outcome.SavedFilename))

	logged := buf.String()
	for _, state := range []model.UnitState{model.StateRequesting, model.StateValidating, model.StateSaving, model.StateDone} {
		require.Contains(t, logged, "-> "+state.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

package core

import (
	"fmt"
	"time"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/model"
)

// BatchStats は一回の DownloadAll の集計結果です。
type BatchStats struct {
	Total             int
	Succeeded         int
	NotImage          int
	HTTPErrors        int
	NetworkErrors     int
	TotalBytesWritten int64
	Elapsed           time.Duration
}

// Summarize は結果の一覧を集計します。
func Summarize(outcomes []model.DownloadOutcome, elapsed time.Duration) BatchStats {
	stats := BatchStats{Total: len(outcomes), Elapsed: elapsed}
	for _, o := range outcomes {
		switch o.Status {
		case model.StatusSuccess:
			stats.Succeeded++
			stats.TotalBytesWritten += o.BytesWritten
		case model.StatusRejectedNotImage:
			stats.NotImage++
		case model.StatusHTTPError:
			stats.HTTPErrors++
		case model.StatusNetworkError:
			stats.NetworkErrors++
		}
	}
	return stats
}

// Failed は成功以外の件数を返します。
func (s BatchStats) Failed() int {
	return s.Total - s.Succeeded
}

// FormatSummary は集計結果を一行の文字列にフォーマットします。
func (s BatchStats) FormatSummary() string {
	// サイズをMB単位に変換
	sizeMB := float64(s.TotalBytesWritten) / (1024 * 1024)

	return fmt.Sprintf("成功: %d/%d | 画像以外: %d | HTTPエラー: %d | 通信エラー: %d | %.1fMB | %s",
		s.Succeeded, s.Total, s.NotImage, s.HTTPErrors, s.NetworkErrors, sizeMB, s.Elapsed.Round(time.Millisecond))
}

// Package report は、ダウンロード結果を人間可読な形式で出力します。
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/joao-pedro-farias/image-downloader-cli/internal/core"
	"github.com/joao-pedro-farias/image-downloader-cli/internal/model"
)

// Printer は結果の一覧と集計を出力します。出力先が端末の場合のみ色が付きます。
// 複数のgoroutineから同時に呼び出せます。
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
	title   lipgloss.Style
}

// NewPrinter は w に出力する Printer を返します。
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		out:     w,
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		title:   r.NewStyle().Bold(true),
	}
}

// Header はダウンロード開始前の見出しを出力します。
func (p *Printer) Header(count int, dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.title.Render(fmt.Sprintf("📥 %d件の画像をダウンロードします...", count)))
	fmt.Fprintln(p.out, p.muted.Render("📁 保存先: "+dir))
	fmt.Fprintln(p.out, p.muted.Render(strings.Repeat("-", 50)))
}

// Outcome は1件の結果を1行で出力します。
func (p *Printer) Outcome(o model.DownloadOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.formatOutcome(o))
}

// Outcomes は結果を与えられた順に出力します。
func (p *Printer) Outcomes(outcomes []model.DownloadOutcome) {
	for _, o := range outcomes {
		p.Outcome(o)
	}
}

func (p *Printer) formatOutcome(o model.DownloadOutcome) string {
	switch o.Status {
	case model.StatusSuccess:
		return p.success.Render("✅ " + o.SavedFilename)
	case model.StatusRejectedNotImage:
		return p.failure.Render("❌ 画像ではありません: " + o.URL)
	case model.StatusHTTPError:
		return p.failure.Render(fmt.Sprintf("❌ HTTP %d: %s", o.StatusCode, o.URL))
	default:
		return p.failure.Render(fmt.Sprintf("❌ エラー: %s - %s", o.URL, o.Message))
	}
}

// Summary は集計結果を出力します。
func (p *Printer) Summary(stats core.BatchStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	style := p.success
	if stats.Failed() > 0 {
		style = p.failure
	}
	fmt.Fprintln(p.out, p.title.Render("🎉 ダウンロードが完了しました!"))
	fmt.Fprintln(p.out, style.Render(stats.FormatSummary()))
}

package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	pdfTimeout      = 30 * time.Second
	maxFilenameSize = 60
)

// Manuscripts are submitted on A4 with one inch margins.
const (
	a4WidthIn   = 8.27
	a4HeightIn  = 11.69
	pdfMarginIn = 1.0
)

var browserCandidates = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

const pageFooter = `<div style="width:100%;font-size:9px;text-align:center;color:#666;">` +
	`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`

// findBrowser returns the first Chrome-compatible binary on PATH.
func findBrowser() (string, error) {
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no chromium or chrome binary on PATH", ErrPDFDependencyMissing)
}

// exportPDF prints the standalone HTML page through headless Chrome. The page
// is loaded with SetDocumentContent so size is not bounded by URL limits.
func exportPDF(parent context.Context, html, title string) (*Result, error) {
	browser, err := findBrowser()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browser),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var pdf []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4WidthIn).
				WithPaperHeight(a4HeightIn).
				WithMarginTop(pdfMarginIn).
				WithMarginBottom(pdfMarginIn).
				WithMarginLeft(pdfMarginIn).
				WithMarginRight(pdfMarginIn).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<span></span>").
				WithFooterTemplate(pageFooter).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

// sanitizeFilename keeps ASCII letters, digits and underscores, turns runs
// of spaces and hyphens into one hyphen and drops everything else.
func sanitizeFilename(title string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == ' ', r == '-', r == '\t':
			pendingHyphen = true
		}
		if b.Len() >= maxFilenameSize {
			break
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if len(name) > maxFilenameSize {
		name = strings.TrimRight(name[:maxFilenameSize], "-")
	}
	if name == "" {
		return "draft"
	}
	return name
}

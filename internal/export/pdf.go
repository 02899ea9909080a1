package export

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

// chromeBinaries are tried in order; distro packages use either name.
var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome"}

var lookPath = exec.LookPath

// reportPaper is A4 with 0.75in margins. Backgrounds are printed so the
// progress bar and scan blocks keep their fill.
var reportPaper = page.PrintToPDF().
	WithPrintBackground(true).
	WithPaperWidth(8.27).
	WithPaperHeight(11.69).
	WithMarginTop(0.75).
	WithMarginBottom(0.75).
	WithMarginLeft(0.75).
	WithMarginRight(0.75).
	WithPreferCSSPageSize(true)

func chromeBinary() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// exportPDF prints a rendered target report with headless Chrome. The HTML
// is set as the document of a blank page; report size is not bound by any
// URL length limit.
func exportPDF(parent context.Context, html string, name string) (*Result, error) {
	binary, err := chromeBinary()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(binary),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var data []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := reportPaper.Do(ctx)
			data = buf
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print report %s: %w", name, err)
	}

	return &Result{
		Data:     data,
		Filename: name + ".pdf",
		MimeType: "application/pdf",
		Format:   FormatPDF,
	}, nil
}

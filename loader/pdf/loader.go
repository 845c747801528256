package pdf

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/loader"
)

type pdfLoader struct {
	options loader.Options
}

func (l *pdfLoader) Load(ctx context.Context, name string, r io.ReaderAt, size int64) (pages []loader.Page, err error) {
	if r == nil || size <= 0 {
		return nil, errs.Load("%s is empty", name)
	}

	if l.options.MaxBytes > 0 && size > l.options.MaxBytes {
		return nil, errs.Load("%s is %d bytes, limit is %d", name, size, l.options.MaxBytes)
	}

	// the parser panics on some malformed xref tables
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = errs.Load("%s is not a readable pdf: %v", name, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, errs.Load("%s is not a readable pdf: %v", name, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errs.Load("%s has no pages", name)
	}

	pages = make([]loader.Page, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, loader.Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, errs.Load("%s page %d: %v", name, i, err)
		}

		pages = append(pages, loader.Page{
			Number: i,
			Text:   normalize(text),
		})
	}

	slog.DebugContext(ctx, "loaded pdf", "name", name, "pages", len(pages))

	return pages, nil
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

func NewLoader(opts ...loader.Option) loader.Loader {
	options := loader.NewOptions(opts...)

	return &pdfLoader{
		options: options,
	}
}

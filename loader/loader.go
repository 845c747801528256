package loader

import (
	"context"
	"io"
)

type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

type Loader interface {
	Load(ctx context.Context, name string, r io.ReaderAt, size int64) ([]Page, error)
}

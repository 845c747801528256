package server

import (
	"context"
	"net/http"
)

type Server interface {
	Options() Options
	Handle(h http.Handler)
	Start() error
	Stop(ctx context.Context) error
	Addr() string
}

package warehouse

import (
	"context"

	"github.com/tranthanhvu011/DTWH/internal/database"
)

// Session binds a loader and its source to one open warehouse connection
type Session struct {
	gdb    *database.GormDB
	loader *Loader
	source Source
}

func NewSession(gdb *database.GormDB, loader *Loader, source Source) *Session {
	return &Session{gdb: gdb, loader: loader, source: source}
}

func (s *Session) Ping(ctx context.Context) error {
	return s.gdb.Ping(ctx)
}

func (s *Session) Load(ctx context.Context) (*Summary, error) {
	return s.loader.Load(ctx, s.source)
}

func (s *Session) Close() error {
	return s.gdb.Close()
}

package staging

import (
	"context"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/database"
	"github.com/tranthanhvu011/DTWH/internal/logger"
	"github.com/tranthanhvu011/DTWH/internal/models"
)

// SessionSource reads the staged batch over a connection opened for the read
// and closed right after.
type SessionSource struct {
	cfg config.DatabaseConfig
	log *logger.Logger
}

func NewSessionSource(cfg config.DatabaseConfig, log *logger.Logger) *SessionSource {
	return &SessionSource{cfg: cfg, log: log}
}

func (s *SessionSource) StagedProducts(ctx context.Context) ([]models.StagedProduct, error) {
	var staged []models.StagedProduct
	err := database.WithSession(ctx, s.cfg, s.log, func(gdb *database.GormDB) error {
		var err error
		staged, err = NewStore(gdb.DB()).StagedProducts(ctx)
		return err
	})
	return staged, err
}

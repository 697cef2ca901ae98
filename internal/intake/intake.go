// Package intake adapts the upload channels (barcode scans, manual forms,
// receipt photos and CSV files) to the engine's add operations.
package intake

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/angelmondragon/receiptflow/internal/engine"
	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/pkg/config"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"go.uber.org/multierr"
)

// ServiceParams wires an intake Service.
type ServiceParams struct {
	Engine *engine.Engine
	Config config.EngineConfig
	Logger *logger.Logger
	// IntN returns a random integer in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

// Service feeds validated receipt drafts into the engine. Every method
// records its upload channel before touching the ledger or queue.
type Service struct {
	engine *engine.Engine
	cfg    config.EngineConfig
	logg   *logger.Logger
	intN   func(n int) int
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if p.Config.CSVMinGroups <= 0 || p.Config.CSVMinGroups > p.Config.CSVMaxGroups {
		return nil, fmt.Errorf("invalid csv group bounds %d..%d", p.Config.CSVMinGroups, p.Config.CSVMaxGroups)
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	intN := p.IntN
	if intN == nil {
		intN = rand.IntN
	}
	return &Service{
		engine: p.Engine,
		cfg:    p.Config,
		logg:   logg,
		intN:   intN,
	}, nil
}

// Barcode adds one scanned product.
func (s *Service) Barcode(ctx context.Context, d receipts.Draft) (engine.AddSingleResult, error) {
	return s.single(ctx, enums.UploadChannelBarcode, d)
}

// Form adds one manually entered product.
func (s *Service) Form(ctx context.Context, d receipts.Draft) (engine.AddSingleResult, error) {
	return s.single(ctx, enums.UploadChannelFormFilling, d)
}

func (s *Service) single(ctx context.Context, ch enums.UploadChannel, d receipts.Draft) (engine.AddSingleResult, error) {
	s.engine.SetChannel(ctx, ch)
	checked, err := checkDraft(d)
	if err != nil {
		return engine.AddSingleResult{}, err
	}
	res := s.engine.AddSingle(ctx, checked)
	if res.Duplicate() {
		logCtx := s.logg.WithChannel(ctx, ch.String())
		s.logg.Warn(s.logg.WithField(logCtx, "product", checked.ProductName), "duplicate product from single intake")
	}
	return res, nil
}

// Photos queues one group per photo. Drafts that fail validation are left
// out and reported together; the rest of each photo still queues.
func (s *Service) Photos(ctx context.Context, photos [][]receipts.Draft) (int, error) {
	s.engine.SetChannel(ctx, enums.UploadChannelPhotos)
	var (
		queued int
		errs   error
	)
	for i, photo := range photos {
		group := make([]receipts.Receipt, 0, len(photo))
		for j, d := range photo {
			checked, err := checkDraft(d)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("photo %d item %d: %w", i+1, j+1, err))
				continue
			}
			group = append(group, receipts.New(checked))
		}
		if s.engine.AddGroup(ctx, group) {
			queued++
		}
	}
	s.logIntake(ctx, enums.UploadChannelPhotos, queued, errs)
	return queued, errs
}

func (s *Service) logIntake(ctx context.Context, ch enums.UploadChannel, groups int, errs error) {
	ctx = s.logg.WithChannel(ctx, ch.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"groups":   groups,
		"rejected": len(multierr.Errors(errs)),
	})
	if errs != nil {
		s.logg.Warn(ctx, "intake finished with rejected items")
		return
	}
	s.logg.Info(ctx, "intake finished")
}

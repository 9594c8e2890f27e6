package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/event"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var categoryTracer = otel.Tracer("service/categories")

// CategoryService manages per-user categories. Lists are cached per user and
// dropped on every write. A list read that overlaps a write is not cached.
type CategoryService struct {
	store  port.CategoryStore
	cache  port.Cache[[]domain.Category]
	seed   singleflight.Group
	events *event.Emitter
	clock  port.Clock
	logger *zap.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCategoryService creates the service and its event emitter.
func NewCategoryService(store port.CategoryStore, cache port.Cache[[]domain.Category], clock port.Clock, metrics *observability.Metrics, logger *zap.Logger) *CategoryService {
	return &CategoryService{
		store:       store,
		cache:       cache,
		events:      event.NewEmitter(metrics, logger),
		clock:       clock,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

// Events returns the emitter carrying categoriesChanged.
func (s *CategoryService) Events() *event.Emitter {
	return s.events
}

// SeedDefaults creates the default categories for a user that has none.
// Concurrent calls for the same user share one seeding run, which is not
// cancelled when the caller that started it goes away.
func (s *CategoryService) SeedDefaults(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.SeedDefaults")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "seedCategories"}
	}

	v, err, _ := s.seed.Do(userID, func() (any, error) {
		ctx := context.WithoutCancel(ctx)

		existing, err := s.store.ListDefaultCategories(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return existing, nil
		}

		now := s.clock.Now()
		seeded := make([]domain.Category, 0, len(domain.DefaultCategories()))
		for _, c := range domain.DefaultCategories() {
			c.UserID = userID
			c.CreatedAt = now
			id, err := s.store.AddCategory(ctx, &c)
			if err != nil {
				s.invalidate(userID)
				return nil, fmt.Errorf("seed category %s: %w", c.Name, err)
			}
			c.ID = id
			seeded = append(seeded, c)
		}

		s.invalidate(userID)
		s.logger.Info("default categories seeded",
			zap.String("user_id", userID),
			zap.Int("count", len(seeded)),
		)
		s.emit(ctx, userID, "")
		return seeded, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.Category)), nil
}

// List returns the user's categories, defaults included.
func (s *CategoryService) List(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.List")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "listCategories"}
	}
	if cached, ok := s.cache.Get(userID); ok {
		return slices.Clone(cached), nil
	}

	gen := s.generation(userID)
	categories, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cacheIfCurrent(userID, gen, slices.Clone(categories))
	return categories, nil
}

// Add creates a custom category. Names are unique per user.
func (s *CategoryService) Add(ctx context.Context, userID string, in domain.Category) (*domain.Category, error) {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Add")
	defer span.End()

	if userID == "" {
		return nil, &domain.ErrNotAuthenticated{Operation: "addCategory"}
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}

	existing, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.Name == name {
			return nil, &domain.ErrConflict{Message: fmt.Sprintf("category %q already exists", name)}
		}
	}

	c := &domain.Category{
		Name:      name,
		Icon:      in.Icon,
		Color:     in.Color,
		IsDefault: false,
		UserID:    userID,
		CreatedAt: s.clock.Now(),
	}
	id, err := s.store.AddCategory(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	s.invalidate(userID)
	s.emit(ctx, userID, id)
	return c, nil
}

// Delete removes a custom category. Default categories cannot be deleted.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) error {
	ctx, span := categoryTracer.Start(ctx, "CategoryService.Delete")
	defer span.End()

	if userID == "" {
		return &domain.ErrNotAuthenticated{Operation: "deleteCategory"}
	}

	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return &domain.ErrNotFound{Resource: "category", ID: id}
	}
	if c.IsDefault {
		return &domain.ErrForbidden{Action: "delete default category"}
	}

	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidate(userID)
	s.emit(ctx, userID, id)
	return nil
}

func (s *CategoryService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

// cacheIfCurrent stores list unless userID was invalidated since gen was read.
func (s *CategoryService) cacheIfCurrent(userID string, gen uint64, list []domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[userID] != gen {
		return
	}
	s.cache.Set(userID, list)
}

func (s *CategoryService) invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	s.cache.Delete(userID)
}

func (s *CategoryService) emit(ctx context.Context, userID, id string) {
	s.events.Emit(ctx, domain.Event{
		Name:       domain.EventCategoriesChanged,
		UserID:     userID,
		SubjectID:  id,
		OccurredAt: s.clock.Now(),
	})
}

package importer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/travelops/importhub/internal/domain"
	"github.com/travelops/importhub/internal/repository"
	pipeerrors "github.com/travelops/importhub/pkg/errors"
)

// Resolver turns free-text supplier references into canonical supplier ids,
// creating the supplier on first sight. Resolution of the same normalized
// name is serialized through a per-name mutex, with the unique constraint on
// normalized_name as the backstop, so two rows naming a new supplier at the
// same time can never create it twice.
type Resolver struct {
	suppliers repository.SupplierRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResolver creates a resolver over the supplier repository.
func NewResolver(suppliers repository.SupplierRepository) *Resolver {
	return &Resolver{
		suppliers: suppliers,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Resolve returns the supplier id for a free-text name, or nil when the name
// is blank. The same normalized name always yields the same id.
func (r *Resolver) Resolve(ctx context.Context, name string) (*uuid.UUID, error) {
	normalized := domain.NormalizeSupplierName(name)
	if normalized == "" {
		return nil, nil
	}

	lock := r.nameLock(normalized)
	lock.Lock()
	defer lock.Unlock()

	supplier, found, err := r.suppliers.GetByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryResolution, pipeerrors.CodeEntityCreateFailed, "supplier lookup failed")
	}
	if found {
		return &supplier.ID, nil
	}

	created, err := r.suppliers.Insert(ctx, domain.NewSupplier(name))
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryResolution, pipeerrors.CodeEntityCreateFailed, "supplier creation failed")
	}
	return &created.ID, nil
}

func (r *Resolver) nameLock(normalized string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[normalized]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[normalized] = lock
	}
	return lock
}

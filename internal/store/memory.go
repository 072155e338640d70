package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweetshop/apiserver/types"
)

// MemoryUserRepository keeps users in process memory. It backs the
// "memory" store backend and tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]types.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return types.User{}, ErrDuplicate
	}

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = types.RoleUser
	}

	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *MemoryUserRepository) Ping(context.Context) error {
	return nil
}

type memorySweet struct {
	sweet types.Sweet
	seq   uint64
}

// MemorySweetRepository keeps sweets in process memory. Every stock change
// happens under a single mutex, which gives the same all-or-nothing
// decrement as the conditional UPDATE used by SweetRepository.
type MemorySweetRepository struct {
	mu     sync.Mutex
	seq    uint64
	sweets map[string]*memorySweet
	names  map[string]string
}

func NewMemorySweetRepository() *MemorySweetRepository {
	return &MemorySweetRepository{
		sweets: make(map[string]*memorySweet),
		names:  make(map[string]string),
	}
}

func (r *MemorySweetRepository) List(_ context.Context, filter types.SearchFilter) ([]types.Sweet, error) {
	r.mu.Lock()
	matched := make([]*memorySweet, 0, len(r.sweets))
	for _, entry := range r.sweets {
		if filter.Matches(entry.sweet) {
			matched = append(matched, entry)
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.sweet.CreatedAt.Equal(b.sweet.CreatedAt) {
			return a.sweet.CreatedAt.After(b.sweet.CreatedAt)
		}
		return a.seq > b.seq
	})

	sweets := make([]types.Sweet, 0, len(matched))
	for _, entry := range matched {
		sweets = append(sweets, entry.sweet)
	}
	return sweets, nil
}

func (r *MemorySweetRepository) Get(_ context.Context, id string) (types.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sweets[id]
	if !ok {
		return types.Sweet{}, ErrNotFound
	}
	return entry.sweet, nil
}

func (r *MemorySweetRepository) GetByName(_ context.Context, name string) (types.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.names[name]
	if !ok {
		return types.Sweet{}, ErrNotFound
	}
	return r.sweets[id].sweet, nil
}

func (r *MemorySweetRepository) Create(_ context.Context, sweet types.Sweet) (types.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[sweet.Name]; taken {
		return types.Sweet{}, ErrDuplicate
	}

	now := time.Now().UTC()
	sweet.ID = uuid.NewString()
	sweet.CreatedAt = now
	sweet.UpdatedAt = now

	r.seq++
	r.sweets[sweet.ID] = &memorySweet{sweet: sweet, seq: r.seq}
	r.names[sweet.Name] = sweet.ID
	return sweet, nil
}

func (r *MemorySweetRepository) Update(_ context.Context, id string, patch types.SweetPatch) (types.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sweets[id]
	if !ok {
		return types.Sweet{}, ErrNotFound
	}

	next := patch.Apply(entry.sweet)
	if next.Name != entry.sweet.Name {
		if owner, taken := r.names[next.Name]; taken && owner != id {
			return types.Sweet{}, ErrDuplicate
		}
		delete(r.names, entry.sweet.Name)
		r.names[next.Name] = id
	}
	next.UpdatedAt = time.Now().UTC()
	entry.sweet = next
	return next, nil
}

func (r *MemorySweetRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sweets[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.names, entry.sweet.Name)
	delete(r.sweets, id)
	return nil
}

func (r *MemorySweetRepository) DecrementIfEnough(_ context.Context, id string, qty int) (types.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sweets[id]
	if !ok {
		return types.Sweet{}, ErrNotFound
	}
	if entry.sweet.Quantity < qty {
		return types.Sweet{}, &StockError{Available: entry.sweet.Quantity, Requested: qty}
	}
	entry.sweet.Quantity -= qty
	entry.sweet.UpdatedAt = time.Now().UTC()
	return entry.sweet, nil
}

func (r *MemorySweetRepository) Increment(_ context.Context, id string, qty int) (types.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sweets[id]
	if !ok {
		return types.Sweet{}, ErrNotFound
	}
	if qty > MaxQuantity-entry.sweet.Quantity {
		return types.Sweet{}, ErrQuantityOverflow
	}
	entry.sweet.Quantity += qty
	entry.sweet.UpdatedAt = time.Now().UTC()
	return entry.sweet, nil
}

func (r *MemorySweetRepository) Ping(context.Context) error {
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/db"
	"github.com/sweetshop/apiserver/types"
)

// UserStore is implemented by UserRepository and MemoryUserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Ping(ctx context.Context) error
}

// SweetStore is implemented by SweetRepository and MemorySweetRepository.
type SweetStore interface {
	List(ctx context.Context, filter types.SearchFilter) ([]types.Sweet, error)
	Get(ctx context.Context, id string) (types.Sweet, error)
	GetByName(ctx context.Context, name string) (types.Sweet, error)
	Create(ctx context.Context, sweet types.Sweet) (types.Sweet, error)
	Update(ctx context.Context, id string, patch types.SweetPatch) (types.Sweet, error)
	Delete(ctx context.Context, id string) error
	DecrementIfEnough(ctx context.Context, id string, qty int) (types.Sweet, error)
	Increment(ctx context.Context, id string, qty int) (types.Sweet, error)
	Ping(ctx context.Context) error
}

// Handle owns the repositories of one store backend. It is opened once at
// startup, passed to the components that need it and closed on shutdown.
type Handle struct {
	Backend string
	Users   UserStore
	Sweets  SweetStore

	db *sql.DB
}

// Open connects the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config) (*Handle, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", config.StorePostgres:
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Backend: config.StorePostgres,
			Users:   NewUserRepository(conn),
			Sweets:  NewSweetRepository(conn),
			db:      conn,
		}, nil
	case config.StoreMemory:
		return NewMemoryHandle(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewMemoryHandle returns a Handle backed by process memory.
func NewMemoryHandle() *Handle {
	return &Handle{
		Backend: config.StoreMemory,
		Users:   NewMemoryUserRepository(),
		Sweets:  NewMemorySweetRepository(),
	}
}

// Ping verifies the backend is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	return h.Sweets.Ping(ctx)
}

// Close releases the database connection pool, if any.
func (h *Handle) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

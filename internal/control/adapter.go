package control

import (
	"errors"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/paramstore"
)

// StoreAdapter wraps a *paramstore.Store so it satisfies ParamStore,
// translating paramstore's own Result/RateLimitedError types into this
// package's equivalents. This is the only file in internal/control that
// imports internal/paramstore; everything else depends on the narrow
// interface.
type StoreAdapter struct {
	Store *paramstore.Store
}

func (a *StoreAdapter) Get() *domain.ConfigSnapshot {
	return a.Store.Get()
}

func (a *StoreAdapter) Apply(delta map[string]interface{}, author, sourceTag string) (Result, error) {
	r, err := a.Store.Apply(delta, author, sourceTag)
	if err != nil {
		var rl *paramstore.RateLimitedError
		if errors.As(err, &rl) {
			return Result{}, &RateLimitedError{Remaining: rl.Remaining}
		}
		return Result{}, err
	}
	return Result{Revision: r.Revision, Snapshot: r.Snapshot}, nil
}

func (a *StoreAdapter) Rollback(n int) (Result, error) {
	r, err := a.Store.Rollback(n)
	if err != nil {
		return Result{}, err
	}
	return Result{Revision: r.Revision, Snapshot: r.Snapshot}, nil
}

func (a *StoreAdapter) History(limit int) ([]domain.AuditRecord, error) {
	return a.Store.History(limit)
}

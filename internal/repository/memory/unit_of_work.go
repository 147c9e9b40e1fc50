package memory

import (
	"context"
	"fmt"

	"tourbook-chat/internal/repository/contract"
	"tourbook-chat/internal/repository/unitofwork"
)

// UnitOfWork serializes transactions on the Database and restores the rows
// captured at Begin when rolled back.
type UnitOfWork struct {
	db     *Database
	active bool
	saved  state
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.db.lock()
	u.saved = u.db.snapshot()
	u.active = true
	return nil
}

func (u *UnitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}
	u.finish()
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if !u.active {
		return fmt.Errorf("no transaction to rollback")
	}
	u.db.restore(u.saved)
	u.finish()
	return nil
}

func (u *UnitOfWork) finish() {
	u.active = false
	u.saved = state{}
	u.db.unlock()
}

func (u *UnitOfWork) SupportSessionRepository() contract.SupportSessionRepository {
	return NewSupportSessionRepository(u.db)
}

func (u *UnitOfWork) SupportMessageRepository() contract.SupportMessageRepository {
	return NewSupportMessageRepository(u.db)
}

type RepositoryFactory struct {
	db *Database
}

func NewRepositoryFactory(db *Database) unitofwork.RepositoryFactory {
	return &RepositoryFactory{db: db}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{db: f.db}
}

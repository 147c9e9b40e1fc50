package unitofwork

import (
	"context"

	"tourbook-chat/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SupportSessionRepository() contract.SupportSessionRepository
	SupportMessageRepository() contract.SupportMessageRepository
}

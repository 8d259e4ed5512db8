package port

import "context"

// Tx is an externally-managed transaction handle. Stores accept it as an
// explicit parameter (nil means "run against the pool") so the caller owns
// the commit/rollback boundary.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
}

package repository

import (
	"context"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction, passing the
// backend-specific handle as tx. Repositories accept a nil tx for the
// non-transactional path.
//
// USAGE
// tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
// // call repositories with the same ctx and tx
// return requests.Save(ctx, tx, req)
// })
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

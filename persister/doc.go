// Package persister turns scheduled inserts, updates and deletes into
// storage writes.
//
// # Overview
//
// A Persister writes single entities of one class and a CollectionPersister
// writes the join rows of owning collections. The Dispatcher picks the
// strategy from the class mapping:
//
//   - StandardPersister: one table per class, with the discriminator column
//     written for single table hierarchies
//   - JoinedPersister: one row in the root table and one row per subclass table
//   - ManyToManyPersister: join table rows for owning collections
//   - RepositoryPersister: delegates to an existing go-repository-bun repository
//
// Statements are built with bun, so any bun dialect works.
//
// # Transactions
//
// The unit of work never opens or commits transactions. Callers open one
// and attach it to the context passed to Commit:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	defer tx.Rollback()
//	if err := uow.Commit(persister.WithTx(ctx, tx)); err != nil {
//		return err
//	}
//	return tx.Commit()
//
// Without a transaction in the context, persisters write through the
// database handle given to the Dispatcher.
package persister

// Package store is the SQL content store. It persists the catalog with bun
// on sqlite (development and tests) or postgres (production) and emits one
// catalog.MutationEvent per committed write.
//
// Basic usage:
//
//	db, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: "file:catalog.db"})
//	if err != nil {
//		return err
//	}
//	s := store.New(db, store.WithLogger(logger))
//	if err := s.Migrate(ctx); err != nil {
//		return err
//	}
//	s.Subscribe(coordinator)
//
// Events are published after the transaction commits, on the writer's
// goroutine, so listeners never observe state that was rolled back.
package store

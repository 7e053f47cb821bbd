// Package mongo provides a MongoDB implementation of store.Store using the
// official mongo-driver.
//
// Graphs, jobs and artifacts live in three collections. Job commits run in
// a multi-document transaction, so the server must be a replica set (a
// single-node replica set is enough).
//
// Usage:
//
//	s, err := mongo.New(ctx, "mongodb://localhost:27017/?replicaSet=rs0")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
package mongo

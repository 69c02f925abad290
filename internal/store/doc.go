// Package store provides SQLite-backed durable storage for collections,
// their objects, and the oplog.
//
// A collection is registered once with a key path descriptor. Objects live
// in one table keyed by (collection, canonical key JSON). The oplog is an
// append-only table keyed by hlc_time, whose TEXT ordering under BINARY
// collation is the timestamp order.
//
// Every read and write happens through a Tx so that object writes and the
// oplog entries describing them commit or roll back together. The pool
// holds one connection: do not call Store methods while a Tx is open on
// the same goroutine.
//
// # Schema
//
// schema.sql is migration 1. Open applies every migration past the
// database's user_version and refuses a database from a newer build with
// ErrSchemaTooNew. Foreign keys are on, so an object row always names a
// registered collection.
package store

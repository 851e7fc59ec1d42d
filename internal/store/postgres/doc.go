// Package postgres implements the correction ledger on PostgreSQL.
//
// The schema is managed by goose migrations embedded in the binary. Commits
// lock the entity row with SELECT ... FOR UPDATE, so concurrent commits for
// one entity serialize while other entities proceed in parallel.
package postgres

// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: transactional job commits, creation-ordered graph listing,
// embedded SQL migrations.
package postgres

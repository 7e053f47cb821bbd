package bunstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/jobgraph/id"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	return pgCode(err) == "23505"
}

// isForeignKey checks if a PostgreSQL error is a foreign_key_violation (23503).
func isForeignKey(err error) bool {
	return pgCode(err) == "23503"
}

func pgCode(err error) string {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

// nullID maps the Nil ID to SQL NULL.
func nullID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	s := i.String()
	return &s
}

func parseNullID(s *string) (id.ID, error) {
	if s == nil || *s == "" {
		return id.Nil, nil
	}
	return id.Parse(*s)
}

// idStrings never returns nil; the array columns are NOT NULL.
func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func parseIDs(ss []string) ([]id.ID, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]id.ID, len(ss))
	for i, s := range ss {
		v, err := id.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

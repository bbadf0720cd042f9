package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ResolveSubmitter returns the id of the submitter with s.Email, creating the
// row if none exists. An existing row is never modified: the first write wins.
func (db *DB) ResolveSubmitter(ctx context.Context, s Submitter) (int64, error) {
	if err := validateEmail(s.Email); err != nil {
		return 0, err
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var id int64
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = resolveSubmitter(ctx, tx, s)
		return err
	})
	if err != nil {
		return 0, persistence("resolve submitter", err)
	}
	return id, nil
}

// GetSubmitterByEmail looks a submitter up without creating one
func (db *DB) GetSubmitterByEmail(ctx context.Context, email string) (*Submitter, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	s := &Submitter{}
	var otc sql.NullString
	err := db.queryRow(ctx, `
		SELECT id, email, fam, name, otc, phone
		FROM users WHERE email = ?
	`, email).Scan(&s.ID, &s.Email, &s.FamilyName, &s.GivenName, &otc, &s.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get submitter", err)
	}
	s.Patronymic = nullToOptional(otc)
	return s, nil
}

// resolveSubmitter runs inside the caller's transaction. Losing the insert
// race to a concurrent caller surfaces as a unique violation, which is
// retried as a lookup.
func resolveSubmitter(ctx context.Context, q querier, s Submitter) (int64, error) {
	email := normalizeEmail(s.Email)

	id, found, err := lookupSubmitterID(ctx, q, email)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO users (email, fam, name, otc, phone)
		VALUES (?, ?, ?, ?, ?)
	`, email, s.FamilyName, s.GivenName, optionalToNull(s.Patronymic), s.Phone)
	if err != nil {
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("failed to create submitter: %w", err)
		}
		log.Debug().Str("email", email).Msg("Submitter created concurrently, retrying lookup")
		id, found, err = lookupSubmitterID(ctx, q, email)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, fmt.Errorf("submitter %q vanished after unique violation", email)
		}
		return id, nil
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get submitter id: %w", err)
	}
	log.Debug().Int64("submitter_id", id).Str("email", email).Msg("Submitter created")
	return id, nil
}

func lookupSubmitterID(ctx context.Context, q querier, email string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up submitter: %w", err)
	}
	return id, true, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

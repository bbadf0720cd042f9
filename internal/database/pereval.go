package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const passSelect = `
	SELECT p.id, COALESCE(p.beauty_title, ''), p.title, COALESCE(p.other_titles, ''), COALESCE(p.connect, ''),
		p.add_time, p.level_winter, p.level_summer, p.level_autumn, p.level_spring, p.status,
		u.id, u.email, u.fam, u.name, u.otc, u.phone,
		c.id, c.latitude, c.longitude, c.height
	FROM pereval_added p
	JOIN users u ON u.id = p.user_id
	JOIN coords c ON c.id = p.coord_id
`

// CreatePass stores a new submission with its submitter, coordinate and
// images in one transaction and returns the record id. The status is always
// StatusNew.
func (db *DB) CreatePass(ctx context.Context, np NewPass) (int64, error) {
	if err := np.validate(); err != nil {
		return 0, err
	}
	if np.SubmittedAt.IsZero() {
		np.SubmittedAt = time.Now()
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var passID int64
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		userID, err := resolveSubmitter(ctx, tx, np.Submitter)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO coords (latitude, longitude, height)
			VALUES (?, ?, ?)
		`, string(np.Coordinate.Latitude), string(np.Coordinate.Longitude), np.Coordinate.Elevation)
		if err != nil {
			return fmt.Errorf("failed to insert coordinate: %w", err)
		}
		coordID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get coordinate id: %w", err)
		}

		result, err = tx.ExecContext(ctx, `
			INSERT INTO pereval_added (
				beauty_title, title, other_titles, connect, add_time,
				user_id, coord_id,
				level_winter, level_summer, level_autumn, level_spring, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, np.DisplayTitle, np.OfficialTitle, np.AltTitles, np.ConnectsDescription, formatTime(np.SubmittedAt),
			userID, coordID,
			np.Difficulty.Winter, np.Difficulty.Summer, np.Difficulty.Autumn, np.Difficulty.Spring, string(StatusNew))
		if err != nil {
			return fmt.Errorf("failed to insert pass: %w", err)
		}
		passID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get pass id: %w", err)
		}

		return insertImages(ctx, tx, passID, np.Images)
	})
	if err != nil {
		return 0, persistence("create pass", err)
	}

	log.Info().
		Int64("pass_id", passID).
		Str("email", normalizeEmail(np.Submitter.Email)).
		Int("images", len(np.Images)).
		Msg("Pass created")

	return passID, nil
}

// GetPass loads a record with its submitter, coordinate and images.
// It returns ErrNotFound when no record has the id.
func (db *DB) GetPass(ctx context.Context, id int64) (*PassRecord, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var pass *PassRecord
	err := db.ReadTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, passSelect+" WHERE p.id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to query pass: %w", err)
		}
		passes, err := scanPasses(rows)
		if err != nil {
			return err
		}

		if len(passes) == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pereval_added WHERE id = ?)", id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check pass: %w", err)
			}
			if exists {
				return fmt.Errorf("pass %d is missing its submitter or coordinate: %w", id, ErrIntegrity)
			}
			return ErrNotFound
		}

		if err := loadImages(ctx, tx, passes); err != nil {
			return err
		}
		pass = passes[0]
		return nil
	})
	if err != nil {
		return nil, persistence("get pass", err)
	}
	return pass, nil
}

// ListPassesBySubmitter returns every record submitted by email, newest
// first. An empty or unknown email yields an empty slice.
func (db *DB) ListPassesBySubmitter(ctx context.Context, email string) ([]*PassRecord, error) {
	passes := []*PassRecord{}
	email = normalizeEmail(email)
	if email == "" {
		return passes, nil
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	err := db.ReadTransaction(ctx, func(tx *sql.Tx) error {
		userID, found, err := lookupSubmitterID(ctx, tx, email)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		rows, err := tx.QueryContext(ctx, passSelect+" WHERE p.user_id = ? ORDER BY p.add_time DESC, p.id DESC", userID)
		if err != nil {
			return fmt.Errorf("failed to query passes: %w", err)
		}
		owned, err := scanPasses(rows)
		if err != nil {
			return err
		}
		if err := loadImages(ctx, tx, owned); err != nil {
			return err
		}
		passes = append(passes, owned...)
		return nil
	})
	if err != nil {
		return nil, persistence("list passes", err)
	}
	return passes, nil
}

// UpdatePass applies a sparse patch to a record that is still StatusNew.
// The status is re-read inside the write transaction, so a concurrent
// moderation change and an edit never both take effect.
func (db *DB) UpdatePass(ctx context.Context, id int64, patch PassPatch) (*UpdateResult, error) {
	if err := patch.validate(); err != nil {
		return &UpdateResult{Reason: err.Error()}, err
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		var status Status
		var coordID int64
		err := tx.QueryRowContext(ctx, "SELECT status, coord_id FROM pereval_added WHERE id = ?", id).Scan(&status, &coordID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read pass status: %w", err)
		}
		if status != StatusNew {
			return &PermissionDeniedError{ID: id, Status: status}
		}

		if c, ok := patch.Coordinate.Get(); ok {
			if query, args, ok := buildUpdate("coords", coordColumns, &c, coordID); ok {
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("failed to update coordinate: %w", err)
				}
			}
		}

		if query, args, ok := buildUpdate("pereval_added", passColumns, &patch, id); ok {
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to update pass: %w", err)
			}
		}

		if images, ok := patch.Images.Get(); ok {
			if _, err := tx.ExecContext(ctx, "DELETE FROM images WHERE pereval_id = ?", id); err != nil {
				return fmt.Errorf("failed to clear images: %w", err)
			}
			if err := insertImages(ctx, tx, id, images); err != nil {
				return err
			}
		}

		return nil
	})

	switch {
	case err == nil:
		log.Info().Int64("pass_id", id).Msg("Pass updated")
		return &UpdateResult{Accepted: true, Reason: "updated"}, nil
	case errors.Is(err, ErrNotFound):
		return &UpdateResult{Reason: "not found"}, ErrNotFound
	case IsPermissionDenied(err):
		var pd *PermissionDeniedError
		errors.As(err, &pd)
		return &UpdateResult{Reason: fmt.Sprintf("status is %q", pd.Status)}, err
	default:
		err = persistence("update pass", err)
		return &UpdateResult{Reason: err.Error()}, err
	}
}

// SetPassStatus records a moderation decision. It is the only path that
// changes a record's status.
func (db *DB) SetPassStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if status == StatusNew {
		return &ValidationError{Field: "status", Message: "cannot return to new"}
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var affected int64
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "UPDATE pereval_added SET status = ? WHERE id = ?", string(status), id)
		if err != nil {
			return fmt.Errorf("failed to set status: %w", err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return persistence("set pass status", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	log.Info().Int64("pass_id", id).Str("status", string(status)).Msg("Pass status changed")
	return nil
}

func scanPasses(rows *sql.Rows) ([]*PassRecord, error) {
	defer rows.Close()

	var passes []*PassRecord
	for rows.Next() {
		p := &PassRecord{Images: []Image{}}
		var addTime string
		var otc sql.NullString
		var latitude, longitude string
		err := rows.Scan(
			&p.ID, &p.DisplayTitle, &p.OfficialTitle, &p.AltTitles, &p.ConnectsDescription,
			&addTime, &p.Difficulty.Winter, &p.Difficulty.Summer, &p.Difficulty.Autumn, &p.Difficulty.Spring, &p.Status,
			&p.Submitter.ID, &p.Submitter.Email, &p.Submitter.FamilyName, &p.Submitter.GivenName, &otc, &p.Submitter.Phone,
			&p.Coordinate.ID, &latitude, &longitude, &p.Coordinate.Elevation,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		if p.SubmittedAt, err = parseTime(addTime); err != nil {
			return nil, err
		}
		p.Submitter.Patronymic = nullToOptional(otc)
		p.Coordinate.Latitude = Decimal(latitude)
		p.Coordinate.Longitude = Decimal(longitude)
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

// loadImages attaches images to passes in insertion order
func loadImages(ctx context.Context, q querier, passes []*PassRecord) error {
	if len(passes) == 0 {
		return nil
	}

	byID := make(map[int64]*PassRecord, len(passes))
	args := make([]any, 0, len(passes))
	for _, p := range passes {
		byID[p.ID] = p
		args = append(args, p.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")

	rows, err := q.QueryContext(ctx, `
		SELECT id, pereval_id, data, title
		FROM images
		WHERE pereval_id IN (`+placeholders+`)
		ORDER BY pereval_id, id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img Image
		var passID int64
		var title sql.NullString
		if err := rows.Scan(&img.ID, &passID, &img.Payload, &title); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		img.Caption = nullStringValue(title)
		if p, ok := byID[passID]; ok {
			p.Images = append(p.Images, img)
		}
	}
	return rows.Err()
}

func insertImages(ctx context.Context, tx *sql.Tx, passID int64, images []Image) error {
	if len(images) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO images (pereval_id, data, title) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close()

	for i, img := range images {
		if _, err := stmt.ExecContext(ctx, passID, img.Payload, img.Caption); err != nil {
			return fmt.Errorf("failed to insert image %d: %w", i, err)
		}
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"userprofile/internal/domain"
)

const userColumns = `user_id, user_name, email, avatar, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, u domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserName, u.Email, u.Avatar, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userExists(u)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an existing user; created_at is kept.
func (s *Store) Update(ctx context.Context, u domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET user_name = ?, email = ?, avatar = ?, updated_at = ? WHERE user_id = ?`,
		u.UserName, u.Email, u.Avatar, toMillis(u.UpdatedAt), u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userExists(u)
		}
		return fmt.Errorf("update user: %w", err)
	}
	return expectRow(res, "user_id", u.ID)
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("remove user: %w", err)
	}
	return expectRow(res, "user_id", id)
}

func (s *Store) GetAll(ctx context.Context) ([]domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (domain.User, error) {
	return s.findOne(ctx, "user_id", strings.TrimSpace(id))
}

func (s *Store) FindByUserName(ctx context.Context, userName string) (domain.User, error) {
	return s.findOne(ctx, "user_name", strings.TrimSpace(userName))
}

// FindByEmail matches case-insensitively; addresses are stored lower-cased.
func (s *Store) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findOne(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

// column is always one of the literals above
func (s *Store) findOne(ctx context.Context, column, value string) (domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return domain.User{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, userNotFound(column, value)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user by %s: %w", column, err)
	}
	return u, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanUser(sc scanner) (domain.User, error) {
	var (
		u                    domain.User
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&u.ID, &u.UserName, &u.Email, &u.Avatar, &createdAt, &updatedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(createdAt), fromMillis(updatedAt)
	return u, nil
}

func expectRow(res sql.Result, key, value string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return userNotFound(key, value)
	}
	return nil
}

// internal/repository/postgres/identity_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"accessgate-service/internal/domain/identity"
	xerrors "accessgate-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdentityRepository struct {
	db *pgxpool.Pool
}

func NewIdentityRepository(db *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindEndUserByKey retrieves the end-user record for an identity key.
func (r *IdentityRepository) FindEndUserByKey(ctx context.Context, subjectID string) (*identity.EndUserRecord, error) {
	query := `
		SELECT subject_id, tenant_id, is_active, tier, level
		FROM end_users
		WHERE subject_id = $1 AND deleted_at IS NULL
	`

	var rec identity.EndUserRecord
	err := r.db.QueryRow(ctx, query, subjectID).Scan(
		&rec.SubjectID, &rec.TenantID, &rec.Active, &rec.Tier, &rec.Level,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find end user: %w", err)
	}

	return &rec, nil
}

// FindStaffProfileByKey retrieves the staff-profile record for an identity key.
func (r *IdentityRepository) FindStaffProfileByKey(ctx context.Context, subjectID string) (*identity.StaffRecord, error) {
	query := `
		SELECT subject_id, role, tenant_id, is_active
		FROM staff_profiles
		WHERE subject_id = $1 AND deleted_at IS NULL
	`

	var rec identity.StaffRecord
	err := r.db.QueryRow(ctx, query, subjectID).Scan(
		&rec.SubjectID, &rec.Role, &rec.TenantID, &rec.Active,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff profile: %w", err)
	}

	return &rec, nil
}

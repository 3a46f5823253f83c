package repository

import (
	"context"
	"database/sql"
	"time"

	authcore "github.com/kesslerlabs/go-authcore"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileModel is the Bun model for profile documents. Documents are keyed
// by the identity provider's id (profile_id); the uuid primary key is
// internal bookkeeping only.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles"`

	ID          uuid.UUID  `bun:"id,pk,nullzero,type:uuid"`
	ProfileID   string     `bun:"profile_id,notnull,unique"`
	Email       string     `bun:"email"`
	DisplayName string     `bun:"display_name"`
	PhotoURL    string     `bun:"photo_url"`
	CreatedAt   *time.Time `bun:"created_at,nullzero"`
	LastLoginAt *time.Time `bun:"last_login_at,nullzero"`
	UpdatedAt   time.Time  `bun:"updated_at,default:current_timestamp"`
}

// ProfileRepository implements authcore.ProfileStore using Bun.
type ProfileRepository struct {
	repository.Repository[*ProfileModel]
	db *bun.DB
}

var _ authcore.ProfileStore = (*ProfileRepository)(nil)

// NewProfileRepository creates a new repository.
func NewProfileRepository(db *bun.DB) *ProfileRepository {
	repo := repository.NewRepository[*ProfileModel](db, repository.ModelHandlers[*ProfileModel]{
		NewRecord: func() *ProfileModel { return &ProfileModel{} },
		GetID: func(m *ProfileModel) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *ProfileModel, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &ProfileRepository{
		Repository: repo,
		db:         db,
	}
}

// Upsert implements authcore.ProfileStore.
//
// With merge=false the write is an idempotent creation: a conflicting
// document is left untouched, so a retried creation never clobbers the
// stored created_at or display_name. With merge=true only last_login_at and
// photo_url are refreshed.
func (r *ProfileRepository) Upsert(ctx context.Context, id string, record *authcore.ProfileRecord, merge bool) error {
	model := r.fromProfileRecord(id, record)
	model.UpdatedAt = time.Now()

	if merge {
		_, err := r.db.NewInsert().
			Model(model).
			On("CONFLICT (profile_id) DO UPDATE").
			Set("last_login_at = EXCLUDED.last_login_at").
			Set("photo_url = EXCLUDED.photo_url").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (profile_id) DO NOTHING").
		Exec(ctx)
	return err
}

// Get implements authcore.ProfileStore.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*authcore.ProfileRecord, error) {
	model := &ProfileModel{}
	err := r.db.NewSelect().
		Model(model).
		Where("profile_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"profile_id": id,
				})
		}
		return nil, err
	}

	return r.toProfileRecord(model), nil
}

func (r *ProfileRepository) toProfileRecord(m *ProfileModel) *authcore.ProfileRecord {
	return &authcore.ProfileRecord{
		ID:          m.ProfileID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		PhotoURL:    m.PhotoURL,
		CreatedAt:   m.CreatedAt,
		LastLoginAt: m.LastLoginAt,
	}
}

func (r *ProfileRepository) fromProfileRecord(id string, rec *authcore.ProfileRecord) *ProfileModel {
	if rec == nil {
		return &ProfileModel{ID: uuid.New(), ProfileID: id}
	}

	return &ProfileModel{
		ID:          uuid.New(),
		ProfileID:   id,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		CreatedAt:   rec.CreatedAt,
		LastLoginAt: rec.LastLoginAt,
	}
}

// CreateProfilesTable creates the backing table. Intended for embedded
// sqlite deployments and tests; production schemas are managed by the host
// application's migrations.
func CreateProfilesTable(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*ProfileModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

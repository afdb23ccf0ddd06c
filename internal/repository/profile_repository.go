package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/face-unlock/internal/profile"
	"github.com/example/face-unlock/internal/retry"
	"github.com/example/face-unlock/internal/signature"
)

// ProfileRecord represents a persisted profile row.
type ProfileRecord struct {
	ID          uint                     `gorm:"primaryKey"`
	Name        string                   `gorm:"column:name;uniqueIndex;size:64"`
	Buckets     datatypes.JSONSlice[int] `gorm:"column:bucket_counts"`
	ContentHash string                   `gorm:"column:content_hash;index;size:64"`
	Width       int                      `gorm:"column:width"`
	Height      int                      `gorm:"column:height"`
	ImagePath   string                   `gorm:"column:image_path;size:512"`
	CreatedAt   time.Time                `gorm:"column:created_at"`
	UpdatedAt   time.Time                `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (ProfileRecord) TableName() string {
	return "profiles"
}

// ProfileRepository persists profiles in a SQL database, writing only the
// changed row on each save.
type ProfileRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewProfileRepository creates a new repository instance.
func NewProfileRepository(db *gorm.DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger.Named("profile_repository"),
		policy: retry.DefaultPolicy,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ProfileRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ProfileRecord{})
}

// Load returns every profile in registration order.
func (r *ProfileRepository) Load(ctx context.Context) ([]profile.Profile, error) {
	var records []ProfileRecord
	err := r.executeWithRetry(ctx, "repository.load_profiles", "", func() error {
		records = records[:0]
		return r.db.WithContext(ctx).Order("id").Find(&records).Error
	})
	if err != nil {
		return nil, &profile.StorageError{Op: "read", Path: ProfileRecord{}.TableName(), Err: err}
	}

	out := make([]profile.Profile, 0, len(records))
	for _, rec := range records {
		p, err := rec.toProfile()
		if err != nil {
			return nil, &profile.StorageError{Op: "decode", Path: ProfileRecord{}.TableName(), Err: err}
		}
		out = append(out, p)
	}
	return out, nil
}

// Save upserts the changed profile by name. The full set is ignored.
func (r *ProfileRepository) Save(ctx context.Context, _ []profile.Profile, changed profile.Profile) error {
	rec := recordFromProfile(changed)
	err := r.executeWithRetry(ctx, "repository.upsert_profile", "", func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"bucket_counts", "content_hash", "width", "height", "image_path", "created_at", "updated_at"}),
		}).Create(&rec).Error
	})
	if err != nil {
		return &profile.StorageError{Op: "write", Path: ProfileRecord{}.TableName(), Err: err}
	}
	return nil
}

func (r *ProfileRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.logger, r.policy, operation, requestID, fn)
}

func recordFromProfile(p profile.Profile) ProfileRecord {
	return ProfileRecord{
		Name:        p.Name,
		Buckets:     datatypes.NewJSONSlice(p.Fingerprint.Buckets[:]),
		ContentHash: p.Fingerprint.ContentHash,
		Width:       p.Fingerprint.Width,
		Height:      p.Fingerprint.Height,
		ImagePath:   p.ImagePath,
		CreatedAt:   p.CreatedAt,
	}
}

func (rec ProfileRecord) toProfile() (profile.Profile, error) {
	if len(rec.Buckets) != signature.BucketCount {
		return profile.Profile{}, &bucketCountError{name: rec.Name, got: len(rec.Buckets)}
	}
	var fp signature.Fingerprint
	copy(fp.Buckets[:], rec.Buckets)
	fp.ContentHash = rec.ContentHash
	fp.Width = rec.Width
	fp.Height = rec.Height
	return profile.Profile{
		Name:        rec.Name,
		Fingerprint: fp,
		ImagePath:   rec.ImagePath,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

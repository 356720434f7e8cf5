// Package repository declares the storage ports the services depend on.
// Implementations live in the sqlite and postgres subpackages; services only
// ever see these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/sakif/runquest/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type OwnerRepository interface {
	UpsertOwner(ctx context.Context, owner *model.Owner) error
	GetOwner(ctx context.Context, id int64) (*model.Owner, error)
}

// CredentialRepository stores one OAuth credential per owner.
//
// SaveCredential replaces the whole row in one statement; readers never see
// a new access token paired with an old expiry.
type CredentialRepository interface {
	GetCredential(ctx context.Context, ownerID int64) (*model.Credential, error)
	SaveCredential(ctx context.Context, cred model.Credential) error
	DeleteCredential(ctx context.Context, ownerID int64) error
}

// UnlockRepository is the append-only achievement ledger.
type UnlockRepository interface {
	ListUnlocks(ctx context.Context, ownerID int64) ([]model.UnlockRecord, error)

	// CreateUnlock inserts rec unless (OwnerID, AchievementID) already exists.
	// created is false when the row was already there; that is not an error.
	CreateUnlock(ctx context.Context, rec *model.UnlockRecord) (created bool, err error)
}

type ActivityRepository interface {
	UpsertActivities(ctx context.Context, activities []model.Activity) error
	ListActivities(ctx context.Context, ownerID int64, opts ListOptions) ([]model.Activity, error)
	CountActivities(ctx context.Context, ownerID int64) (int, error)

	// ActivitiesSince returns every activity starting at or after since, oldest first.
	ActivitiesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.Activity, error)
}

type SyncRunRepository interface {
	RecordSyncRun(ctx context.Context, run *model.SyncRun) error

	// LastSuccessfulRun returns apperror.ErrNotFound when the owner has never
	// completed a run of that kind.
	LastSuccessfulRun(ctx context.Context, ownerID int64, kind model.SyncKind) (*model.SyncRun, error)
}

// TokenCipher seals credential tokens before they reach a column.
// *vault.Vault implements it.
type TokenCipher interface {
	Seal(ownerID int64, plaintext string) (string, error)
	Open(ownerID int64, sealed string) (string, error)
}

// Store bundles every port; both backends satisfy it.
type Store interface {
	OwnerRepository
	CredentialRepository
	UnlockRepository
	ActivityRepository
	SyncRunRepository
	Ping(ctx context.Context) error
	Close() error
}

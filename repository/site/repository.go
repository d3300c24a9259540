package site

import (
	"context"

	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
)

// Repository is the durable manifest store for deployed sites.
//
// Site name uniqueness is enforced by the store itself, never by the caller:
// CreateIfAbsent on a taken name MUST report NAME_CONFLICT even when two
// requests race, across process boundaries.
type Repository interface {
	CreateIfAbsent(ctx context.Context, data entity.Site) (*entity.Site, *types.CommonError)

	// GetByName is not scoped to any owner, deployed sites are public
	GetByName(ctx context.Context, siteName string) (*entity.Site, *types.CommonError)

	ListByOwner(ctx context.Context, owner string) ([]entity.Site, *types.CommonError)

	// DeleteByNameAndOwner removes the manifest and returns the removed
	// record so the caller can reclaim its blobs. Owner mismatch leaves the
	// record untouched and reports FORBIDDEN (distinct from NOT_FOUND).
	DeleteByNameAndOwner(ctx context.Context, siteName, owner string) (*entity.Site, *types.CommonError)
}

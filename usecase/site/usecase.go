package site

import (
	"context"
	"io"

	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
)

// Usecase is the site lifecycle: deployment, resolution, retirement.
//
// Deploy either installs the whole batch or leaves no trace of it; a lost
// name race, a failed blob write or a disconnected client all roll back
// every blob already written for the batch.
type Usecase interface {
	Deploy(ctx context.Context, siteName, owner string, files []entity.UploadFile) (*entity.DeployResult, *types.CommonError)

	// List returns the owner's site names, sorted for display
	List(ctx context.Context, owner string) ([]string, *types.CommonError)

	// Details is owner scoped, unlike the public serving path
	Details(ctx context.Context, siteName, owner string) (*entity.SiteDetails, *types.CommonError)

	// Retire deletes the manifest first (authoritative, the site disappears
	// immediately) and then reclaims blobs best-effort. Ids that could not
	// be reclaimed come back in RetireResult.Leaked for a later sweep.
	Retire(ctx context.Context, siteName, owner string) (*entity.RetireResult, *types.CommonError)

	// ResolveFile is the public read path. Caller must Close the stream.
	ResolveFile(ctx context.Context, siteName, fileName string) (io.ReadCloser, *entity.FileRecord, *types.CommonError)
}

package avatar

import (
	"context"
	"io"

	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
)

// Usecase stores profile avatar images. Avatars live in their own blob
// namespace, separate from site files, and are addressed by a random
// store-generated id so the URL cannot be guessed.
type Usecase interface {
	Upload(ctx context.Context, owner, contentType string, payload io.Reader) (*entity.Avatar, *types.CommonError)

	// Get streams the avatar back. Serving is public, like site files.
	Get(ctx context.Context, id string) (io.ReadCloser, *entity.Avatar, *types.CommonError)
}

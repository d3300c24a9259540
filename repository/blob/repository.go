package blob

import (
	"context"
	"io"
	"time"

	types "github.com/desain-gratis/sitehost/types/http"
)

// Repository stores immutable opaque byte streams.
// The id is generated by the store on Put and is meaningful only to it.
type Repository interface {
	// Put persists the whole payload before returning
	Put(ctx context.Context, contentType string, payload io.Reader) (*Data, *types.CommonError)

	// Get opens a single pass read stream for the blob.
	// Caller must Close it, also on abandoned partial reads.
	Get(ctx context.Context, id string) (io.ReadCloser, *Data, *types.CommonError)

	// Delete is idempotent. Returns false when the id was already absent,
	// so best-effort cleanup loops can just move on.
	Delete(ctx context.Context, id string) (bool, *types.CommonError)
}

type Data struct {
	ID          string
	ContentType string
	ContentSize int64
	CreatedAt   time.Time
}

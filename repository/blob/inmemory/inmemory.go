package inmemory

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/desain-gratis/sitehost/repository/blob"
	types "github.com/desain-gratis/sitehost/types/http"
)

var _ blob.Repository = &handler{}

// To emulate the real blob storage for test & local development
type handler struct {
	mtx  *sync.Mutex
	data map[string]record
}

type record struct {
	payload     []byte
	contentType string
	createdAt   time.Time
}

func New() *handler {
	return &handler{
		mtx:  &sync.Mutex{},
		data: make(map[string]record),
	}
}

func (h *handler) Put(ctx context.Context, contentType string, payload io.Reader) (*blob.Data, *types.CommonError) {
	buf, err := io.ReadAll(payload)
	if err != nil {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusInternalServerError, Code: "UPLOAD_FAILED", Message: "Server error when writing to storage"},
			},
		}
	}

	id := uuid.NewString()
	now := time.Now()

	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.data[id] = record{
		payload:     buf,
		contentType: contentType,
		createdAt:   now,
	}

	return &blob.Data{
		ID:          id,
		ContentType: contentType,
		ContentSize: int64(len(buf)),
		CreatedAt:   now,
	}, nil
}

func (h *handler) Get(ctx context.Context, id string) (io.ReadCloser, *blob.Data, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	rec, ok := h.data[id]
	if !ok {
		return nil, nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusNotFound, Code: "BLOB_NOT_FOUND", Message: "No data at '" + id + "'"},
			},
		}
	}

	copied := make([]byte, len(rec.payload))
	copy(copied, rec.payload)

	return io.NopCloser(bytes.NewReader(copied)), &blob.Data{
		ID:          id,
		ContentType: rec.contentType,
		ContentSize: int64(len(rec.payload)),
		CreatedAt:   rec.createdAt,
	}, nil
}

func (h *handler) Delete(ctx context.Context, id string) (bool, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.data[id]; !ok {
		return false, nil
	}

	delete(h.data, id)
	return true, nil
}

// Len reports how many blobs are currently stored. Test helper.
func (h *handler) Len() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.data)
}

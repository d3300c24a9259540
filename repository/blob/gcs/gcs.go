package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/sitehost/repository/blob"
	types "github.com/desain-gratis/sitehost/types/http"
)

var _ blob.Repository = &handler{}

type handler struct {
	gcsClient  *storage.Client
	bucketName string
	namespace  string
}

func New(
	ctx context.Context,
	bucketName string,
	namespace string,
) (*handler, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &handler{
		gcsClient:  client,
		bucketName: bucketName,
		namespace:  namespace,
	}, nil
}

func (h *handler) Put(ctx context.Context, contentType string, payload io.Reader) (*blob.Data, *types.CommonError) {
	id := h.objectPath(uuid.NewString())

	object := h.gcsClient.Bucket(h.bucketName).Object(id)
	objWriter := object.NewWriter(ctx)
	objWriter.ContentType = contentType

	length, err := io.Copy(objWriter, payload)
	if err != nil {
		// generic message for user.
		// we don't want users know where do we store data
		log.Err(err).Msgf("Error writing object '%v', got %v bytes in before failure", id, length)
		return nil, uploadFailed()
	}

	err = objWriter.Close()
	if err != nil {
		log.Err(err).Msgf("Error when finish writing object '%v'", id)
		return nil, uploadFailed()
	}

	return &blob.Data{
		ID:          id,
		ContentType: contentType,
		ContentSize: length,
		CreatedAt:   time.Now(),
	}, nil
}

func (h *handler) Get(ctx context.Context, id string) (io.ReadCloser, *blob.Data, *types.CommonError) {
	object := h.gcsClient.Bucket(h.bucketName).Object(id)

	reader, err := object.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, notFound(id)
		}
		log.Err(err).Msgf("Cannot open object at '%v'", id)
		return nil, nil, storageAccessFailed()
	}

	return reader, &blob.Data{
		ID:          id,
		ContentType: reader.Attrs.ContentType,
		ContentSize: reader.Attrs.Size,
		CreatedAt:   reader.Attrs.LastModified,
	}, nil
}

func (h *handler) Delete(ctx context.Context, id string) (bool, *types.CommonError) {
	object := h.gcsClient.Bucket(h.bucketName).Object(id)

	err := object.Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			// already gone
			return false, nil
		}
		log.Err(err).Msgf("Cannot delete object at '%v'", id)
		return false, storageAccessFailed()
	}

	return true, nil
}

func (h *handler) objectPath(name string) string {
	if h.namespace == "" {
		return name
	}
	return h.namespace + "/" + name
}

func uploadFailed() *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusInternalServerError, Code: "UPLOAD_FAILED", Message: "Server error when writing to storage"},
		},
	}
}

func storageAccessFailed() *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Server error when accessing storage"},
		},
	}
}

func notFound(id string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusNotFound, Code: "BLOB_NOT_FOUND", Message: "No data at '" + id + "'"},
		},
	}
}

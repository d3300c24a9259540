package s3

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/sitehost/repository/blob"
	types "github.com/desain-gratis/sitehost/types/http"
)

var _ blob.Repository = &handler{}

type handler struct {
	client     *minio.Client
	bucketName string
	namespace  string
}

func New(
	endpoint string,
	accessKeyID string,
	secretAccessKey string,
	useSSL bool,
	bucketName string,
	namespace string,
) (*handler, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &handler{
		client:     client,
		bucketName: bucketName,
		namespace:  namespace,
	}, nil
}

func (h *handler) Put(ctx context.Context, contentType string, payload io.Reader) (*blob.Data, *types.CommonError) {
	id := h.objectPath(uuid.NewString())

	// -1: stream without knowing the size up front
	info, err := h.client.PutObject(ctx, h.bucketName, id, payload, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		// generic message for user.
		// we don't want users know where do we store data
		log.Err(err).Msgf("Failed to put object '%v'", id)
		return nil, uploadFailed()
	}

	return &blob.Data{
		ID:          id,
		ContentType: contentType,
		ContentSize: info.Size,
		CreatedAt:   time.Now(),
	}, nil
}

func (h *handler) Get(ctx context.Context, id string) (io.ReadCloser, *blob.Data, *types.CommonError) {
	object, err := h.client.GetObject(ctx, h.bucketName, id, minio.GetObjectOptions{})
	if err != nil {
		log.Err(err).Msgf("Cannot get object at '%v'", id)
		return nil, nil, storageAccessFailed()
	}

	// GetObject is lazy, Stat is the first round trip
	stat, err := object.Stat()
	if err != nil {
		object.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, notFound(id)
		}
		log.Err(err).Msgf("Cannot stat object at '%v'", id)
		return nil, nil, storageAccessFailed()
	}

	return object, &blob.Data{
		ID:          id,
		ContentType: stat.ContentType,
		ContentSize: stat.Size,
		CreatedAt:   stat.LastModified,
	}, nil
}

func (h *handler) Delete(ctx context.Context, id string) (bool, *types.CommonError) {
	_, err := h.client.StatObject(ctx, h.bucketName, id, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			// already gone
			return false, nil
		}
		log.Err(err).Msgf("Cannot stat object at '%v' before delete", id)
		return false, storageAccessFailed()
	}

	err = h.client.RemoveObject(ctx, h.bucketName, id, minio.RemoveObjectOptions{})
	if err != nil {
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

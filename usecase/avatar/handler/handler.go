package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/sitehost/repository/blob"
	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
	"github.com/desain-gratis/sitehost/usecase/avatar"
)

const AvatarURLPrefix = "/api/auth/avatar/"

var _ avatar.Usecase = &handler{}

type handler struct {
	blobRepo     blob.Repository
	maxDimension int
}

// New creates the avatar usecase. Images larger than maxDimension on either
// axis are scaled down before storage.
func New(blobRepo blob.Repository, maxDimension int) *handler {
	return &handler{
		blobRepo:     blobRepo,
		maxDimension: maxDimension,
	}
}

func (h *handler) Upload(ctx context.Context, owner, contentType string, payload io.Reader) (*entity.Avatar, *types.CommonError) {
	img, errDecode := imaging.Decode(payload, imaging.AutoOrientation(true))
	if errDecode != nil {
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Please upload a valid image file"},
			},
		}
	}

	bounds := img.Bounds()
	if bounds.Dx() > h.maxDimension || bounds.Dy() > h.maxDimension {
		img = imaging.Fit(img, h.maxDimension, h.maxDimension, imaging.Lanczos)
	}

	format, outType := encodingFor(contentType)

	var buf bytes.Buffer
	errEncode := imaging.Encode(&buf, img, format)
	if errEncode != nil {
		log.Err(errEncode).Msgf("Cannot re-encode avatar for '%v'", owner)
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Server error during picture upload"},
			},
		}
	}

	data, err := h.blobRepo.Put(ctx, outType, &buf)
	if err != nil {
		return nil, err
	}

	return &entity.Avatar{
		ID:          data.ID,
		URL:         AvatarURLPrefix + data.ID,
		ContentType: data.ContentType,
		ContentSize: data.ContentSize,
	}, nil
}

func (h *handler) Get(ctx context.Context, id string) (io.ReadCloser, *entity.Avatar, *types.CommonError) {
	payload, data, err := h.blobRepo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return payload, &entity.Avatar{
		ID:          data.ID,
		URL:         AvatarURLPrefix + data.ID,
		ContentType: data.ContentType,
		ContentSize: data.ContentSize,
	}, nil
}

// encodingFor keeps png and gif as-is, everything else becomes jpeg
func encodingFor(contentType string) (imaging.Format, string) {
	switch contentType {
	case "image/png":
		return imaging.PNG, "image/png"
	case "image/gif":
		return imaging.GIF, "image/gif"
	default:
		return imaging.JPEG, "image/jpeg"
	}
}

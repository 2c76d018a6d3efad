package v1

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/imgvault/imgvault/internal/controller/restapi/v1/response"
	"github.com/imgvault/imgvault/internal/controller/restapi/v1/validate"
	"github.com/imgvault/imgvault/internal/entity"
	"github.com/imgvault/imgvault/pkg/types/errs"
)

// @Summary  	Upload image
// @Description Streams the payload to the blob store, then publishes the metadata record. Re-uploading an existing name overwrites it.
// @Tags 		images
// @Accept 		mpfd
// @Produce 	json
// @Param 		file formData file   true  "Image file"
// @Param 		name formData string false "Image name (defaults to the filename stem)"
// @Success 	201 {object} response.ImageMetadata
// @Failure 	400 {object} response.Error "Missing or empty file, unusable name"
// @Failure 	413 {object} response.Error "File too large"
// @Failure 	415 {object} response.Error "Extension not allowed"
// @Failure 	502 {object} response.Error "Store unavailable"
// @Router 		/v1/images [post]
func (r *V1) uploadImage(ctx *fiber.Ctx) error {
	file, err := ctx.FormFile("file")
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "file is required")
	}

	if file.Size == 0 {
		return errorResponse(ctx, http.StatusBadRequest, "file is empty")
	}

	if file.Size > validate.MaxFileSize {
		return errorResponse(ctx, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file size cant be more than %d bytes", validate.MaxFileSize))
	}

	name := ctx.FormValue("name")
	if len(name) > validate.MaxNameLen {
		return errorResponse(ctx, http.StatusBadRequest,
			fmt.Sprintf("name cant be longer than %d characters", validate.MaxNameLen))
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = guessContentType(file.Filename)
	}

	fileReader, err := file.Open()
	if err != nil {
		r.logger.Error(err, "restapi - v1 - uploadImage")

		return errorResponse(ctx, http.StatusInternalServerError, "problems with opening the file")
	}
	defer fileReader.Close()

	record, err := r.img.Upload(ctx.UserContext(), name, file.Filename, contentType, fileReader)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidInput):
			return errorResponse(ctx, http.StatusBadRequest, "image name is required and must contain letters, digits, '-' or '_'")
		case errors.Is(err, errs.ErrUnsupportedType):
			return errorResponse(ctx, http.StatusUnsupportedMediaType, "unsupported file extension")
		}
		r.logger.Error(err, "restapi - v1 - uploadImage")

		return errorResponse(ctx, http.StatusBadGateway, "storage problems")
	}

	return ctx.Status(http.StatusCreated).JSON(toMetadataResponse(record))
}

// @Summary 	Download image
// @Description Streams the payload back with the content type inferred from the extension
// @Tags 		images
// @Produce 	application/octet-stream
// @Param 		name path string true "Image name"
// @Success 	200 {file} 	binary
// @Failure 	404 {object} response.Error "Image not found"
// @Failure 	500 {object} response.Error "Record exists but the payload is missing"
// @Failure 	502 {object} response.Error "Store unavailable"
// @Router 		/v1/images/{name} [get]
func (r *V1) downloadImage(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	if name == "" {
		return errorResponse(ctx, http.StatusBadRequest, "invalid name")
	}

	body, record, err := r.img.Fetch(ctx.UserContext(), name)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrRecordNotFound):
			return errorResponse(ctx, http.StatusNotFound, "image not found")
		case errors.Is(err, errs.ErrInconsistent):
			r.logger.Error(err, "restapi - v1 - downloadImage")

			return errorResponse(ctx, http.StatusInternalServerError, "image payload is missing")
		}
		r.logger.Error(err, "restapi - v1 - downloadImage")

		return errorResponse(ctx, http.StatusBadGateway, "storage problems")
	}

	filename := fmt.Sprintf("%s.%s", record.Name, record.Extension)

	ctx.Set(fiber.HeaderContentType, guessContentType(filename))
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))

	return ctx.SendStream(body)
}

// @Summary 	Get image metadata
// @Tags 		images
// @Produce 	json
// @Param 		name path string true "Image name"
// @Success 	200 {object} response.ImageMetadata
// @Failure 	404 {object} response.Error "Image not found"
// @Failure 	502 {object} response.Error "Store unavailable"
// @Router 		/v1/images/{name}/metadata [get]
func (r *V1) getImageMetadata(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	if name == "" {
		return errorResponse(ctx, http.StatusBadRequest, "invalid name")
	}

	record, err := r.img.Metadata(ctx.UserContext(), name)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "image not found")
		}
		r.logger.Error(err, "restapi - v1 - getImageMetadata")

		return errorResponse(ctx, http.StatusBadGateway, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(toMetadataResponse(record))
}

// @Summary 	Get random image metadata
// @Description Returns the metadata of one image picked uniformly over all live records
// @Tags 		images
// @Produce 	json
// @Success 	200 {object} response.ImageMetadata
// @Failure 	404 {object} response.Error "No images available"
// @Failure 	502 {object} response.Error "Store unavailable"
// @Router 		/v1/images/random/metadata [get]
func (r *V1) getRandomImageMetadata(ctx *fiber.Ctx) error {
	record, err := r.img.RandomMetadata(ctx.UserContext())
	if err != nil {
		if errors.Is(err, errs.ErrEmptyStore) {
			return errorResponse(ctx, http.StatusNotFound, "no images available")
		}
		r.logger.Error(err, "restapi - v1 - getRandomImageMetadata")

		return errorResponse(ctx, http.StatusBadGateway, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(toMetadataResponse(record))
}

// @Summary 	Delete image
// @Description Deletes the payload from the blob store, then the metadata record
// @Tags 		images
// @Produce 	json
// @Param		name path string true "Image name"
// @Success		200 {object} response.DeleteResult
// @Failure 	404 {object} response.Error "Image not found"
// @Failure 	502 {object} response.Error "Store unavailable"
// @Router 		/v1/images/{name} [delete]
func (r *V1) deleteImage(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	if name == "" {
		return errorResponse(ctx, http.StatusBadRequest, "invalid name")
	}

	err := r.img.Delete(ctx.UserContext(), name)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			return errorResponse(ctx, http.StatusNotFound, "image not found")
		}
		r.logger.Error(err, "restapi - v1 - deleteImage")

		return errorResponse(ctx, http.StatusBadGateway, "storage problems")
	}

	return ctx.Status(http.StatusOK).JSON(response.DeleteResult{Name: name, Deleted: true})
}

func toMetadataResponse(record *entity.ImageRecord) response.ImageMetadata {
	return response.ImageMetadata{
		Name:          record.Name,
		SizeBytes:     record.SizeBytes,
		Extension:     record.Extension,
		LastUpdatedAt: record.LastUpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func guessContentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

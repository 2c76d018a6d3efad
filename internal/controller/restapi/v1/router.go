package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/imgvault/imgvault/internal/usecase"
	"github.com/imgvault/imgvault/pkg/logger"
)

func NewImageRoutes(apiV1Group fiber.Router, img usecase.ImageUseCase, l logger.Interface) {
	r := &V1{img: img, logger: l}

	{
		// the random route is registered before the :name routes so fiber
		// does not capture "random" as an image name
		apiV1Group.Get("/images/random/metadata", r.getRandomImageMetadata)

		apiV1Group.Post("/images", r.uploadImage)
		apiV1Group.Get("/images/:name/metadata", r.getImageMetadata)
		apiV1Group.Get("/images/:name", r.downloadImage)
		apiV1Group.Delete("/images/:name", r.deleteImage)
	}
}

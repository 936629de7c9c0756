package admin

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"wasteportal-backend/internal/audit"
	"wasteportal-backend/internal/auth"
	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/database"
	"wasteportal-backend/internal/models"
	"wasteportal-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StorageUsageResponse struct {
	Kind models.SubmissionKind `json:"kind"`
	storage.BucketUsage
}

type ClearBucketResponse struct {
	Bucket         string `json:"bucket"`
	DeletedObjects int    `json:"deleted_objects"`
	DeletedImages  int64  `json:"deleted_images"`
}

// bucketParam maps ":bucket" ("mess" or "hostel") to its kind and bucket name.
func bucketParam(c *fiber.Ctx, cfg *config.Config) (models.SubmissionKind, string, error) {
	kind, err := models.ParseKind(c.Params("bucket"))
	if err != nil {
		return "", "", fiber.NewError(fiber.StatusNotFound, "bucket must be mess or hostel")
	}
	return kind, storage.BucketFor(cfg, kind), nil
}

// GET /api/admin/storage
func StorageUsageHandler(cfg *config.Config, store storage.Store, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := make([]StorageUsageResponse, 0, 2)
		for _, kind := range []models.SubmissionKind{models.KindMessWaste, models.KindHostelWaste} {
			usage, err := storage.Usage(c.UserContext(), store, storage.BucketFor(cfg, kind))
			if err != nil {
				logger.Error("bucket usage failed", zap.String("kind", string(kind)), zap.Error(err))
				return fiber.NewError(fiber.StatusBadGateway, "could not read object storage")
			}
			res = append(res, StorageUsageResponse{Kind: kind, BucketUsage: usage})
		}
		return c.JSON(res)
	}
}

// GET /api/admin/storage/:bucket/archive
func ArchiveBucketHandler(cfg *config.Config, store storage.Store, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, bucket, err := bucketParam(c, cfg)
		if err != nil {
			return err
		}

		objects, err := storage.ArchiveContents(c.UserContext(), store, bucket)
		if err != nil {
			logger.Error("bucket archive failed", zap.String("bucket", bucket), zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "could not archive bucket")
		}

		filename := fmt.Sprintf("%s-%s.zip", bucket, time.Now().Format("20060102"))
		c.Set(fiber.HeaderContentType, "application/zip")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		c.Set("X-Object-Count", fmt.Sprint(len(objects)))

		// The body is written after the handler returns, so it cannot use the request context.
		// A failure past this point can only truncate the download.
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			if err := storage.WriteArchive(context.Background(), store, bucket, objects, w); err != nil {
				logger.Error("bucket archive interrupted", zap.String("bucket", bucket), zap.Error(err))
			}
			if err := w.Flush(); err != nil {
				logger.Warn("archive download aborted", zap.String("bucket", bucket), zap.Error(err))
			}
		})
		return nil
	}
}

// DELETE /api/admin/storage/:bucket?confirm=true
// Removes every object of the bucket and the image rows pointing at it.
func ClearBucketHandler(cfg *config.Config, store storage.Store, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, bucket, err := bucketParam(c, cfg)
		if err != nil {
			return err
		}
		if c.Query("confirm") != "true" {
			return fiber.NewError(fiber.StatusBadRequest, "pass confirm=true to delete every image")
		}

		admin, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		keys, err := storage.Clear(c.UserContext(), store, bucket)
		if err != nil {
			logger.Error("bucket clear failed", zap.String("bucket", bucket), zap.Error(err))
			return fiber.NewError(fiber.StatusBadGateway, "could not delete images")
		}

		res := ClearBucketResponse{Bucket: bucket, DeletedObjects: len(keys)}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			result := tx.Where("bucket = ? AND submission_kind = ?", bucket, kind).Delete(&models.SubmissionImage{})
			if result.Error != nil {
				return result.Error
			}
			res.DeletedImages = result.RowsAffected
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      admin.ID,
				UserName:    admin.Name,
				EntityType:  "storage",
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("deleted %d objects from %s", len(keys), bucket),
				After:       res,
			})
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "objects deleted but image rows could not be removed")
		}

		logger.Info("bucket cleared",
			zap.String("bucket", bucket),
			zap.Int("objects", len(keys)),
			zap.Int64("image_rows", res.DeletedImages),
			zap.String("admin", admin.Username),
		)
		return c.JSON(res)
	}
}

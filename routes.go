package main

import (
	"errors"
	"net/http"
	"strconv"

	"paper-kb/app"
	"paper-kb/models"
	"paper-kb/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newRouter(a *app.App, runner *app.Runner) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(a.Config))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupRunRoutes(router, a, runner)
	setupDedupRoutes(router, a.Dedup, a.Logger)
	setupWorkRoutes(router, a.DB, a.Logger)
	return router
}

func setupRunRoutes(router *gin.Engine, a *app.App, runner *app.Runner) {
	rg := router.Group("/runs")

	// Startet einen Lauf über INPUT_DIR im Hintergrund
	rg.POST("", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		runID, err := runner.Start(c.Request.Context(), limit)
		if errors.Is(err, app.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "active_run": runner.Active()})
			return
		}
		if err != nil {
			a.Logger.Error("Run start failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
	})

	rg.DELETE("/active", func(c *gin.Context) {
		if !runner.Stop() {
			c.JSON(http.StatusNotFound, gin.H{"error": "kein aktiver Lauf"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stopping": true})
	})

	rg.GET("", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := a.Runs.List(c.Request.Context(), limit)
		if err != nil {
			a.Logger.Error("Database query for runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"active_run": runner.Active(), "runs": runs})
	})

	rg.GET("/:id", func(c *gin.Context) {
		run, err := a.Runs.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, run)
	})
}

func setupDedupRoutes(router *gin.Engine, dedup *services.DedupService, log *zap.Logger) {
	router.POST("/dedup", func(c *gin.Context) {
		dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
		report, err := dedup.Run(c.Request.Context(), dryRun)
		if err != nil {
			log.Error("Dedup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})
}

type workDetail struct {
	models.Work
	Contributors []string              `json:"contributors"`
	Tags         []string              `json:"tags"`
	Metadata     []models.WorkMetadata `json:"metadata"`
}

func setupWorkRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/works")

	rg.GET("", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		q := db.WithContext(c.Request.Context()).Order("id").Limit(limit).Offset(offset)
		if ext := c.Query("external_id"); ext != "" {
			q = q.Where("external_id = ?", services.NormalizeDOI(ext))
		}
		var works []models.Work
		if err := q.Find(&works).Error; err != nil {
			log.Error("Database query for works failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, works)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		tx := db.WithContext(c.Request.Context())

		var detail workDetail
		if err := tx.First(&detail.Work, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "work not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		err = tx.Model(&models.Contributor{}).
			Joins("JOIN work_contributors ON work_contributors.contributor_id = contributors.id").
			Where("work_contributors.work_id = ?", id).
			Order("work_contributors.position").
			Pluck("contributors.name", &detail.Contributors).Error
		if err == nil {
			err = tx.Model(&models.Tag{}).
				Joins("JOIN work_tags ON work_tags.tag_id = tags.id").
				Where("work_tags.work_id = ?", id).
				Order("tags.name").
				Pluck("tags.name", &detail.Tags).Error
		}
		if err == nil {
			err = tx.Where("work_id = ?", id).Order("meta_key").Find(&detail.Metadata).Error
		}
		if err != nil {
			log.Error("Database query for work details failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, detail)
	})
}

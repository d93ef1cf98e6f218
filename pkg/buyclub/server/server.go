// Package server assembles the HTTP router and first-run bootstrap used by
// cmd/buyclub-server.
package server

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/buyclub/buyclub/pkg/buyclub/admin"
	"github.com/buyclub/buyclub/pkg/buyclub/auth"
	"github.com/buyclub/buyclub/pkg/buyclub/config"
	"github.com/buyclub/buyclub/pkg/buyclub/events"
	"github.com/buyclub/buyclub/pkg/buyclub/groups"
	"github.com/buyclub/buyclub/pkg/buyclub/importexport"
	"github.com/buyclub/buyclub/pkg/buyclub/logging"
	"github.com/buyclub/buyclub/pkg/buyclub/messages"
	"github.com/buyclub/buyclub/pkg/buyclub/metrics"
	"github.com/buyclub/buyclub/pkg/buyclub/models"
	"github.com/buyclub/buyclub/pkg/buyclub/products"
)

const (
	defaultAdminEmail    = "admin@buyclub.local"
	defaultAdminPassword = "changeme"
)

// spaRoutes are frontend paths that fall back to index.html
var spaRoutes = []string{"/", "/login", "/register", "/dashboard", "/groups", "/settings", "/admin"}

// NewRouter registers every route on a fresh engine
func NewRouter(db *gorm.DB, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(), metrics.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "buyclub",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db)
		authHandler.RegisterRoutes(api.Group("/auth"))

		// Everything under /groups needs a token
		groupsGroup := api.Group("/groups")
		groupsGroup.Use(auth.AuthMiddleware())

		groupsHandler := groups.NewHandler(db).WithDefaultMaxActive(cfg.DefaultMaxActive)
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterMemberRoutes(groupsGroup)

		products.NewHandler(db).RegisterRoutes(groupsGroup)
		importexport.NewHandler(db).RegisterRoutes(groupsGroup)
		messages.NewHandler(db).RegisterRoutes(groupsGroup)
		events.NewHandler(db).RegisterRoutes(groupsGroup)

		// Admin routes (admin role required)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireAdmin())
		admin.NewHandler(db).RegisterRoutes(adminGroup)
	}

	serveFrontend(r, cfg.StaticDir)
	return r
}

// serveFrontend mounts a built SPA when dir holds one
func serveFrontend(r *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	indexHTML := filepath.Join(dir, "index.html")
	if _, err := os.Stat(indexHTML); err != nil {
		slog.Info("no frontend build found, API only mode", "dir", dir)
		return
	}

	r.Static("/assets", filepath.Join(dir, "assets"))
	r.StaticFile("/favicon.ico", filepath.Join(dir, "favicon.ico"))
	r.StaticFile("/robots.txt", filepath.Join(dir, "robots.txt"))

	for _, route := range spaRoutes {
		r.GET(route, func(c *gin.Context) {
			c.File(indexHTML)
		})
	}
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(404, gin.H{"error": "Not found"})
			return
		}
		c.File(indexHTML)
	})

	slog.Info("serving frontend", "dir", dir)
}

// EnsureAdminExists creates a default system admin if none exists yet.
// The new admin also gets a starter group so the dashboard is not empty.
func EnsureAdminExists(db *gorm.DB, cfg config.Config) error {
	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email := cfg.AdminEmail
	if email == "" {
		email = defaultAdminEmail
	}
	password := cfg.AdminPassword
	if password == "" {
		password = defaultAdminPassword
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		adminUser := models.User{
			Email:        email,
			Username:     "admin",
			FirstName:    "Admin",
			PasswordHash: hashedPassword,
			SystemRole:   models.SystemRoleAdmin,
		}
		if err := tx.Create(&adminUser).Error; err != nil {
			return err
		}

		group := models.Group{
			Name:              "Admin's Buying Club",
			Description:       "Starter buying club for the site administrator",
			Category:          "general",
			MaxActiveProducts: cfg.DefaultMaxActive,
			CreatedByID:       adminUser.ID,
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		membership := models.GroupMembership{
			UserID:  adminUser.ID,
			GroupID: group.ID,
			Role:    models.GroupRoleAdmin,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		if cfg.AdminPassword == "" {
			slog.Warn("created default admin user with the built-in password", "email", email)
		} else {
			slog.Info("created admin user", "email", email)
		}
		return nil
	})
}

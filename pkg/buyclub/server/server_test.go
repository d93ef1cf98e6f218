package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/buyclub/buyclub/pkg/buyclub/auth"
	"github.com/buyclub/buyclub/pkg/buyclub/config"
	"github.com/buyclub/buyclub/pkg/buyclub/models"
	"github.com/buyclub/buyclub/pkg/buyclub/ranking"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func setupFullServer(t *testing.T, db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.StaticDir = ""
	return NewRouter(db, cfg)
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// TestServerStartup verifies that all routes can be registered without conflicts
func TestServerStartup(t *testing.T) {
	db := setupTestDB(t)

	// gin panics on conflicting wildcard names
	router := setupFullServer(t, db)

	if router == nil {
		t.Fatal("Expected router to be created")
	}
}

func TestHealthEndpoints(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	for _, path := range []string{"/health", "/api/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp := doJSON(t, router, "GET", path, "", nil)
			if resp.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", resp.Code)
			}
		})
	}
}

// TestProtectedEndpointsRequireAuth verifies that protected endpoints return 401 without auth
func TestProtectedEndpointsRequireAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	protectedEndpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/groups"},
		{"POST", "/api/groups"},
		{"GET", "/api/groups/1/products"},
		{"POST", "/api/groups/1/products/abc/vote"},
		{"GET", "/api/groups/1/messages"},
		{"GET", "/api/groups/1/events"},
		{"GET", "/api/groups/1/products/export"},
		{"GET", "/api/admin/users"},
		{"GET", "/api/auth/me"},
	}

	for _, endpoint := range protectedEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			resp := doJSON(t, router, endpoint.method, endpoint.path, "", nil)
			if resp.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401 for %s %s, got %d", endpoint.method, endpoint.path, resp.Code)
			}
		})
	}
}

// TestPublicEndpointsNoAuth verifies that public endpoints don't require auth
func TestPublicEndpointsNoAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	publicEndpoints := []struct {
		method       string
		path         string
		expectedCode int
	}{
		{"POST", "/api/auth/register", http.StatusBadRequest},
		{"POST", "/api/auth/login", http.StatusBadRequest},
		{"POST", "/api/auth/logout", http.StatusOK},
		{"GET", "/nonexistent", http.StatusNotFound},
	}

	for _, endpoint := range publicEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			resp := doJSON(t, router, endpoint.method, endpoint.path, "", nil)
			if resp.Code != endpoint.expectedCode {
				t.Errorf("Expected status %d for %s %s, got %d", endpoint.expectedCode, endpoint.method, endpoint.path, resp.Code)
			}
		})
	}
}

func TestAdminRoutesRequireSystemAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	token, _ := auth.GenerateToken(7, "someone@example.com", string(models.SystemRoleUser))
	resp := doJSON(t, router, "GET", "/api/admin/stats", token, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func register(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()
	resp := doJSON(t, router, "POST", "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 registering %s, got %d: %s", username, resp.Code, resp.Body.String())
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body.Token == "" {
		t.Fatalf("Expected token in register response: %s", resp.Body.String())
	}
	return body.Token
}

// TestBuyingClubFlow drives a group from creation through voting over HTTP
func TestBuyingClubFlow(t *testing.T) {
	db := setupTestDB(t)
	router := setupFullServer(t, db)

	aliceToken := register(t, router, "alice")
	bobToken := register(t, router, "bob")

	resp := doJSON(t, router, "POST", "/api/groups", aliceToken, map[string]any{
		"name":              "Oak Street Co-op",
		"description":       "Bulk staples for the neighbourhood",
		"category":          "food",
		"location":          map[string]string{"city": "Portland", "zipCode": "97201"},
		"maxActiveProducts": 1,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var group struct {
		ID uint `json:"id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &group)
	base := fmt.Sprintf("/api/groups/%d", group.ID)

	resp = doJSON(t, router, "POST", base+"/join", bobToken, nil)
	if resp.Code != http.StatusOK && resp.Code != http.StatusCreated {
		t.Fatalf("Expected join to succeed, got %d: %s", resp.Code, resp.Body.String())
	}

	suggest := func(token, name string) string {
		resp := doJSON(t, router, "POST", base+"/products", token, map[string]any{"name": name})
		if resp.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
		}
		var body struct {
			Product ranking.ProductView `json:"product"`
		}
		json.Unmarshal(resp.Body.Bytes(), &body)
		return body.Product.ID
	}
	oatsID := suggest(aliceToken, "Rolled Oats")
	riceID := suggest(aliceToken, "Brown Rice")

	// Bob's upvote puts rice ahead of oats and takes the only active slot
	resp = doJSON(t, router, "POST", base+"/products/"+riceID+"/vote", bobToken, map[string]string{"vote": "up"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, router, "GET", base+"/products", bobToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var list struct {
		Products []ranking.ProductView `json:"products"`
		Metrics  ranking.Metrics       `json:"metrics"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to parse list: %v", err)
	}
	if len(list.Products) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(list.Products))
	}
	if list.Products[0].ID != riceID || list.Products[1].ID != oatsID {
		t.Errorf("Expected rice then oats, got %s then %s", list.Products[0].Name, list.Products[1].Name)
	}
	if list.Products[0].Status != models.ProductStatusActive {
		t.Errorf("Expected rice to be active, got %s", list.Products[0].Status)
	}
	if list.Products[1].Status != models.ProductStatusRequested {
		t.Errorf("Expected oats to be requested, got %s", list.Products[1].Status)
	}
	if list.Metrics.ActiveCount != 1 || list.Metrics.MaxActiveProducts != 1 {
		t.Errorf("Expected 1 active of cap 1, got %+v", list.Metrics)
	}

	// Bob is not an admin and cannot remove products
	resp = doJSON(t, router, "DELETE", base+"/products/"+oatsID, bobToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	resp = doJSON(t, router, "POST", base+"/messages", bobToken, map[string]string{"content": "Pickup moved to Saturday"})
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestEnsureAdminExists(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Default()

	if err := EnsureAdminExists(db, cfg); err != nil {
		t.Fatalf("EnsureAdminExists failed: %v", err)
	}

	var admin models.User
	if err := db.Where("email = ?", defaultAdminEmail).First(&admin).Error; err != nil {
		t.Fatalf("Expected default admin to exist: %v", err)
	}
	if admin.SystemRole != models.SystemRoleAdmin {
		t.Errorf("Expected admin role, got %s", admin.SystemRole)
	}
	if !auth.CheckPassword(defaultAdminPassword, admin.PasswordHash) {
		t.Error("Expected default password to match")
	}

	var membership models.GroupMembership
	if err := db.Where("user_id = ?", admin.ID).First(&membership).Error; err != nil {
		t.Fatalf("Expected starter group membership: %v", err)
	}
	if membership.Role != models.GroupRoleAdmin {
		t.Errorf("Expected group admin role, got %s", membership.Role)
	}

	// Second run is a no-op
	if err := EnsureAdminExists(db, cfg); err != nil {
		t.Fatalf("EnsureAdminExists failed: %v", err)
	}
	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 user, got %d", count)
	}
}

func TestEnsureAdminExistsUsesConfiguredCredentials(t *testing.T) {
	db := setupTestDB(t)
	cfg := config.Default()
	cfg.AdminEmail = "ops@example.com"
	cfg.AdminPassword = "s3cret-pass"

	if err := EnsureAdminExists(db, cfg); err != nil {
		t.Fatalf("EnsureAdminExists failed: %v", err)
	}

	var admin models.User
	if err := db.Where("email = ?", "ops@example.com").First(&admin).Error; err != nil {
		t.Fatalf("Expected configured admin to exist: %v", err)
	}
	if !auth.CheckPassword("s3cret-pass", admin.PasswordHash) {
		t.Error("Expected configured password to match")
	}
}

func TestFrontendFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>buyclub</html>"), 0o600); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}

	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.StaticDir = dir
	router := NewRouter(setupTestDB(t), cfg)

	resp := doJSON(t, router, "GET", "/groups/42", "", nil)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 for SPA route, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("buyclub")) {
		t.Errorf("Expected index.html body, got %q", resp.Body.String())
	}

	resp = doJSON(t, router, "GET", "/api/nope", "", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown API path, got %d", resp.Code)
	}
}

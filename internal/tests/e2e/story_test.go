//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/storycreator/apiserver/config"
	"github.com/storycreator/apiserver/internal/server"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestStoryLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("alice_%d", time.Now().UnixNano())
	password := "testpass123!"

	creds, err := registerUser(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}

	stories, err := listStories(t, baseURL, creds.AccessToken, "")
	if err != nil {
		t.Fatalf("list stories: %v", err)
	}
	if len(stories) != 0 {
		t.Fatalf("expected no stories for a fresh database, got %d", len(stories))
	}

	created, err := createStory(t, baseURL, creds.AccessToken, "A", "hello!", nil)
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if created.Likes != 0 {
		t.Fatalf("expected new story to start at 0 likes, got %d", created.Likes)
	}
	if created.Username != username {
		t.Fatalf("expected story owner %q, got %q", username, created.Username)
	}

	tagged, err := createStory(t, baseURL, creds.AccessToken, "B", "world!", []string{"fantasy"})
	if err != nil {
		t.Fatalf("create tagged story: %v", err)
	}

	stories, err = listStories(t, baseURL, creds.AccessToken, "")
	if err != nil {
		t.Fatalf("list stories: %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(stories))
	}
	if stories[0].ID != tagged.ID || stories[1].ID != created.ID {
		t.Fatalf("expected newest-first ordering [%d %d], got [%d %d]",
			tagged.ID, created.ID, stories[0].ID, stories[1].ID)
	}

	filtered, err := listStories(t, baseURL, creds.AccessToken, "fantasy")
	if err != nil {
		t.Fatalf("list stories by tag: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != tagged.ID {
		t.Fatalf("expected tag filter to return only story %d, got %v", tagged.ID, filtered)
	}

	liked, err := likeStory(t, baseURL, creds.AccessToken, created.ID)
	if err != nil {
		t.Fatalf("like story: %v", err)
	}
	if liked.Story.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", liked.Story.Likes)
	}
	if liked.User == nil || len(liked.User.LikedStories) != 1 {
		t.Fatalf("expected one liked-story snapshot on the user")
	}
	if liked.User.LikedStories[0].Likes != 1 {
		t.Fatalf("expected snapshot to carry the incremented count, got %d", liked.User.LikedStories[0].Likes)
	}

	liked, err = likeStory(t, baseURL, creds.AccessToken, created.ID)
	if err != nil {
		t.Fatalf("like story again: %v", err)
	}
	if liked.Story.Likes != 2 {
		t.Fatalf("expected 2 likes after a repeat like, got %d", liked.Story.Likes)
	}
	if liked.User == nil || len(liked.User.LikedStories) != 2 {
		t.Fatalf("expected a second snapshot after a repeat like")
	}

	intruder, err := registerUser(t, baseURL, username+"_bob", password)
	if err != nil {
		t.Fatalf("register second user: %v", err)
	}
	if err := deleteStory(t, baseURL, intruder.AccessToken, created.ID, http.StatusForbidden); err != nil {
		t.Fatalf("expected non-owner delete to be rejected: %v", err)
	}
	if err := deleteStory(t, baseURL, creds.AccessToken, created.ID, http.StatusOK); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := deleteStory(t, baseURL, creds.AccessToken, created.ID, http.StatusNotFound); err != nil {
		t.Fatalf("expected delete of a removed story to 404: %v", err)
	}
}

type credentialsResponse struct {
	Username    string `json:"username"`
	ID          int64  `json:"id"`
	AccessToken string `json:"accessToken"`
}

type storyResponse struct {
	ID    int64 `json:"id"`
	Story struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	} `json:"story"`
	Likes    int64  `json:"likes"`
	Username string `json:"username"`
}

type userResponse struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	LikedStories []storyResponse `json:"likedStories"`
}

type likeResponse struct {
	Story            storyResponse `json:"story"`
	User             *userResponse `json:"user"`
	SnapshotAppended bool          `json:"snapshotAppended"`
}

func registerUser(t *testing.T, baseURL, username, password string) (credentialsResponse, error) {
	t.Helper()

	payload := map[string]string{
		"username": username,
		"password": password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return credentialsResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return credentialsResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return credentialsResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return credentialsResponse{}, fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed credentialsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return credentialsResponse{}, err
	}
	if parsed.AccessToken == "" {
		return credentialsResponse{}, fmt.Errorf("missing access token in register response")
	}
	return parsed, nil
}

func listStories(t *testing.T, baseURL, token, tag string) ([]storyResponse, error) {
	t.Helper()

	listURL := baseURL + "/stories"
	if tag != "" {
		listURL += "?tags=" + url.QueryEscape(tag)
	}
	req, err := http.NewRequest(http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	// Clients send the raw token, no Bearer prefix.
	req.Header.Set("Authorization", token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list stories status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed []storyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func createStory(t *testing.T, baseURL, token, name, content string, tags []string) (storyResponse, error) {
	t.Helper()

	story := map[string]any{
		"name":         name,
		"storyContent": content,
	}
	if len(tags) > 0 {
		story["tags"] = tags
	}
	payload := map[string]any{"story": story}
	body, err := json.Marshal(payload)
	if err != nil {
		return storyResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/stories", bytes.NewReader(body))
	if err != nil {
		return storyResponse{}, err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return storyResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return storyResponse{}, fmt.Errorf("create story status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed storyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return storyResponse{}, err
	}
	return parsed, nil
}

func likeStory(t *testing.T, baseURL, token string, id int64) (likeResponse, error) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPatch, fmt.Sprintf("%s/stories/%d", baseURL, id), nil)
	if err != nil {
		return likeResponse{}, err
	}
	req.Header.Set("Authorization", token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return likeResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return likeResponse{}, fmt.Errorf("like story status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed likeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return likeResponse{}, err
	}
	return parsed, nil
}

func deleteStory(t *testing.T, baseURL, token string, id int64, wantStatus int) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/stories/%d", baseURL, id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete story status %d, want %d: %s", resp.StatusCode, wantStatus, strings.TrimSpace(string(msg)))
	}
	return nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "storycreator")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "storycreator_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	// Image storage and the like-event queue stay disabled so the suite
	// only needs postgres.
	_ = os.Setenv("STORAGE_PROVIDER", "")
	_ = os.Setenv("MQ_PROVIDER", "")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}

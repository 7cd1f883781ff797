package main

import (
	"context"
	"log"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/collab"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/config"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/handlers"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/share"
	"github.com/JingZHANG-CUHKSZ/todolist/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	st, layout, creds, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create store adapter: %v", err)
	}
	defer st.Close()

	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}

	roomHandler := handlers.NewRoomHandler(handlers.RoomHandlerConfig{
		Store:        st,
		Layout:       layout,
		PollInterval: cfg.PollInterval,
		BaseURL:      baseURL,
		Credentials:  creds,
	})

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	roomHandler.Register(e)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "backend": string(cfg.Backend)})
	})

	log.Printf("Server starting on port %s (backend: %s)", cfg.Port, cfg.Backend)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// buildStore selects the backend adapter and the key layout that goes with
// it. Only the github backend has shareable credentials.
func buildStore(cfg config.Config) (store.RemoteStore, collab.Layout, *share.Credentials, error) {
	switch cfg.Backend {
	case config.BackendFirestore:
		st, err := store.NewFirestoreStore(context.Background(), cfg.ProjectID)
		return st, collab.RoomLayout, nil, err
	case config.BackendGitHub:
		st := store.NewGitHubStore(store.GitHubConfig{
			Owner:  cfg.GitHubOwner,
			Repo:   cfg.GitHubRepo,
			Branch: cfg.GitHubBranch,
			Token:  cfg.GitHubToken,
		})
		creds := &share.Credentials{
			Owner:  cfg.GitHubOwner,
			Repo:   cfg.GitHubRepo,
			Branch: cfg.GitHubBranch,
			Token:  cfg.GitHubToken,
		}
		return st, collab.GroupLayout, creds, nil
	case config.BackendLocal:
		st, err := store.NewSQLiteStore(cfg.SQLitePath)
		return st, collab.RoomLayout, nil, err
	default:
		return store.NewMemoryStore(), collab.RoomLayout, nil, nil
	}
}

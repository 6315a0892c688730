package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/v09-software/cubico/internal/api"
	"github.com/v09-software/cubico/internal/config"
	"github.com/v09-software/cubico/internal/engine"
	"github.com/v09-software/cubico/internal/ingest"
)

func main() {
	cfg, err := config.Load(os.Getenv("CUBICO_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(api.ParseLevel(cfg.Logging.Level))

	// 1. Initialize Echo with an empty handler.
	// The API is live immediately but answers 503 until the dataset is in.
	h := api.NewHandler(nil, cfg.Query)
	e := api.NewServer(cfg, h)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Load the dataset in the background
	go func() {
		log.Info("BACKGROUND: Loading dataset...")
		t0 := time.Now()

		cube, err := loadDataset(ctx, cfg.Data)
		if err != nil {
			log.Errorf("BACKGROUND: load failed: %v", err)
			return
		}
		h.SetCube(cube)

		log.Infof("BACKGROUND: Load complete in %v (%d records). API is fully ready.", time.Since(t0), cube.NbrOfRecords())
	}()

	// 3. Start Server
	go func() {
		log.Infof("Server ready on %s (data loading in background...)", cfg.Server.Addr)
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}
}

// loadDataset builds the startup cube from a CSV file or a SQLite query.
// With neither configured the server starts with an empty cube.
func loadDataset(ctx context.Context, data config.DataConfig) (*engine.Cube, error) {
	switch {
	case data.CSVPath != "":
		return ingest.LoadCSV(data.CSVPath)
	case data.SQLiteDSN != "":
		db, err := ingest.OpenSQLite(data.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		cube := engine.New()
		n, err := ingest.ReadSQL(ctx, db, cube, data.SQLiteQuery)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Infof("Loaded %d rows from %s", n, data.SQLiteDSN)
		return cube, nil
	default:
		log.Warn("No dataset configured, starting with an empty cube")
		return engine.New(), nil
	}
}

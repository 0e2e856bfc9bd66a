// Package app wires the node together: storage, session layer, retention
// scheduler and the HTTP surface, with a single lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"meshchat/internal/retention"
	"meshchat/pkg/attachments"
	"meshchat/pkg/chat"
	"meshchat/pkg/config"
	"meshchat/pkg/localstore"
	"meshchat/pkg/logger"
	"meshchat/pkg/store"
)

// App encapsulates the node components and lifecycle.
type App struct {
	cfg     *config.Config
	addr    string
	dataDir string

	version   string
	commit    string
	buildDate string

	local  *localstore.Store
	attach *attachments.Store
	svc    *chat.Service

	srv *http.Server
}

// New initializes everything that does not require a running context: the
// replica store, the device-local store, the attachment store and the chat
// session. Call Run to start the scheduler and HTTP server.
func New(cfg *config.Config, addr, dataDir, version, commit, buildDate string) (*App, error) {
	logger.InitWithLevel(cfg.Logging.Level)

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "replica")
	}
	localPath := cfg.Storage.LocalDBPath
	if localPath == "" {
		localPath = filepath.Join(dataDir, "local")
	}
	attachPath := cfg.Storage.AttachPath
	if attachPath == "" {
		attachPath = filepath.Join(dataDir, "attachments")
	}
	stagingDir := cfg.Attachments.StagingDir
	if stagingDir == "" {
		stagingDir = filepath.Join(dataDir, "staging")
	}

	if err := store.Open(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open replica store at %s: %w", dbPath, err)
	}
	local, err := localstore.Open(localPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open local store at %s: %w", localPath, err)
	}
	attach, err := attachments.Open(attachPath, stagingDir)
	if err != nil {
		local.Close()
		store.Close()
		return nil, fmt.Errorf("failed to open attachment store at %s: %w", attachPath, err)
	}
	attach.SetMaxBytes(cfg.Attachments.MaxBytes.Int64())

	svc := chat.New(chat.Options{
		UsersCollection:   cfg.Chat.UsersCollection,
		RetentionDays:     cfg.Chat.RetentionDays,
		DefaultRoomName:   cfg.Chat.DefaultRoomName,
		AcceptLargeImages: cfg.Chat.AcceptLargeImages,
	}, local, attach)

	// runtime keys for the auth gateway
	runtimeCfg := &config.RuntimeConfig{FrontendKeys: map[string]struct{}{}, AdminKeys: map[string]struct{}{}}
	for _, k := range cfg.Security.APIKeys.Frontend {
		runtimeCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		runtimeCfg.AdminKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	return &App{
		cfg:       cfg,
		addr:      addr,
		dataDir:   dataDir,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		local:     local,
		attach:    attach,
		svc:       svc,
	}, nil
}

// Session exposes the chat session, mainly for tests.
func (a *App) Session() *chat.Service { return a.svc }

// Run starts the retention scheduler and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	retention.SetConfig(a.cfg.Retention)
	retCancel, err := retention.Start(ctx, a.cfg.Retention)
	if err != nil {
		return err
	}
	defer retCancel()

	a.logStartup()
	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		a.shutdown()
		return err
	}
}

func (a *App) logStartup() {
	ver := a.version
	if a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	logger.Info("node_starting", "version", ver, "addr", a.addr, "data_dir", a.dataDir,
		"retention_days", a.cfg.Chat.RetentionDays, "retention_scheduler", a.cfg.Retention.Enabled)
}

func (a *App) shutdown() {
	if a.srv != nil {
		timeout := a.cfg.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	a.svc.Close()
	if err := a.attach.Close(); err != nil {
		logger.Error("attachment_store_close_failed", "error", err)
	}
	if err := a.local.Close(); err != nil {
		logger.Error("local_store_close_failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("node_stopped")
}

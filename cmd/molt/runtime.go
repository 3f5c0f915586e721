package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/benaskins/molt/internal/audit"
	"github.com/benaskins/molt/internal/config"
	"github.com/benaskins/molt/internal/kv"
	"github.com/benaskins/molt/internal/moltbook"
)

// runtime is everything a command needs, built once per invocation.
type runtime struct {
	cfg      *config.Config
	store    *accounts.Store
	durable  kv.Store
	session  kv.Store
	auditLog *audit.Logger
	closers  []io.Closer
}

// openRuntime loads config and opens both tiers. A durable tier that cannot
// be opened leaves the account store inert instead of failing the command.
func openRuntime(actor string) (*runtime, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)

	rt := &runtime{cfg: cfg, auditLog: audit.Discard()}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			slog.Warn("cannot create data dir", "dir", cfg.DataDir, "error", err)
		}
	}
	if cfg.AuditLog != "" {
		if l, err := audit.NewLogger(cfg.AuditLog); err != nil {
			slog.Warn("audit log unavailable", "path", cfg.AuditLog, "error", err)
		} else {
			rt.auditLog = l
			rt.closers = append(rt.closers, l)
		}
	}

	session := kv.NewAuditedStore(kv.NewSessionStore(cfg.SessionDir), rt.auditLog, "session", actor)
	rt.session = session

	opts := []accounts.Option{accounts.WithAudit(rt.auditLog, actor)}
	durable, err := kv.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		slog.Warn("durable storage unavailable, accounts are read-only", "backend", cfg.Backend, "error", err)
		rt.store = accounts.New(nil, session, opts...)
		return rt, nil
	}
	if c, ok := durable.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	rt.durable = kv.NewAuditedStore(durable, rt.auditLog, "durable", actor)
	rt.store = accounts.New(rt.durable, session, opts...)
	return rt, nil
}

// client returns an API client authenticated through the account store.
func (rt *runtime) client() *moltbook.Client {
	return moltbook.New(rt.cfg.APIBase, rt.store,
		moltbook.WithTimeout(rt.cfg.Timeout),
		moltbook.WithRateLimit(rt.cfg.RequestsPerSecond),
	)
}

// durablePath is the file to watch for changes by other terminals, or ""
// when the durable tier is not file-backed.
func (rt *runtime) durablePath() string {
	if p, ok := rt.durable.(kv.Pather); ok {
		return p.Path()
	}
	return ""
}

func (rt *runtime) socketPath() string {
	if rt.cfg.DataDir == "" {
		return filepath.Join(os.TempDir(), "molt.sock")
	}
	return filepath.Join(rt.cfg.DataDir, "molt.sock")
}

func (rt *runtime) Close() {
	for _, c := range rt.closers {
		c.Close()
	}
}

func setupLogging(cfg *config.Config) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))
}

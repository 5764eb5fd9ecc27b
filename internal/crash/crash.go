package crash

import (
	"b3pov/config"
	"b3pov/pkg/database"
	"b3pov/pkg/telemetry"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queueSize = 1024

var ErrStopped = errors.New("crash manager stopped")

// Crash is a PoV that made the target crash.
type Crash struct {
	ProjectID string
	VerdictID string
	Harness   string
	Sanitizer string
	PovFile   string // path to the PoV on the local filesystem
	Data      []byte // PoV content; read from PovFile when nil
	ExitCode  int
	Labels    []string
}

// CrashManager deduplicates crashing PoVs on disk by content hash and records
// a bug row for each one.
type CrashManager struct {
	logger  *zap.Logger
	addBugs func(ctx context.Context, bugs []*database.Bug) error // nil without a database

	crashFolder string
	crashChan   chan Crash
	mu          sync.RWMutex
	stopped     bool
	done        chan struct{}
}

type CrashManagerParams struct {
	fx.In

	DB        *gorm.DB `optional:"true"`
	Config    *config.AppConfig
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

func NewCrashManager(p CrashManagerParams) (*CrashManager, error) {
	crashFolder := p.Config.CrashDir
	if err := os.MkdirAll(crashFolder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create crash folder: %w", err)
	}

	c := &CrashManager{
		logger:      p.Logger.Named("crash"),
		crashFolder: crashFolder,
		crashChan:   make(chan Crash, queueSize),
		done:        make(chan struct{}),
	}
	if p.DB != nil {
		db := p.DB
		c.addBugs = func(ctx context.Context, bugs []*database.Bug) error {
			return database.AddBugs(ctx, db, bugs)
		}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.logger.Debug("starting crash manager", zap.String("crash_dir", crashFolder))
			go c.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.logger.Info("stopping crash manager")
			c.stop()
			select {
			case <-c.done: // wait until all crashes are processed
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	return c, nil
}

// Enqueue hands a crash to the background worker. The PoV is read right away
// so the caller may delete it once Enqueue returns.
func (c *CrashManager) Enqueue(ctx context.Context, crash Crash) error {
	if crash.Data == nil {
		data, err := os.ReadFile(crash.PovFile)
		if err != nil {
			return fmt.Errorf("failed to read crash file: %w", err)
		}
		crash.Data = data
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return ErrStopped
	}

	telemetry.FromContext(ctx).AddEvent("crash_enqueued", telemetry.NewEventAttributes(map[string]string{
		"harness":   crash.Harness,
		"sanitizer": crash.Sanitizer,
	}))

	select {
	case c.crashChan <- crash:
		c.logger.Debug("new crash queued", zap.String("verdict_id", crash.VerdictID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CrashManager) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.logger.Debug("closing crash channel")
	close(c.crashChan)
}

func (c *CrashManager) start() {
	defer close(c.done)
	for crash := range c.crashChan {
		if _, err := c.Store(context.Background(), crash); err != nil {
			c.logger.Error("failed to process crash file", zap.Error(err))
		}
	}
}

// Store copies the PoV into the crash folder and records the bug. It returns
// the stored path; identical PoVs map to the same file.
func (c *CrashManager) Store(ctx context.Context, crash Crash) (string, error) {
	crashStore := filepath.Join(c.crashFolder, pathSegment(crash.ProjectID), pathSegment(crash.Harness), pathSegment(crash.Sanitizer))
	if err := os.MkdirAll(crashStore, 0755); err != nil {
		return "", fmt.Errorf("failed to create crash store directory: %w", err)
	}

	crashData := crash.Data
	if crashData == nil {
		var err error
		if crashData, err = os.ReadFile(crash.PovFile); err != nil {
			return "", fmt.Errorf("failed to read crash file: %w", err)
		}
	}
	crashMd5 := md5.Sum(crashData)
	crashPath := filepath.Join(crashStore, hex.EncodeToString(crashMd5[:]))
	if _, err := os.Stat(crashPath); err == nil {
		c.logger.Debug("duplicate crash", zap.String("path", crashPath))
	} else if err := os.WriteFile(crashPath, crashData, 0644); err != nil {
		return "", fmt.Errorf("failed to write crash file: %w", err)
	}

	if c.addBugs == nil {
		c.logger.Info("crash stored", zap.String("path", crashPath))
		return crashPath, nil
	}

	bug := database.NewBug(
		crash.ProjectID,
		crash.VerdictID,
		crashPath,
		crash.Harness,
		crash.Sanitizer,
		crash.ExitCode,
		crash.Labels,
	)
	if err := c.addBugs(ctx, []*database.Bug{bug}); err != nil {
		return crashPath, fmt.Errorf("failed to add bug: %w", err)
	}

	c.logger.Info("crash stored and recorded", zap.String("path", crashPath), zap.String("verdict_id", crash.VerdictID))
	return crashPath, nil
}

// pathSegment keeps user-supplied names from escaping the crash folder.
func pathSegment(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "unknown"
	}
	return name
}

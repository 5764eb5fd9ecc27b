package pov

import (
	"b3pov/config"
	"b3pov/pkg/watchdog"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Inbox submits every file dropped into the inbox directory.
type Inbox struct {
	logger  *zap.Logger
	service *Service
	dir     string

	wg sync.WaitGroup
}

type InboxParams struct {
	fx.In

	Config          *config.AppConfig
	Logger          *zap.Logger
	Service         *Service
	WatchDogFactory *watchdog.WatchDogFactory
	Lifecycle       fx.Lifecycle
}

func StartInbox(p InboxParams) (*Inbox, error) {
	if p.Config.PovInbox == "" {
		return nil, nil
	}

	in := &Inbox{
		logger:  p.Logger.Named("inbox"),
		service: p.Service,
		dir:     p.Config.PovInbox,
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// created on start so a failure rolls back hooks that already ran
			if err := os.MkdirAll(in.dir, 0755); err != nil {
				cancel()
				return fmt.Errorf("failed to create inbox: %w", err)
			}
			files := make(chan string, 64)
			wd, err := p.WatchDogFactory.New(watchCtx, files, isPovFile)
			if err != nil {
				cancel()
				return err
			}
			if err := wd.AddDir(in.dir); err != nil {
				cancel()
				return err
			}
			in.wg.Add(1)
			go func() {
				defer in.wg.Done()
				in.run(watchCtx, files)
			}()
			in.logger.Info("watching inbox", zap.String("dir", in.dir))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			in.wg.Wait()
			return nil
		},
	})
	return in, nil
}

// run submits files until the watcher closes the channel.
func (in *Inbox) run(ctx context.Context, files <-chan string) {
	for path := range files {
		verdict, err := in.service.Submit(ctx, Request{PovPath: path})
		if err != nil {
			in.logger.Error("failed to run inbox pov", zap.String("file", path), zap.Error(err))
			continue
		}
		in.logger.Debug("inbox pov processed",
			zap.String("file", path),
			zap.String("verdict_id", verdict.ID),
			zap.Bool("crashed", verdict.Crashed))
	}
}

// editors and copy tools create dot files and partial downloads first
func isPovFile(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, ".part") && !strings.HasSuffix(name, ".tmp")
}

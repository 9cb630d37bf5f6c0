// Package serv assembles the Buildstate FM sync service: the REST
// client, a query cache backend, the read-through fetcher, the
// optimistic mutation executor, the background refresh pool, the
// change-feed listener and the upload queue, wired together from one
// configuration.
package serv

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/buildstate/fm-sync/api"
	"github.com/buildstate/fm-sync/core"
)

// Service is the assembled sync service. Create it with NewService,
// call Start to launch the background workers, and Close to shut
// everything down.
type Service struct {
	conf *Config
	zlog *zap.Logger
	log  *zap.SugaredLogger

	client   *api.Client
	cache    Cache
	store    core.Store
	fetcher  *core.Fetcher
	executor *core.Executor
	refresh  *refreshPool
	uploads  *uploadQueue
	listener *invalidationListener

	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
}

// Option configures a Service during NewService.
type Option func(*Service)

// OptionSetZapLogger replaces the service logger.
func OptionSetZapLogger(zlog *zap.Logger) Option {
	return func(s *Service) { s.zlog = zlog }
}

// OptionSetCache replaces the configured cache backend, used by tests
// and embedders that bring their own.
func OptionSetCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// OptionSetClient replaces the API client.
func OptionSetClient(c *api.Client) Option {
	return func(s *Service) { s.client = c }
}

// NewService builds a Service from the configuration. Nothing runs in
// the background until Start.
func NewService(conf *Config, opts ...Option) (*Service, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	s := &Service{conf: conf}
	for _, opt := range opts {
		opt(s)
	}

	if err := initLogger(s); err != nil {
		return nil, err
	}
	if err := initCache(s); err != nil {
		return nil, err
	}
	if err := initClient(s); err != nil {
		return nil, err
	}

	s.refresh = newRefreshPool(nil, conf.RefreshWorkers, s.log)
	adapter := &storeAdapter{cache: s.cache, onStale: s.refresh.schedule}
	s.store = adapter
	s.refresh.store = adapter
	s.refresh.cache = s.cache

	s.fetcher = core.NewFetcher(adapter)

	exOpts := []core.ExecutorOption{
		core.OptionSetCanceller(s.fetcher),
		core.OptionSetLogger(s.log),
	}
	if conf.MaxInflightMutations > 0 {
		exOpts = append(exOpts, core.OptionSetMaxInflight(conf.MaxInflightMutations))
	}
	s.executor = core.NewExecutor(adapter, exOpts...)

	s.uploads = newUploadQueue(s.client.Uploads, conf.Upload, s.log)

	if conf.SubscribeURL != "" {
		s.listener = newInvalidationListener(conf.SubscribeURL, conf.APIToken, adapter, s.log)
	}

	return s, nil
}

// Start launches the refresh workers and, when configured, the
// change-feed listener. Safe to call once; the workers stop when ctx
// ends or Close is called.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.refresh.start(ctx)
		if s.listener != nil {
			go s.listener.run(ctx)
		}
		s.log.Infow("service started",
			"cache", s.conf.CacheBackend,
			"subscribe", s.conf.SubscribeURL != "")
	})
}

// Close drains the upload queue, stops the workers and releases the
// cache backend.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.uploads.close()
		if s.cancel != nil {
			s.cancel()
		}
		s.refresh.close()
		err = s.cache.Close()
	})
	return err
}

// Client exposes the underlying REST client for calls that bypass the
// cache.
func (s *Service) Client() *api.Client { return s.client }

// Store exposes the cache through the engine's Store contract.
func (s *Service) Store() core.Store { return s.store }

// Metrics returns the cache and mutation counters.
func (s *Service) Metrics() *core.Metrics { return s.cache.Metrics() }

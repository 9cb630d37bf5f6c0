package serv

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/buildstate/fm-sync/api"
	"github.com/buildstate/fm-sync/serv/internal/util"
)

func initLogger(s *Service) error {
	if s.zlog == nil {
		s.zlog = util.NewLogger(s.conf.LogJSON)
	}

	level, err := parseLogLevel(s.conf.LogLevel)
	if err != nil {
		return err
	}
	s.zlog = s.zlog.WithOptions(zap.IncreaseLevel(level))
	s.log = s.zlog.Sugar()
	return nil
}

func parseLogLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zap.InfoLevel, nil
	case "debug":
		return zap.DebugLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	case "none":
		return zapcore.Level(100), nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", level)
	}
}

func initCache(s *Service) error {
	if s.cache != nil {
		return nil
	}

	var err error
	switch s.conf.CacheBackend {
	case "", "memory":
		s.cache, err = NewMemoryCache(s.conf.Caching)
	case "redis":
		s.cache, err = NewRedisCache(s.conf.RedisURL, s.conf.Caching)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	return nil
}

func initClient(s *Service) error {
	if s.client != nil {
		return nil
	}
	if s.conf.APIToken == "" {
		s.log.Warn("no api_token configured, requests will be unauthenticated")
	}
	s.client = api.NewClient(s.conf.APIBaseURL, s.conf.APIToken,
		api.OptionSetLogger(s.log))
	return nil
}

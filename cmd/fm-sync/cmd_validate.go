package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/buildstate/fm-sync/serv"
)

var validateJSON bool

// ValidateResult holds the overall validation results.
type ValidateResult struct {
	Success  bool            `json:"success"`
	Services []ServiceStatus `json:"services"`
	Error    string          `json:"error,omitempty"`
	Duration string          `json:"duration"`
}

// ServiceStatus holds the status of a single service.
type ServiceStatus struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Note    string `json:"note,omitempty"`
}

func validateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "validate",
		Short: "Validate config and test connectivity to all services",
		Long: `Validate configuration and test connectivity to all configured services:
- Buildstate FM API (auth included)
- Redis cache (if configured)

Exit codes:
  0 - All services validated successfully
  1 - Configuration or service connection failed`,
		Run: cmdValidate,
	}
	c.Flags().BoolVar(&validateJSON, "json", false, "Output results in JSON format")
	return c
}

func cmdValidate(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	var services []ServiceStatus

	setup()
	if err := conf.Validate(); err != nil {
		outputFailure(err, services, startTime)
		os.Exit(1)
	}
	services = append(services, ServiceStatus{
		Name:   "config",
		Type:   "yaml",
		Status: "ok",
	})

	s, err := serv.NewService(conf)
	if err != nil {
		outputFailure(err, services, startTime)
		os.Exit(1)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	apiStart := time.Now()
	if err := s.Client().Ping(ctx); err != nil {
		services = append(services, ServiceStatus{
			Name:   "api",
			Type:   "rest",
			Status: "failed",
			Note:   err.Error(),
		})
		outputFailure(err, services, startTime)
		os.Exit(1)
	}
	services = append(services, ServiceStatus{
		Name:    "api",
		Type:    "rest",
		Status:  "ok",
		Latency: time.Since(apiStart).String(),
	})

	if conf.CacheBackend == "redis" {
		status, err := pingRedis(ctx, conf.RedisURL)
		services = append(services, status)
		if err != nil {
			outputFailure(err, services, startTime)
			os.Exit(1)
		}
	} else {
		services = append(services, ServiceStatus{
			Name:   "cache",
			Type:   "memory",
			Status: "ok",
			Note:   "in-memory LRU",
		})
	}

	outputSuccess(services, startTime)
}

func pingRedis(ctx context.Context, url string) (ServiceStatus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return ServiceStatus{Name: "cache", Type: "redis", Status: "failed", Note: err.Error()}, err
	}

	rdb := redis.NewClient(opt)
	defer rdb.Close()

	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return ServiceStatus{Name: "cache", Type: "redis", Status: "failed", Note: err.Error()}, err
	}
	return ServiceStatus{
		Name:    "cache",
		Type:    "redis",
		Status:  "ok",
		Latency: time.Since(start).String(),
	}, nil
}

func outputSuccess(services []ServiceStatus, start time.Time) {
	outputResult(ValidateResult{
		Success:  true,
		Services: services,
		Duration: time.Since(start).String(),
	})
}

func outputFailure(err error, services []ServiceStatus, start time.Time) {
	outputResult(ValidateResult{
		Success:  false,
		Services: services,
		Error:    err.Error(),
		Duration: time.Since(start).String(),
	})
}

func outputResult(result ValidateResult) {
	if validateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	for _, svc := range result.Services {
		mark := "ok"
		if svc.Status != "ok" {
			mark = "FAILED"
		}
		line := fmt.Sprintf("%-12s %-8s %s", svc.Name, svc.Type, mark)
		if svc.Latency != "" {
			line += " (" + svc.Latency + ")"
		}
		if svc.Note != "" {
			line += " " + svc.Note
		}
		fmt.Println(line)
	}
	if result.Success {
		fmt.Printf("all services validated in %s\n", result.Duration)
	} else {
		fmt.Fprintf(os.Stderr, "validation failed: %s\n", result.Error)
	}
}

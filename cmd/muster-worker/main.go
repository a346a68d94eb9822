// Package main implements the muster worker starter: the process the
// cluster manager spawns on every node, locally on the chief and over
// SSH everywhere else.
//
// The starter is deliberately thin. It:
//   - Reads the topology file the manager put in the working directory
//   - Resolves its own (job, task index) to an address and port
//   - Binds the task port and serves a health endpoint there
//   - Runs until the manager's process-group SIGTERM arrives
//
// The computation runtime that attaches to the bound port is an
// external collaborator; the starter only guarantees the port is held
// and identifiable.
//
// Configuration:
//   - --job_name:    job within the topology (default "worker")
//   - --task_index:  index within the job (default 0)
//   - --working_dir: where cluster_spec.json lives (default /tmp/muster)
//   - MUSTER_MIN_LOG_LEVEL: minimum log level, set by the manager
//
// Example:
//
//	MUSTER_MIN_LOG_LEVEL=error ./muster-worker --job_name=worker --task_index=1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dreamware/muster/internal/cluster"
)

func main() {
	jobName := flag.String("job_name", cluster.JobWorker, "job this task belongs to")
	taskIndex := flag.Int("task_index", 0, "task index within the job")
	workingDir := flag.String("working_dir", cluster.DefaultWorkingDir, "directory holding the cluster spec")
	flag.Parse()

	log := newLogger()
	defer log.Sync() //nolint:errcheck

	topo, err := loadTopology(filepath.Join(*workingDir, cluster.SpecFileName))
	if err != nil {
		log.Fatal("load cluster spec", zap.Error(err))
	}

	full, err := taskAddress(topo, *jobName, *taskIndex)
	if err != nil {
		log.Fatal("resolve task", zap.Error(err))
	}
	_, port := splitHostPort(full)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Job       string           `json:"job_name"`
			TaskIndex int              `json:"task_index"`
			Address   string           `json:"address"`
			Topology  cluster.Topology `json:"topology"`
		}{Job: *jobName, TaskIndex: *taskIndex, Address: full, Topology: topo})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker holding task port",
			zap.String("job", *jobName),
			zap.Int("task_index", *taskIndex),
			zap.String("address", full))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("worker stopped")
}

// loadTopology reads the topology file the manager persisted before
// launching this process.
func loadTopology(path string) (cluster.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster spec: %w", err)
	}
	var topo cluster.Topology
	if err := json.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse cluster spec %s: %w", path, err)
	}
	if len(topo) == 0 {
		return nil, fmt.Errorf("cluster spec %s has no jobs", path)
	}
	return topo, nil
}

// taskAddress resolves (job, index) to its topology entry.
func taskAddress(topo cluster.Topology, job string, index int) (string, error) {
	tasks, ok := topo[job]
	if !ok {
		return "", fmt.Errorf("job %q not in cluster spec", job)
	}
	if index < 0 || index >= len(tasks) {
		return "", fmt.Errorf("task index %d out of range for job %q (%d tasks)", index, job, len(tasks))
	}
	return tasks[index], nil
}

// splitHostPort splits a topology entry on its last colon.
func splitHostPort(full string) (host, port string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == ':' {
			return full[:i], full[i+1:]
		}
	}
	return full, ""
}

// newLogger builds the worker's logger, honoring the minimum level
// the manager injected.
func newLogger() *zap.Logger {
	conf := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(os.Getenv(cluster.EnvMinLogLevel)); err == nil {
		conf.Level = zap.NewAtomicLevelAt(lvl)
	}
	log, err := conf.Build()
	if err != nil {
		panic(err)
	}
	return log
}

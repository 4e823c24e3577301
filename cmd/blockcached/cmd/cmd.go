//  Copyright (c) 2017-2018 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	validator "gopkg.in/validator.v2"
	"github.com/YuaNFrank/spark/api"
	"github.com/YuaNFrank/spark/common"
	"github.com/YuaNFrank/spark/master"
	"github.com/YuaNFrank/spark/memstore"
	memCom "github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// Options represents options for executing command
type Options struct {
	DefaultCfg   map[string]interface{}
	ServerLogger common.Logger
	Metrics      common.Metrics
}

// Option is for setting option
type Option func(*Options)

// Execute executes command with options
func Execute(setters ...Option) {
	loggerFactory := common.NewLoggerFactory()
	options := &Options{
		ServerLogger: loggerFactory.GetDefaultLogger(),
		Metrics:      common.NewNoopMetrics(),
	}

	for _, setter := range setters {
		setter(options)
	}

	cmd := &cobra.Command{
		Use:     "blockcached",
		Short:   "Reference-aware distributed block cache",
		Long:    `blockcached caches dataset blocks in a bounded memory region and coordinates reference-aware eviction across workers`,
		Example: `./blockcached --config config/blockcache.yaml --port 9374 --debug_port 43202`,
		Run: func(cmd *cobra.Command, args []string) {

			cfg, err := ReadConfig(options.DefaultCfg, cmd.Flags())
			if err != nil {
				options.ServerLogger.With("err", err.Error()).Fatal("failed to read configs")
			}

			if dump, _ := cmd.Flags().GetBool("dump_config"); dump {
				rendered, err := DumpConfig(cfg)
				if err != nil {
					options.ServerLogger.Fatal(err)
				}
				fmt.Print(rendered)
				return
			}

			start(cfg, options.ServerLogger, options.Metrics)
		},
	}
	AddFlags(cmd)
	cmd.Execute()
}

// start is the entry point of starting the block cache server.
func start(cfg common.BlockCacheConfig, logger common.Logger, metricsCfg common.Metrics) {
	logger.With("config", cfg).Info("Bootstrapping service")

	if err := validator.Validate(cfg); err != nil {
		logger.With("err", err.Error()).Fatal("invalid config")
	}

	scope, closer, err := metricsCfg.NewRootScope()
	if err != nil {
		logger.Fatal("Failed to create new root scope", err)
	}
	defer closer.Close()

	// Init common components.
	utils.Init(cfg, logger, scope)

	scope.Counter("restart").Inc(1)

	profileDir := cfg.ProfileDir
	if profileDir == "" {
		profileDir = "."
	}
	profile, err := master.LoadProfiles(utils.OSFileSystem{}, profileDir, cfg.AppName)
	if err != nil {
		logger.Fatal("Failed to load reference profiles", err)
	}

	directory := master.NewDirectory(profile, master.NewTelemetry())
	endpoint := master.NewEndpoint(directory, cfg.RPC)

	// An in-process worker holds this node's share of the cache.
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	workerID := memCom.BlockManagerID{ExecutorID: "0", Host: hostname, Port: cfg.Port}
	storeOptions := memstore.Options{
		Policy:          memstore.EvictionPolicyFromName(cfg.EvictionPolicy),
		PeerCheckStrict: cfg.PeerCheckMode == common.PeerCheckStrict,
		Unroll:          cfg.Unroll,
	}
	worker := memstore.NewWorker(workerID, cfg.TotalMemorySize, cfg.OffHeapMemorySize,
		storeOptions, master.NewClient(endpoint))
	if err := worker.Start(); err != nil {
		logger.Fatal("Failed to register worker", err)
	}

	healthCheckHandler := api.NewHealthCheckHandler()
	debugHandler := api.NewDebugHandler(worker.Store(), endpoint, healthCheckHandler)

	// Start HTTP server for debugging.
	if cfg.DebugPort > 0 {
		go func() {
			debugRouter := mux.NewRouter()
			debugHandler.Register(debugRouter.PathPrefix("/dbg").Subrouter())
			debugRouter.HandleFunc("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
			debugRouter.HandleFunc("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
			debugRouter.HandleFunc("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
			debugRouter.HandleFunc("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
			debugRouter.PathPrefix("/debug/pprof/").Handler(http.HandlerFunc(pprof.Index))

			utils.GetLogger().Infof("Starting HTTP server on dbg-port %d", cfg.DebugPort)
			utils.GetLogger().Fatal(http.ListenAndServe(fmt.Sprintf(":%d", cfg.DebugPort),
				handlers.CombinedLoggingHandler(os.Stdout, debugRouter)))
		}()
	} else {
		utils.GetLogger().Infof("Debug port not configured, debug server will be disabled")
	}

	// Start serving.
	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/version", healthCheckHandler.Version).Methods(http.MethodGet)
	debugHandler.Register(router.PathPrefix("/dbg").Subrouter())

	utils.GetLogger().Infof("Starting HTTP server on port %d", cfg.Port)
	utils.LimitServe(cfg.Port, handlers.CompressHandler(router), cfg.HTTP)
}

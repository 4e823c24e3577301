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

package utils

import (
	"github.com/spf13/viper"
	"github.com/uber-go/tally"
	"github.com/YuaNFrank/spark/common"
)

// stores all common components together to avoid scattered references.
var (
	logger          common.Logger
	reporterFactory *ReporterFactory
	config          common.BlockCacheConfig
)

// init loads default implementations of common components for unit tests' purpose.
func init() {
	ResetDefaults()
}

// ResetDefaults reset default config, logger and metrics settings
func ResetDefaults() {
	logger = common.NewLoggerFactory().GetDefaultLogger()
	scope := tally.NewTestScope("test", nil)
	reporterFactory = NewReporterFactory(scope)

	BindEnvironments(viper.GetViper())
	viper.ReadInConfig()

	config = common.BlockCacheConfig{}
	viper.Unmarshal(&config)
}

// Init loads application specific common components settings.
func Init(c common.BlockCacheConfig, l common.Logger, s tally.Scope) {
	config = c
	logger = l
	reporterFactory = NewReporterFactory(s)
}

// GetLogger returns the logger.
func GetLogger() common.Logger {
	return logger
}

// GetRootReporter returns the root metrics reporter.
func GetRootReporter() *Reporter {
	return reporterFactory.GetRootReporter()
}

// GetReporter returns reporter given the executorID. If the corresponding
// reporter cannot be found it will return the root reporter.
func GetReporter(executorID string) *Reporter {
	return reporterFactory.GetReporter(executorID)
}

// AddExecutorReporter adds a reporter for the given executor. It should be
// called when the executor registers.
func AddExecutorReporter(executorID string) {
	reporterFactory.AddExecutor(executorID)
}

// DeleteExecutorReporter deletes the reporter for the given executor.
func DeleteExecutorReporter(executorID string) {
	reporterFactory.DeleteExecutor(executorID)
}

// GetConfig returns the application config.
func GetConfig() common.BlockCacheConfig {
	return config
}

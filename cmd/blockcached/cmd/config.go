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

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
	"github.com/YuaNFrank/spark/common"
	"github.com/YuaNFrank/spark/utils"
)

// AddFlags adds flags to command
func AddFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "config/blockcache.yaml", "Block cache config file")
	cmd.Flags().IntP("port", "p", 0, "Block cache service port")
	cmd.Flags().IntP("debug_port", "d", 0, "Block cache service debug port")
	cmd.Flags().StringP("app_name", "a", "", "Application name; also the profile file stem")
	cmd.Flags().String("eviction_policy", "", "Eviction policy: lru, lrc or osl")
	cmd.Flags().Bool("dump_config", false, "Print the effective config as yaml and exit")
}

// ReadConfig populate BlockCacheConfig
func ReadConfig(defaultCfg map[string]interface{}, flags *pflag.FlagSet) (common.BlockCacheConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	// bind command flags
	v.BindPFlags(flags)

	utils.BindEnvironments(v)

	// set defaults
	v.SetDefault("app_name", "BlockCache")
	v.SetDefault("eviction_policy", common.EvictionPolicyLRU)
	v.SetDefault("peer_check_mode", common.PeerCheckConservative)
	v.SetDefault("total_memory_size", int64(1<<30))
	v.MergeConfigMap(defaultCfg)

	// merge in config file
	if cfgFile, err := flags.GetString("config"); err == nil && cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("blockcache")
		v.AddConfigPath("./config")
	}

	if err := v.MergeInConfig(); err == nil {
		fmt.Println("Using config file: ", v.ConfigFileUsed())
	}

	var cfg common.BlockCacheConfig
	err := v.Unmarshal(&cfg, func(config *mapstructure.DecoderConfig) {
		config.TagName = "yaml"
	})
	return cfg, err
}

// DumpConfig renders the effective config as yaml.
func DumpConfig(cfg common.BlockCacheConfig) (string, error) {
	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

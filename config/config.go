package config

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/omnibridge/bridge-service/config/types"
	"github.com/omnibridge/bridge-service/db"
	"github.com/omnibridge/bridge-service/etherman"
	"github.com/omnibridge/bridge-service/log"
	"github.com/omnibridge/bridge-service/metrics"
	"github.com/omnibridge/bridge-service/scheduler"
	"github.com/omnibridge/bridge-service/server"
	"github.com/omnibridge/bridge-service/submitter"
	"github.com/omnibridge/bridge-service/subman"
	"github.com/omnibridge/bridge-service/watcher"
	"github.com/spf13/viper"
)

// EVMChainConfig configures one evm chain of the bridge topology.
type EVMChainConfig struct {
	etherman.Config `mapstructure:",squash"`

	// StartBlock is where scanning begins for a chain with no stored cursor.
	StartBlock uint64 `mapstructure:"StartBlock"`

	// Keystore holds the relayer key used to pay out on this chain.
	Keystore types.KeystoreFileConfig `mapstructure:"Keystore"`
}

// SubstrateChainConfig configures one substrate chain of the bridge topology.
type SubstrateChainConfig struct {
	subman.Config `mapstructure:",squash"`

	// StartBlock is where scanning begins for a chain with no stored cursor.
	StartBlock uint64 `mapstructure:"StartBlock"`

	// Seed holds the path to the relayer's secret seed file.
	Seed types.KeystoreFileConfig `mapstructure:"Seed"`

	// SS58Prefix is the address network prefix of the chain.
	SS58Prefix uint16 `mapstructure:"SS58Prefix"`
}

// Config struct
type Config struct {
	Log             log.Config
	SyncDB          db.Config
	Watcher         watcher.Config
	Scheduler       scheduler.Config
	Submitter       submitter.Config
	Metrics         metrics.Config
	BridgeServer    server.Config
	EVMChains       []EVMChainConfig
	SubstrateChains []SubstrateChainConfig
}

// Load loads the configuration
func Load(configFilePath string) (*Config, error) {
	var cfg Config
	viper.SetConfigType("toml")

	err := viper.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}
	if configFilePath != "" {
		dirName, fileName := filepath.Split(configFilePath)

		fileExtension := strings.TrimPrefix(filepath.Ext(fileName), ".")
		fileNameWithoutExtension := strings.TrimSuffix(fileName, "."+fileExtension)

		viper.AddConfigPath(dirName)
		viper.SetConfigName(fileNameWithoutExtension)
		viper.SetConfigType(fileExtension)
	}
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix("OMNIBRIDGE")
	err = viper.ReadInConfig()
	if err != nil {
		_, ok := err.(viper.ConfigFileNotFoundError)
		if ok {
			log.Infof("config file not found")
		} else {
			log.Infof("error reading config file: %v", err)
			return nil, err
		}
	}

	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

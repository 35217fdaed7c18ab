package server

import (
	"github.com/omnibridge/bridge-service/config/types"
)

// Config of the read-only HTTP surface.
type Config struct {
	// Port of the HTTP listener.
	Port string `mapstructure:"Port"`

	// ReadTimeout of the HTTP listener.
	ReadTimeout types.Duration `mapstructure:"ReadTimeout"`

	// WriteTimeout of the HTTP listener.
	WriteTimeout types.Duration `mapstructure:"WriteTimeout"`

	// MaxPageSize bounds list responses.
	MaxPageSize int `mapstructure:"MaxPageSize"`
}

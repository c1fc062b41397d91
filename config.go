// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sdao/mayausb/accessory"
	"github.com/sdao/mayausb/imaging"
)

// initConfig defines config flags, config file, and envs
func initConfig() error {
	cfgFile := flag.String("config", "", "Path to the config file.")
	flag.String("log-level", logLevelInfo, fmt.Sprintf("Log level to use. Possible values: %s", availableLogLevels))
	flag.String("listen", ":8080", "The address at which to listen for health and metrics.")
	flag.Int("jpeg-quality", imaging.DefaultJPEGQuality, "JPEG quality of outbound frames, 1 to 100.")
	flag.Int("frame-width", 1024, "Width of the generated source texture.")
	flag.Int("frame-height", 1536, "Height of the generated source texture; streamed frames are half as tall.")
	flag.Duration("frame-interval", 33*time.Millisecond, "Interval between offered frames.")
	flag.Int("read-frame-size", 1024, "Size in bytes of inbound frames delivered by the device.")

	flag.Parse()
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	if *cfgFile != "" {
		viper.SetConfigFile(*cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/mayausb/")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
		} else {
			// Config file was found but another error was produced
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// getCandidateDevices reads the `devices` config key: a list of candidate
// identities, each either a "vvvv:pppp" string or a {vendor, product} map
// of hex strings. An empty list means the accessory-mode identities.
func getCandidateDevices() ([]accessory.Identity, error) {
	raw, ok := viper.Get("devices").([]interface{})
	if !ok || len(raw) == 0 {
		return accessory.AccessoryIdentities(), nil
	}

	candidates := make([]accessory.Identity, 0, len(raw))
	for i, entry := range raw {
		switch data := entry.(type) {
		case string:
			id, err := accessory.ParseIdentity(data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse device %d: %w", i, err)
			}
			candidates = append(candidates, id)
		case map[string]interface{}:
			var spec struct {
				Vendor  string `mapstructure:"vendor"`
				Product string `mapstructure:"product"`
			}
			if err := mapstructure.Decode(data, &spec); err != nil {
				return nil, fmt.Errorf("failed to parse device %d: %w", i, err)
			}
			id, err := accessory.ParseIdentity(spec.Vendor + ":" + spec.Product)
			if err != nil {
				return nil, fmt.Errorf("failed to parse device %d: %w", i, err)
			}
			candidates = append(candidates, id)
		default:
			return nil, fmt.Errorf("device %d must be a string or a vendor/product map", i)
		}
	}
	return candidates, nil
}

// Package config loads the endpoint's bootstrap configuration and
// turns it into the quic package's endpoint-scoped EndpointConfig
// value, so no ingress operation ever reaches for a viper global.
package config

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/viper"

	"github.com/yourusername/quicingress/quic"
)

// File is the on-disk shape of the endpoint's configuration: listen
// address, supported versions, retry/reset secret, and the ingress
// policy flags EndpointConfig carries.
type File struct {
	Listen struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"listen"`
	Metrics struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"metrics"`
	QUIC struct {
		SupportedVersions       []string `mapstructure:"supported_versions"`
		LocalCIDLen             int      `mapstructure:"local_cid_len"`
		ServerSecretHex         string   `mapstructure:"server_secret_hex"`
		MinInitialDatagramSize  int      `mapstructure:"min_initial_datagram_size"`
		RetryTokenEnforced      bool     `mapstructure:"retry_token_enforced"`
		EnforceCoalescedCIDCheck bool    `mapstructure:"enforce_coalesced_cid_check"`
		MinStatelessResetSize   int      `mapstructure:"min_stateless_reset_size"`
	} `mapstructure:"quic"`
	Redis struct {
		Enabled bool   `mapstructure:"enabled"`
		Address string `mapstructure:"address"`
		Channel string `mapstructure:"channel"`
	} `mapstructure:"redis"`
}

// Load reads config.yaml from the working directory or ./config,
// applies defaults matching a single-version, 8-byte-CID endpoint
// with retry enforcement off, and returns both the raw File (for the
// ambient pieces outside quic.EndpointConfig's scope, such as the
// listen/metrics addresses and the redis fanout settings) and the
// derived quic.EndpointConfig.
func Load() (*File, quic.EndpointConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("listen.address", "0.0.0.0:4433")
	viper.SetDefault("metrics.address", "127.0.0.1:9090")
	viper.SetDefault("quic.supported_versions", []string{"00000001"})
	viper.SetDefault("quic.local_cid_len", 8)
	viper.SetDefault("quic.min_initial_datagram_size", 1200)
	viper.SetDefault("quic.retry_token_enforced", false)
	viper.SetDefault("quic.enforce_coalesced_cid_check", true)
	viper.SetDefault("quic.min_stateless_reset_size", 21)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.channel", "quicingress_events")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, quic.EndpointConfig{}, err
		}
	}

	var f File
	if err := viper.Unmarshal(&f); err != nil {
		return nil, quic.EndpointConfig{}, err
	}

	versions, err := parseVersions(f.QUIC.SupportedVersions)
	if err != nil {
		return nil, quic.EndpointConfig{}, err
	}

	secret, err := parseSecret(f.QUIC.ServerSecretHex)
	if err != nil {
		return nil, quic.EndpointConfig{}, err
	}

	ec := quic.EndpointConfig{
		SupportedVersions:       versions,
		LocalCIDLen:             f.QUIC.LocalCIDLen,
		ServerSecret:            secret,
		MinInitialDatagramSize:  f.QUIC.MinInitialDatagramSize,
		RetryTokenEnforced:      f.QUIC.RetryTokenEnforced,
		EnforceCoalescedCIDCheck: f.QUIC.EnforceCoalescedCIDCheck,
		MinStatelessResetSize:   f.QUIC.MinStatelessResetSize,
	}

	return &f, ec, nil
}

func parseVersions(hexVersions []string) ([]uint32, error) {
	versions := make([]uint32, 0, len(hexVersions))
	for _, s := range hexVersions {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != 4 {
			return nil, fmt.Errorf("config: invalid quic version %q", s)
		}
		versions = append(versions, uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3]))
	}
	return versions, nil
}

func parseSecret(hexSecret string) ([]byte, error) {
	if hexSecret == "" {
		// Generated deployments must set this explicitly; an empty
		// secret here would make retry tokens and reset tokens
		// guessable across restarts.
		return make([]byte, 32), nil
	}
	b, err := hex.DecodeString(hexSecret)
	if err != nil {
		return nil, fmt.Errorf("config: invalid server_secret_hex: %w", err)
	}
	return b, nil
}

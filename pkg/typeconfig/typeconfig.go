// Package typeconfig carries the runtime tunables of the codec, serdata,
// and loan layers: free-list magazine size, per-type pool capacity, stream
// chunk size, default XCDR version preference, and the two interop policy
// knobs (the header options padding mask and the enum-out-of-range-on-read
// policy). Loaded via viper + mapstructure + validator/v10: YAML on disk,
// CDRX_-prefixed environment overrides, struct-tag validation.
package typeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ddscore/cdrx/internal/bytesize"
	"github.com/ddscore/cdrx/internal/codec"
)

// PaddingMaskPolicy selects which bits of the CDR header's options field
// are read as the trailing-pad count. The upstream implementation is
// inconsistent between its fragment-chain and iovec construction paths
// (mask 0x3 vs 0x2); this module settles on 0x3 and keeps the alternative
// selectable for interop with peers that shipped the other reading.
type PaddingMaskPolicy uint8

const (
	// PaddingMask3 reads the low 2 bits (mask 0x3) as the pad count. This is
	// the policy DESIGN.md settles on; see its Open Questions entry.
	PaddingMask3 PaddingMaskPolicy = iota
	// PaddingMask2 reads only bit 1 (mask 0x2), matching the upstream
	// source's iovec-path behavior. Kept as a policy option rather than
	// deleted so a caller that must interop with that behavior can select
	// it explicitly.
	PaddingMask2
)

// Mask returns the bitmask this policy applies to the options field's low
// byte.
func (p PaddingMaskPolicy) Mask() uint8 {
	if p == PaddingMask2 {
		return 0x2
	}
	return 0x3
}

// EnumRangePolicy controls whether Normalize rejects an enum value outside
// its declared set.
type EnumRangePolicy uint8

const (
	// EnumRangeAccept accepts out-of-range enum values on read without
	// rejection, matching the upstream source's observed behavior.
	EnumRangeAccept EnumRangePolicy = iota
	// EnumRangeReject fails normalize when an enum value lies outside its
	// declared set, for callers that want strict XTypes type-consistency
	// enforcement.
	EnumRangeReject
)

// Config is the full set of tunables for this module's codec, serdata pool,
// and loan pool. Only DefaultXCDRVersion and EnumRange (through
// NormalizePolicy) are read elsewhere in the module, by cmd/cdrdump; the
// sizing fields and PaddingMask are loaded and validated, but pkg/serdata,
// pkg/loan and internal/cdrstream use their own compiled-in constants and
// do not read a Config.
type Config struct {
	// PoolCapacity is the maximum number of small serdata returned to the
	// per-type free list before further releases are freed outright.
	// Default: 8192 (dds_serdata_default.c MAX_POOL_SIZE).
	PoolCapacity int `mapstructure:"pool_capacity" validate:"required,gt=0" yaml:"pool_capacity"`

	// MaxPooledSampleSize is the largest serdata payload size eligible for
	// the small-serdata pool; larger ones are freed directly. Accepts plain
	// byte counts or human-readable sizes ("256", "1Ki", "4KiB").
	// Default: 256 (dds_serdata_default.c MAX_SIZE_FOR_POOL).
	MaxPooledSampleSize bytesize.ByteSize `mapstructure:"max_pooled_sample_size" validate:"required,gt=0" yaml:"max_pooled_sample_size"`

	// MagazineSize is the number of entries in each per-thread magazine of
	// the freelist pool. Default: 256.
	MagazineSize int `mapstructure:"magazine_size" validate:"required,gt=0" yaml:"magazine_size"`

	// StreamChunkSize is the growth granularity for output stream backing
	// buffers, in the same human-readable-or-plain-number form as
	// MaxPooledSampleSize. Default: 128 (CHUNK_SIZE).
	StreamChunkSize bytesize.ByteSize `mapstructure:"stream_chunk_size" validate:"required,gt=0" yaml:"stream_chunk_size"`

	// LoanPoolInitialCapacity is the starting free-list capacity for
	// pkg/loan.Pool before it doubles on demand. Default: 8.
	LoanPoolInitialCapacity int `mapstructure:"loan_pool_initial_capacity" validate:"required,gt=0" yaml:"loan_pool_initial_capacity"`

	// DefaultXCDRVersion is the encoding version used when a caller does not
	// pin one explicitly and the type's MinXCDRVersion allows either.
	// Valid values: 1, 2. Default: 2.
	DefaultXCDRVersion uint8 `mapstructure:"default_xcdr_version" validate:"oneof=1 2" yaml:"default_xcdr_version"`

	// PaddingMask selects how the header options' pad bits are read.
	PaddingMask PaddingMaskPolicy `mapstructure:"padding_mask" validate:"oneof=0 1" yaml:"padding_mask"`

	// EnumRange selects how out-of-range enum values read off the wire are
	// treated.
	EnumRange EnumRangePolicy `mapstructure:"enum_range_policy" validate:"oneof=0 1" yaml:"enum_range_policy"`
}

// Default returns the configuration this module uses when no override file
// or environment variable is present.
func Default() Config {
	return Config{
		PoolCapacity:            8192,
		MaxPooledSampleSize:     bytesize.ByteSize(256),
		MagazineSize:            256,
		StreamChunkSize:         bytesize.ByteSize(128),
		LoanPoolInitialCapacity: 8,
		DefaultXCDRVersion:      2,
		PaddingMask:             PaddingMask3,
		EnumRange:               EnumRangeAccept,
	}
}

// NormalizePolicy maps the configured enum-range policy onto the codec's
// normalization policy, for callers threading Config into FromSerWithPolicy
// or codec.Normalize directly.
func (c *Config) NormalizePolicy() codec.Policy {
	return codec.Policy{RejectOutOfRangeEnum: c.EnumRange == EnumRangeReject}
}

var validate = validator.New()

// Load reads configuration from configPath (YAML), lets environment
// variables prefixed CDRX_ override it, and uses Default() for any field
// left unset. Precedence: env, then file, then defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CDRX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("typeconfig: reading %s: %w", configPath, err)
				}
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("typeconfig: unmarshal: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("typeconfig: validation failed: %w", err)
	}
	return &cfg, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/cdrx/config.yaml, falling back
// to ~/.config/cdrx/config.yaml.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cdrx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "cdrx", "config.yaml")
}

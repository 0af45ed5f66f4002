// Package raidconfig loads and validates the on-disk/CLI configuration
// of a RAID volume: code type, dimension, stripe geometry and the
// ordered list of backing disk files.
package raidconfig

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Type is the erasure-coding algorithm a volume is configured to use.
type Type string

const (
	TypeRAID5      Type = "raid5"
	TypeReedSolomon Type = "reedsolomon"
)

// DiskEntry is one configured member disk: its backing file path and an
// online flag. The flag is decoded but nothing in this module reads it;
// Volume.Mount brings up every disk that is in StateOffline.
type DiskEntry struct {
	Path   string `mapstructure:"path" validate:"required"`
	Online bool   `mapstructure:"online"`
}

// Config is the full, validated configuration of one RAID volume.
type Config struct {
	Type Type `mapstructure:"type" validate:"required,oneof=raid5 reedsolomon"`

	Dimension            int `mapstructure:"dimension" validate:"required,min=1"`
	Redundancy           int `mapstructure:"redundancy" validate:"omitempty,min=1"`
	InterleavingOrder    int `mapstructure:"interleaving_order" validate:"required,min=1"`
	StripeUnitSize       int `mapstructure:"stripe_unit_size" validate:"required,min=16"`
	DiskCapacity         int64 `mapstructure:"disk_capacity_bytes" validate:"required,min=1"`
	MaxConcurrentThreads int `mapstructure:"max_concurrent_threads" validate:"required,min=1"`

	Disks []DiskEntry `mapstructure:"disks" validate:"required,min=1,dive"`
}

// EncodedParams is the fixed-layout record persisted into each disk's
// array-configuration slot (disk.Disk.SetArrayData): a type tag and
// code geometry, checked against a disk's stored copy on attach so a
// disk built for a different array configuration is rejected rather
// than silently misread.
type EncodedParams struct {
	Type              Type
	Dimension         int
	Redundancy        int
	InterleavingOrder int
	StripeUnitSize    int
}

// Params extracts the subset of Config that must round-trip through a
// disk's array-configuration slot.
func (c Config) Params() EncodedParams {
	return EncodedParams{
		Type:              c.Type,
		Dimension:         c.Dimension,
		Redundancy:        c.Redundancy,
		InterleavingOrder: c.InterleavingOrder,
		StripeUnitSize:    c.StripeUnitSize,
	}
}

// EncodedParamsSize is the fixed on-disk width of an EncodedParams
// record, matching the binary.Write layout of encodedParamsWire below.
const EncodedParamsSize = 1 + 4 + 4 + 4 + 4

type encodedParamsWire struct {
	TypeTag           uint8
	Dimension         uint32
	Redundancy        uint32
	InterleavingOrder uint32
	StripeUnitSize    uint32
}

func typeTag(t Type) uint8 {
	if t == TypeReedSolomon {
		return 1
	}
	return 0
}

func tagType(tag uint8) Type {
	if tag == 1 {
		return TypeReedSolomon
	}
	return TypeRAID5
}

// Encode serializes p into its fixed-width on-disk form, for storage in
// a disk's array-configuration slot via disk.Disk.SetArrayData.
func (p EncodedParams) Encode() []byte {
	w := encodedParamsWire{
		TypeTag:           typeTag(p.Type),
		Dimension:         uint32(p.Dimension),
		Redundancy:        uint32(p.Redundancy),
		InterleavingOrder: uint32(p.InterleavingOrder),
		StripeUnitSize:    uint32(p.StripeUnitSize),
	}
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, w)
	return buf.Bytes()
}

// DecodeParams parses a record previously produced by EncodedParams.Encode,
// as read back from disk.Disk.GetArrayData.
func DecodeParams(b []byte) (EncodedParams, error) {
	var w encodedParamsWire
	if len(b) < EncodedParamsSize {
		return EncodedParams{}, errors.New("raidconfig: short array-configuration record")
	}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &w); err != nil {
		return EncodedParams{}, errors.Wrap(err, "raidconfig: decode array-configuration record")
	}
	return EncodedParams{
		Type:              tagType(w.TypeTag),
		Dimension:         int(w.Dimension),
		Redundancy:        int(w.Redundancy),
		InterleavingOrder: int(w.InterleavingOrder),
		StripeUnitSize:    int(w.StripeUnitSize),
	}, nil
}

var validate = validator.New()

// Load reads and validates a volume configuration from path, which may
// be in any format viper supports by extension (YAML, JSON, TOML, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RAIDSIM")
	v.AutomaticEnv()
	v.SetDefault("interleaving_order", 1)
	v.SetDefault("max_concurrent_threads", 4)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "raidconfig: read %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "raidconfig: decode")
	}
	cfg.Type = Type(strings.ToLower(string(cfg.Type)))

	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "raidconfig: invalid configuration")
	}
	if cfg.Type == TypeReedSolomon && cfg.Redundancy == 0 {
		return nil, errors.New("raidconfig: reedsolomon requires redundancy >= 1")
	}

	want := cfg.InterleavingOrder * codeLength(cfg)
	if len(cfg.Disks) != want {
		return nil, errors.Errorf("raidconfig: expected %d disks for this geometry, got %d", want, len(cfg.Disks))
	}
	return &cfg, nil
}

func codeLength(c Config) int {
	if c.Type == TypeReedSolomon {
		return c.Dimension + c.Redundancy
	}
	return c.Dimension + 1
}

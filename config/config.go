// Package config provides configuration of the custody program environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nspcc-dev/custody-contract/common"
	"github.com/nspcc-dev/custody-contract/ledger"
	rpccustody "github.com/nspcc-dev/custody-contract/rpc/custody"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Default program addresses.
const (
	DefaultCustodyProgram    = "5iC4wKZizyxrKh271Xzx3W4Vn2xUyYvSGHeoB2mdw5HA"
	DefaultSystemProgram     = "11111111111111111111111111111111"
	DefaultTokenProgram      = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	DefaultDelegationProgram = "DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh"
	DefaultPermissionProgram = "ACLseoPoyC3cBqoUtkbjZ4aDrkurZW86v19pXz2XQnp1"
)

// Config is the environment configuration.
type Config struct {
	Logger   Logger   `yaml:"logger"`
	Programs Programs `yaml:"programs"`
	Rent     Rent     `yaml:"rent"`
}

// Logger configures logging.
type Logger struct {
	// Zap level name.
	Level string `yaml:"level"`
}

// Programs holds base58 program addresses.
type Programs struct {
	Custody    string `yaml:"custody"`
	System     string `yaml:"system"`
	Token      string `yaml:"token"`
	Delegation string `yaml:"delegation"`
	Permission string `yaml:"permission"`
}

// Rent configures the storage rent.
type Rent struct {
	LamportsPerByteYear uint64  `yaml:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `yaml:"exemption_threshold"`
}

// Default returns configuration with default values.
func Default() Config {
	return Config{
		Logger: Logger{Level: "info"},
		Programs: Programs{
			Custody:    DefaultCustodyProgram,
			System:     DefaultSystemProgram,
			Token:      DefaultTokenProgram,
			Delegation: DefaultDelegationProgram,
			Permission: DefaultPermissionProgram,
		},
		Rent: Rent{
			LamportsPerByteYear: ledger.DefaultRent.LamportsPerByteYear,
			ExemptionThreshold:  ledger.DefaultRent.ExemptionThreshold,
		},
	}
}

// Load reads configuration from the YAML file. Omitted values are
// defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads YAML configuration from r. Unknown fields are errors.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// ProgramIDs decodes program addresses.
func (c Config) ProgramIDs() (rpccustody.Programs, error) {
	var (
		res rpccustody.Programs
		err error
	)

	for _, p := range []struct {
		name string
		src  string
		dst  *util.Uint256
	}{
		{"custody", c.Programs.Custody, &res.Custody},
		{"system", c.Programs.System, &res.System},
		{"token", c.Programs.Token, &res.Token},
		{"delegation", c.Programs.Delegation, &res.Delegation},
		{"permission", c.Programs.Permission, &res.Permission},
	} {
		*p.dst, err = common.DecodeAddress(p.src)
		if err != nil {
			return res, fmt.Errorf("%s program: %w", p.name, err)
		}
	}

	return res, nil
}

// LedgerRent returns rent parameters of the ledger.
func (c Config) LedgerRent() ledger.Rent {
	return ledger.Rent{
		LamportsPerByteYear: c.Rent.LamportsPerByteYear,
		ExemptionThreshold:  c.Rent.ExemptionThreshold,
	}
}

// NewLogger creates the logger of configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("logger level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zc.Build()
}

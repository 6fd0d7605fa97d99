// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"encoding/hex"
	"io/ioutil"
	"strings"

	tml "github.com/BurntSushi/toml"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config 配置文件的顶层结构
type Config struct {
	Title   string   `toml:"title"`
	Network string   `toml:"network"`
	Log     *Log     `toml:"log"`
	Promise *Promise `toml:"promise"`
	Store   *Store   `toml:"store"`
	Metrics *Metrics `toml:"metrics"`
}

// Log 日志配置
type Log struct {
	// 日志级别，支持crit,error,warn,info,debug
	Loglevel        string `toml:"loglevel"`
	LogConsoleLevel string `toml:"logConsoleLevel"`
	// 日志文件名，为空时只输出到控制台
	LogFile string `toml:"logFile"`
	// 单个日志文件的最大值（单位：兆）
	MaxFileSize uint32 `toml:"maxFileSize"`
	// 最多保存的历史日志文件个数
	MaxBackups uint32 `toml:"maxBackups"`
	// 最多保存的历史日志消息（单位：天）
	MaxAge         uint32 `toml:"maxAge"`
	LocalTime      bool   `toml:"localTime"`
	Compress       bool   `toml:"compress"`
	CallerFile     bool   `toml:"callerFile"`
	CallerFunction bool   `toml:"callerFunction"`
	// 按模块覆盖日志级别，如 promise = "debug"，db 覆盖 db.goleveldb
	Module map[string]string `toml:"module"`
}

// Promise parameters of a puzzle promise negotiation
type Promise struct {
	RealCount  int `toml:"realCount"`
	DecoyCount int `toml:"decoyCount"`
	// bit size of the signer's RSA puzzle key
	KeyBits int `toml:"keyBits"`
	// hex encoded 32 bytes mixed into every decoy hash
	DecoyFormat string `toml:"decoyFormat"`
	// BTC per 1000 virtual bytes, e.g. "0.0001"
	FeeRate  string `toml:"feeRate"`
	LockTime uint32 `toml:"lockTime"`
}

// Store session store configuration
type Store struct {
	Driver    string `toml:"driver"`
	DbPath    string `toml:"dbPath"`
	CacheSize int    `toml:"cacheSize"`
}

// Metrics 度量配置
type Metrics struct {
	EnableMetrics bool `toml:"enableMetrics"`
	// seconds between two emissions
	Interval int64 `toml:"interval"`
}

// default values
const (
	DefaultRealCount  = 42
	DefaultDecoyCount = 42
	DefaultKeyBits    = 2048
	DefaultFeeRate    = "0.0001"
	DefaultCacheSize  = 128
	// 0x01 followed by 31 zero bytes
	DefaultDecoyFormat = "0100000000000000000000000000000000000000000000000000000000000000"
)

func readFile(path string) (string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InitCfg 读取并解析配置文件
func InitCfg(path string) (*Config, error) {
	s, err := readFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return InitCfgString(s)
}

// InitCfgString 解析配置字符串，并填充默认值
func InitCfgString(cfgstring string) (*Config, error) {
	var cfg Config
	md, err := tml.Decode(cfgstring, &cfg)
	if err != nil {
		return nil, errors.Wrap(err, "decode toml")
	}
	cfg.fillDefault(&md)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a config with every default value set
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.fillDefault(nil)
	return cfg
}

// fillDefault md tells explicit zero values apart from missing keys, nil means nothing was decoded
func (c *Config) fillDefault(md *tml.MetaData) {
	defined := func(key ...string) bool {
		return md != nil && md.IsDefined(key...)
	}
	if c.Title == "" {
		c.Title = "puzzlepromise"
	}
	if c.Network == "" {
		c.Network = "regtest"
	}
	if c.Log == nil {
		c.Log = &Log{}
	}
	if c.Promise == nil {
		c.Promise = &Promise{}
	}
	p := c.Promise
	if !defined("promise", "realCount") {
		p.RealCount = DefaultRealCount
	}
	if !defined("promise", "decoyCount") {
		p.DecoyCount = DefaultDecoyCount
	}
	if p.KeyBits == 0 {
		p.KeyBits = DefaultKeyBits
	}
	if p.DecoyFormat == "" {
		p.DecoyFormat = DefaultDecoyFormat
	}
	if p.FeeRate == "" {
		p.FeeRate = DefaultFeeRate
	}
	if c.Store == nil {
		c.Store = &Store{}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "leveldb"
	}
	if c.Store.DbPath == "" {
		c.Store.DbPath = "datadir"
	}
	if c.Store.CacheSize == 0 {
		c.Store.CacheSize = DefaultCacheSize
	}
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 60
	}
}

// Validate checks every value that cannot be defaulted
func (c *Config) Validate() error {
	if _, err := c.NetParams(); err != nil {
		return err
	}
	p := c.Promise
	if p.RealCount < 1 {
		return errors.Wrapf(ErrInvalidConfig, "promise.realCount %d < 1", p.RealCount)
	}
	if p.DecoyCount < 0 {
		return errors.Wrapf(ErrInvalidConfig, "promise.decoyCount %d < 0", p.DecoyCount)
	}
	if p.KeyBits < 1024 {
		return errors.Wrapf(ErrInvalidConfig, "promise.keyBits %d < 1024", p.KeyBits)
	}
	if _, err := c.DecoyFormat(); err != nil {
		return err
	}
	if _, err := c.FeeRate(); err != nil {
		return err
	}
	return nil
}

// NetParams maps the configured network name to bitcoin chain params
func (c *Config) NetParams() (*chaincfg.Params, error) {
	switch strings.ToLower(c.Network) {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfig, "unknown network %q", c.Network)
}

// DecoyFormat decodes promise.decoyFormat
func (c *Config) DecoyFormat() ([32]byte, error) {
	var f [32]byte
	b, err := hex.DecodeString(c.Promise.DecoyFormat)
	if err != nil || len(b) != len(f) {
		return f, errors.Wrapf(ErrInvalidConfig, "promise.decoyFormat %q", c.Promise.DecoyFormat)
	}
	copy(f[:], b)
	return f, nil
}

// FeeRate parses promise.feeRate (BTC/kvB) into satoshis per 1000 virtual bytes
func (c *Config) FeeRate() (btcutil.Amount, error) {
	return ParseFeeRate(c.Promise.FeeRate)
}

// ParseFeeRate parses a decimal BTC/kvB string into satoshis per 1000 virtual bytes
func ParseFeeRate(s string) (btcutil.Amount, error) {
	rate, err := ParseBtcAmount(s)
	if err != nil {
		return 0, errors.Wrapf(err, "fee rate")
	}
	return rate, nil
}

// ParseBtcAmount parses a non negative decimal BTC string into satoshis
func ParseBtcAmount(s string) (btcutil.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidConfig, "amount %q", s)
	}
	if d.IsNegative() {
		return 0, errors.Wrapf(ErrInvalidConfig, "amount %q is negative", s)
	}
	sat := d.Shift(8)
	if !sat.Equal(sat.Truncate(0)) {
		return 0, errors.Wrapf(ErrInvalidConfig, "amount %q has sub-satoshi precision", s)
	}
	return btcutil.Amount(sat.IntPart()), nil
}

package config

import (
	"github.com/BurntSushi/toml"
)

type AppConfig struct {
	Index  IndexParams  `toml:"index"`
	Server ServerConfig `toml:"server"`
}

type IndexParams struct {
	Family           string  `toml:"family"` // srp, l2, mips, minhash
	K                int     `toml:"k"`
	L                int     `toml:"l"`
	Dim              int     `toml:"dim"`
	Seed             uint64  `toml:"seed"`
	R                float64 `toml:"r"`
	U                float64 `toml:"u"`
	M                int     `toml:"m"`
	MultiProbeBudget int     `toml:"multi_probe_budget"`
	OnlyIndex        bool    `toml:"only_index"`
	Backend          string  `toml:"backend"` // memory, sqlite, sqlite_mem, nutsdb
	DBPath           string  `toml:"db_path"`
}

type ServerConfig struct {
	QueryURLSuffix string `toml:"query_url_suffix"`
	StoreURLSuffix string `toml:"store_url_suffix"`
	Port           uint16 `toml:"port"`
	LogLevel       string `toml:"log_level"`
}

func LoadConfig() (*AppConfig, error) {
	var config AppConfig
	if _, err := toml.DecodeFile("config.toml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

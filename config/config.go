// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/linesort/internal/helpers"
	"github.com/cardinalhq/linesort/internal/objectstore"
	"github.com/cardinalhq/linesort/internal/session"
)

// Config aggregates configuration for the application.
type Config struct {
	Sort        SortConfig        `mapstructure:"sort"`
	S3          S3Config          `mapstructure:"s3"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// DiagnosticsConfig holds diagnostics settings.
type DiagnosticsConfig struct {
	// PprofPort serves runtime profiles on loopback when positive.
	PprofPort int `mapstructure:"pprof_port"`
}

// SortConfig is the file and environment shape of session.Config. Sizes
// are strings so that "4GiB" works as well as a plain byte count.
type SortConfig struct {
	MemoryBudget     string  `mapstructure:"memory_budget"`
	Deduplicate      bool    `mapstructure:"deduplicate"`
	AutoVerify       bool    `mapstructure:"auto_verify"`
	TempDir          string  `mapstructure:"temp_dir"`
	Blacklist        string  `mapstructure:"blacklist"`
	DeleteChars      string  `mapstructure:"delete_chars"`
	Workers          int     `mapstructure:"workers"`
	MergeStrategy    string  `mapstructure:"merge_strategy"`
	StrictMerge      bool    `mapstructure:"strict_merge"`
	DiskSafetyFactor float64 `mapstructure:"disk_safety_factor"`
	AllowLowDisk     bool    `mapstructure:"allow_low_disk"`
}

// S3Config configures access to s3:// inputs and outputs.
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	RoleARN      string `mapstructure:"role_arn"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	InsecureTLS  bool   `mapstructure:"insecure_tls"`
}

func defaultSortConfig() SortConfig {
	d := session.DefaultConfig()
	return SortConfig{
		MemoryBudget:     helpers.FormatBytes(d.MemoryBudget),
		Deduplicate:      d.Deduplicate,
		AutoVerify:       d.AutoVerify,
		TempDir:          d.TempDir,
		Workers:          d.Workers,
		MergeStrategy:    d.MergeStrategy,
		DiskSafetyFactor: d.DiskSafetyFactor,
	}
}

// Session converts the loaded values into an engine configuration. It
// does not validate beyond parsing; session.New does that.
func (c SortConfig) Session() (session.Config, error) {
	budget, err := helpers.ParseByteSize(c.MemoryBudget)
	if err != nil {
		return session.Config{}, fmt.Errorf("%w: memory_budget: %w", session.ErrInvalidConfig, err)
	}
	return session.Config{
		MemoryBudget:     budget,
		Deduplicate:      c.Deduplicate,
		AutoVerify:       c.AutoVerify,
		TempDir:          c.TempDir,
		Blacklist:        c.Blacklist,
		DeleteChars:      c.DeleteChars,
		Workers:          c.Workers,
		MergeStrategy:    c.MergeStrategy,
		StrictMerge:      c.StrictMerge,
		DiskSafetyFactor: c.DiskSafetyFactor,
		AllowLowDisk:     c.AllowLowDisk,
	}, nil
}

// Options converts to the object store client options.
func (c S3Config) Options() objectstore.S3Options {
	return objectstore.S3Options{
		Region:       c.Region,
		Endpoint:     c.Endpoint,
		RoleARN:      c.RoleARN,
		UsePathStyle: c.UsePathStyle,
		InsecureTLS:  c.InsecureTLS,
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "LINESORT" and the dot character
// in keys is replaced by an underscore. For example, "sort.memory_budget"
// becomes "LINESORT_SORT_MEMORY_BUDGET".
func Load() (*Config, error) {
	cfg := &Config{
		Sort: defaultSortConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("LINESORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

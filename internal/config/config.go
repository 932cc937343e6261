package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/mpi-simulator/internal/inputs"
	"yqhp/mpi-simulator/pkg/logger"
)

// ErrTooFewProcesses is returned when a run has no worker rank.
var ErrTooFewProcesses = errors.New("at least 2 processes are required (one coordinator and one worker)")

// Config represents the complete configuration of a simulation run.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig holds the process pool and the input batch.
type SimulationConfig struct {
	Processes  int           `yaml:"processes" env:"MPISIM_PROCESSES"`
	InputCount int           `yaml:"input_count" env:"MPISIM_INPUT_COUNT"`
	InputMin   uint64        `yaml:"input_min" env:"MPISIM_INPUT_MIN"`
	InputMax   uint64        `yaml:"input_max" env:"MPISIM_INPUT_MAX"`
	Seed       uint64        `yaml:"seed" env:"MPISIM_SEED"` // 0 picks a random seed
	Inputs     []uint64      `yaml:"inputs,omitempty" env:"MPISIM_INPUTS"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"MPISIM_MAX_DELAY"`
}

// OutputConfig holds result sink configuration.
type OutputConfig struct {
	File    string       `yaml:"file" env:"MPISIM_OUTPUT_FILE"` // CSV path, empty disables
	Console bool         `yaml:"console" env:"MPISIM_OUTPUT_CONSOLE"`
	Sinks   []SinkConfig `yaml:"sinks,omitempty"`
}

// SinkConfig configures an additional sink (json, database, redis, ...).
type SinkConfig struct {
	Type    string         `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"MPISIM_LOG_LEVEL"`
	Format     string `yaml:"format" env:"MPISIM_LOG_FORMAT"`
	Output     string `yaml:"output" env:"MPISIM_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"MPISIM_LOG_FILE"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Processes:  4,
			InputCount: 20,
			InputMin:   1,
			InputMax:   1000,
		},
		Output: OutputConfig{
			File:    "output.csv",
			Console: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Logger converts the logging section for pkg/logger.
func (c LoggingConfig) Logger() *logger.Config {
	return &logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
}

// Validate checks the configuration before a run starts.
func (c *Config) Validate() error {
	s := c.Simulation
	if s.Processes < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewProcesses, s.Processes)
	}
	if s.MaxDelay < 0 {
		return fmt.Errorf("max_delay must not be negative: %s", s.MaxDelay)
	}

	if len(s.Inputs) > 0 {
		return inputs.Validate(s.Inputs)
	}
	if s.InputCount < 0 {
		return fmt.Errorf("%w: input_count %d", inputs.ErrInvalidRange, s.InputCount)
	}
	if s.InputMin < 1 {
		return fmt.Errorf("%w: input_min %d", inputs.ErrInvalidInput, s.InputMin)
	}
	if s.InputMin > s.InputMax {
		return fmt.Errorf("%w: input_min %d > input_max %d", inputs.ErrInvalidRange, s.InputMin, s.InputMax)
	}

	for i, sc := range c.Output.Sinks {
		if sc.Type == "" {
			return fmt.Errorf("output.sinks[%d]: type is required", i)
		}
	}
	return nil
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "MPISIM_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables. Tags declared
// with the default MPISIM_ prefix are looked up under the new prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
// Keys are dot paths such as "simulation.processes".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("应用命令行参数覆盖失败: %s: %w", key, err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file keeps
// the defaults.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		if l.envPrefix != "" {
			envTag = l.envPrefix + strings.TrimPrefix(envTag, "MPISIM_")
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

// setConfigValue sets a configuration value by dot-notation path.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		want := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, want)
		})
		if !field.IsValid() {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("无效的无符号整数: %w", err)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		switch field.Type().Elem().Kind() {
		case reflect.Uint64:
			values, err := inputs.ParseValues(value)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(values))
		case reflect.String:
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		default:
			return fmt.Errorf("不支持的切片类型: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSanitizer   = "address"
	DefaultHarnessName = "local_harness"
	DefaultPovTimeout  = 60 * time.Second
)

type AppConfig struct {
	LogLevel    string
	ServiceName string
	OtelEnabled bool

	Target     TargetConfig
	PovTimeout time.Duration

	WorkspaceRoot     string
	FunctionIndexPath string // optional, JSON function index
	PovInput          string // file or directory of PoVs (one-shot mode)
	PovInbox          string // directory watched for new PoVs (daemon mode)
	CrashDir          string

	DatabaseURL        string // optional, bug records are skipped when empty
	RedisUrl           string // optional
	RedisSentinelHosts string // comma separated, used when RedisUrl is empty
	RedisMasterName    string
	RabbitMQURL        string // optional
}

// TargetConfig describes a locally built target. It can be loaded from a YAML
// file and then overridden field by field from the environment.
type TargetConfig struct {
	ProjectID           string   `yaml:"project_id"`
	SourceDir           string   `yaml:"source_dir"`
	BuildCommand        string   `yaml:"build_command"`
	RunCommand          string   `yaml:"run_command"` // placeholders: {input} {input_path} {harness} {harness_name} {sanitizer} {source_dir}
	HarnessName         string   `yaml:"harness_name"`
	HarnessFunctionName string   `yaml:"harness_function_name"`
	HarnessSourcePath   string   `yaml:"harness_source_path"`
	CrashKeywords       []string `yaml:"crash_keywords"`
	Sanitizer           string   `yaml:"sanitizer"`
}

func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	config := &AppConfig{
		LogLevel:           os.Getenv("LOG_LEVEL"),
		ServiceName:        os.Getenv("SERVICE_NAME"),
		OtelEnabled:        parseBool(os.Getenv("OTEL_ENABLED"), false),
		PovTimeout:         parseDuration(os.Getenv("POV_TIMEOUT"), DefaultPovTimeout),
		WorkspaceRoot:      os.Getenv("WORKSPACE_ROOT"),
		FunctionIndexPath:  os.Getenv("FUNCTION_INDEX"),
		PovInput:           os.Getenv("POV_INPUT"),
		PovInbox:           os.Getenv("POV_INBOX"),
		CrashDir:           os.Getenv("CRASH_DIR"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisUrl:           os.Getenv("REDIS_URL"),
		RedisSentinelHosts: os.Getenv("REDIS_SENTINEL_HOSTS"),
		RedisMasterName:    os.Getenv("REDIS_MASTER_NAME"),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
	}

	if path := os.Getenv("TARGET_CONFIG"); path != "" {
		target, err := LoadTargetFile(path)
		if err != nil {
			return nil, err
		}
		config.Target = *target
	}
	config.Target.applyEnv()

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ServiceName == "" {
		config.ServiceName = "b3pov"
	}
	if config.WorkspaceRoot == "" {
		config.WorkspaceRoot = filepath.Join(os.TempDir(), "b3pov")
	}
	if config.CrashDir == "" {
		config.CrashDir = filepath.Join(config.WorkspaceRoot, "crashes")
	}
	if config.Target.ProjectID == "" {
		config.Target.ProjectID = "local-project"
	}
	if config.Target.HarnessName == "" {
		config.Target.HarnessName = DefaultHarnessName
	}
	if config.Target.Sanitizer == "" {
		config.Target.Sanitizer = DefaultSanitizer
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// the target always runs from an absolute source directory
	abs, err := filepath.Abs(config.Target.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source dir: %w", err)
	}
	config.Target.SourceDir = abs

	return config, nil
}

// LoadTargetFile parses a YAML target description.
func LoadTargetFile(path string) (*TargetConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target config: %w", err)
	}
	var target TargetConfig
	if err := yaml.Unmarshal(content, &target); err != nil {
		return nil, fmt.Errorf("failed to parse target config %s: %w", path, err)
	}
	return &target, nil
}

// Validate reports every configuration problem at once.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Target.SourceDir == "" {
		errs = append(errs, errors.New("SOURCE_DIR is required"))
	} else if info, err := os.Stat(c.Target.SourceDir); err != nil {
		errs = append(errs, fmt.Errorf("source dir does not exist: %s", c.Target.SourceDir))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("source dir is not a directory: %s", c.Target.SourceDir))
	}
	if strings.TrimSpace(c.Target.RunCommand) == "" {
		errs = append(errs, errors.New("RUN_COMMAND is required"))
	}
	if c.PovTimeout <= 0 {
		errs = append(errs, fmt.Errorf("POV_TIMEOUT must be positive, got %s", c.PovTimeout))
	}
	return errors.Join(errs...)
}

func (t *TargetConfig) applyEnv() {
	overrideString(&t.ProjectID, "PROJECT_ID")
	overrideString(&t.SourceDir, "SOURCE_DIR")
	overrideString(&t.BuildCommand, "BUILD_COMMAND")
	overrideString(&t.RunCommand, "RUN_COMMAND")
	overrideString(&t.HarnessName, "HARNESS_NAME")
	overrideString(&t.HarnessFunctionName, "HARNESS_FUNCTION_NAME")
	overrideString(&t.HarnessSourcePath, "HARNESS_SOURCE_PATH")
	overrideString(&t.Sanitizer, "SANITIZER")
	if val := os.Getenv("CRASH_KEYWORDS"); val != "" {
		t.CrashKeywords = parseList(val)
	}
}

func overrideString(dst *string, key string) {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		*dst = val
	}
}

func parseList(val string) []string {
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// plain numbers are seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		return defaultVal
	}
	return d
}

func parseBool(val string, defaultVal bool) bool {
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

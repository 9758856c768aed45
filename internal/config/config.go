package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backup   BackupConfig   `mapstructure:"backup"`
	AWS      AWSConfig      `mapstructure:"aws"`
	GDrive   GDriveConfig   `mapstructure:"gdrive"`
	Telegram TelegramConfig `mapstructure:"telegram"`

	Jobs []JobConfig `mapstructure:"-"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	LockDir  string `mapstructure:"lock_dir"`
	DataDir  string `mapstructure:"data_dir"`
}

// BackupConfig holds the global defaults a job may override. LocalPath, when
// set, mirrors every synced set into a second local directory alongside the
// remote targets.
type BackupConfig struct {
	Destination      string           `mapstructure:"destination"`
	LocalPath        string           `mapstructure:"local_path"`
	KeepSets         int              `mapstructure:"keep_sets"`
	MaxTarballSizeMB int              `mapstructure:"max_tarball_size"`
	Exclude          []string         `mapstructure:"exclude"`
	UseCommonExclude bool             `mapstructure:"use_common_exclude"`
	Encryption       EncryptionConfig `mapstructure:"encryption"`
}

type EncryptionConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PassphraseEnv string `mapstructure:"passphrase_env"`
}

type AWSConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	StorageClass string `mapstructure:"storage_class"`
}

type GDriveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// JobConfig is one job file from the jobs directory. Pointer fields are
// unset-vs-zero markers: nil means "inherit the global value".
type JobConfig struct {
	Name             string            `mapstructure:"job_name"`
	Source           string            `mapstructure:"source"`
	Destination      string            `mapstructure:"destination"`
	Schedule         string            `mapstructure:"schedule"`
	Enabled          bool              `mapstructure:"enabled"`
	Exclude          []string          `mapstructure:"exclude"`
	UseCommonExclude *bool             `mapstructure:"use_common_exclude"`
	KeepSets         *int              `mapstructure:"keep_sets"`
	MaxTarballSizeMB *int              `mapstructure:"max_tarball_size"`
	Encryption       *EncryptionConfig `mapstructure:"encryption"`
	Sync             bool              `mapstructure:"sync"`
}

// JobSettings is the fully-resolved snapshot a run reads. It is computed once
// at run start so later config edits cannot affect an in-flight run.
type JobSettings struct {
	JobName         string
	Source          string
	Destination     string
	Schedule        string
	Exclude         []string
	KeepSets        int
	MaxArchiveBytes int64
	Encryption      EncryptionConfig
	Sync            bool
}

// Load reads the global config file plus every job file in jobsDir.
func Load(globalPath, jobsDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(globalPath)
	v.SetConfigType("yaml")

	v.SetDefault("app.name", "arkiva")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.lock_dir", "locks")
	v.SetDefault("app.data_dir", "data")
	v.SetDefault("backup.keep_sets", 5)
	v.SetDefault("backup.max_tarball_size", 1024)
	v.SetDefault("backup.use_common_exclude", true)
	v.SetDefault("backup.encryption.passphrase_env", "ARKIVA_ENCRYPT_PASSPHRASE")
	v.SetDefault("aws.storage_class", "STANDARD")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	jobs, err := loadJobs(jobsDir)
	if err != nil {
		return nil, err
	}
	cfg.Jobs = jobs

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func loadJobs(jobsDir string) ([]JobConfig, error) {
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var jobs []JobConfig
	for _, name := range names {
		v := viper.New()
		v.SetConfigFile(filepath.Join(jobsDir, name))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read job file %s: %w", name, err)
		}
		var job JobConfig
		if err := v.Unmarshal(&job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job file %s: %w", name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job[%d]: job_name is required", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("job[%d]: duplicate job_name %q", i, job.Name)
		}
		seen[job.Name] = true
		if job.Source == "" {
			return fmt.Errorf("job %q: source is required", job.Name)
		}
		if job.Destination == "" && c.Backup.Destination == "" {
			return fmt.Errorf("job %q: destination is required (job or global)", job.Name)
		}
		if job.Enabled && job.Schedule == "" {
			return fmt.Errorf("job %q: schedule is required when enabled", job.Name)
		}
		enc := c.resolveEncryption(job)
		if enc.Enabled && enc.PassphraseEnv == "" {
			return fmt.Errorf("job %q: encryption.passphrase_env is required when encryption is enabled", job.Name)
		}
	}
	return nil
}

// Job returns the job config with the given name.
func (c *Config) Job(name string) (JobConfig, bool) {
	for _, job := range c.Jobs {
		if job.Name == name {
			return job, true
		}
	}
	return JobConfig{}, false
}

func (c *Config) EnabledJobs() []JobConfig {
	var enabled []JobConfig
	for _, job := range c.Jobs {
		if job.Enabled {
			enabled = append(enabled, job)
		}
	}
	return enabled
}

// Resolve applies override precedence (job over global) and returns the
// immutable settings snapshot for one run.
func (c *Config) Resolve(job JobConfig) JobSettings {
	s := JobSettings{
		JobName:     job.Name,
		Source:      job.Source,
		Destination: c.Backup.Destination,
		Schedule:    job.Schedule,
		KeepSets:    c.Backup.KeepSets,
		Encryption:  c.resolveEncryption(job),
		Sync:        job.Sync,
	}
	if job.Destination != "" {
		s.Destination = job.Destination
	}
	if job.KeepSets != nil {
		s.KeepSets = *job.KeepSets
	}
	maxMB := c.Backup.MaxTarballSizeMB
	if job.MaxTarballSizeMB != nil {
		maxMB = *job.MaxTarballSizeMB
	}
	s.MaxArchiveBytes = int64(maxMB) * 1024 * 1024

	useCommon := c.Backup.UseCommonExclude
	if job.UseCommonExclude != nil {
		useCommon = *job.UseCommonExclude
	}
	if useCommon {
		s.Exclude = append(append([]string{}, c.Backup.Exclude...), job.Exclude...)
	} else {
		s.Exclude = append([]string{}, job.Exclude...)
	}
	return s
}

func (c *Config) resolveEncryption(job JobConfig) EncryptionConfig {
	enc := c.Backup.Encryption
	if job.Encryption != nil {
		enc = *job.Encryption
		if enc.PassphraseEnv == "" {
			enc.PassphraseEnv = c.Backup.Encryption.PassphraseEnv
		}
	}
	return enc
}

// SanitizeName makes a job or host name safe for use as a path component.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

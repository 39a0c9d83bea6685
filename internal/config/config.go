package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const appName = "sonicsync"

// Defaults mirror the values the legacy environment-only deployment used.
const (
	DefaultPlaylistPrefix = "Spotisub - "
	DefaultExcludedWords  = "acoustic,instrumental,demo"
)

type Config struct {
	CacheDir       string `koanf:"cache_dir"`     // snapshot files (object cache, library cache)
	DatabasePath   string `koanf:"database_path"` // sqlite store
	PlaylistPrefix string `koanf:"playlist_prefix"`

	Matching MatchingConfig `koanf:"matching"`

	// Target library
	Subsonic SubsonicConfig `koanf:"subsonic"`

	// Source catalog
	Spotify SpotifyConfig `koanf:"spotify"`

	// slskd downloader (submits downloads for unmatched tracks when enabled)
	Slskd SlskdConfig `koanf:"slskd"`

	// Lidarr gate for downloads (only monitored artists are downloaded)
	Lidarr LidarrConfig `koanf:"lidarr"`

	// Last.fm recording-id fallback when the ISRC lookup yields nothing
	Lastfm LastfmConfig `koanf:"lastfm"`

	ObjectCache ObjectCacheConfig `koanf:"object_cache"`

	Log LogConfig `koanf:"log"`
}

// MatchingConfig controls the fuzzy fallback and the exclusion policy.
type MatchingConfig struct {
	Fuzzy         bool     `koanf:"fuzzy"`
	ExcludedWords []string `koanf:"excluded_words"`
}

// SubsonicConfig holds the target library connection settings.
type SubsonicConfig struct {
	Host     string `koanf:"host"`      // e.g., "http://navidrome"
	Port     int    `koanf:"port"`      // 0 keeps the port from host
	BasePath string `koanf:"base_path"` // reverse-proxy prefix, without /rest
	User     string `koanf:"user"`
	Password string `koanf:"password"`
}

// SpotifyConfig holds client-credentials for the Spotify Web API.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Market       string `koanf:"market"` // country for artist top tracks (default: "US")
}

// SlskdConfig holds all slskd-related configuration.
type SlskdConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`    // e.g., "http://localhost:5030"
	APIKey  string `koanf:"apikey"` // API key from slskd settings
	Format  string `koanf:"format"` // "both", "lossless", "lossy" (default: "both")
}

// LidarrConfig holds Lidarr connection settings.
type LidarrConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	UseSSL   bool   `koanf:"use_ssl"`
	BasePath string `koanf:"base_path"`
	APIKey   string `koanf:"apikey"`
}

// LastfmConfig holds Last.fm API credentials.
type LastfmConfig struct {
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// ObjectCacheConfig bounds the source-catalog object cache.
type ObjectCacheConfig struct {
	TTLHours   int `koanf:"ttl_hours"`   // default: 12
	MaxEntries int `koanf:"max_entries"` // default: 10000
}

// LogConfig selects zap's level and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "console" or "json"
}

// envKeys maps the env-style configuration surface onto koanf keys.
var envKeys = map[string]string{
	"CACHE_DIR":                     "cache_dir",
	"DATABASE_PATH":                 "database_path",
	"PLAYLIST_PREFIX":               "playlist_prefix",
	"TEXT_COMPARE_MATCHING_ENABLED": "matching.fuzzy",
	"TEXT_COMAPRE_MATCHING_ENABLED": "matching.fuzzy", // legacy spelling
	"EXCLUDED_WORDS":                "matching.excluded_words",
	"SUBSONIC_API_HOST":             "subsonic.host",
	"SUBSONIC_API_PORT":             "subsonic.port",
	"SUBSONIC_API_BASE_URL":         "subsonic.base_path",
	"SUBSONIC_API_USER":             "subsonic.user",
	"SUBSONIC_API_PASS":             "subsonic.password",
	"SPOTIPY_CLIENT_ID":             "spotify.client_id",
	"SPOTIPY_CLIENT_SECRET":         "spotify.client_secret",
	"SPOTIFY_MARKET":                "spotify.market",
	"SLSKD_ENABLED":                 "slskd.enabled",
	"SPOTDL_ENABLED":                "slskd.enabled",
	"SLSKD_URL":                     "slskd.url",
	"SLSKD_API_KEY":                 "slskd.apikey",
	"SLSKD_FORMAT":                  "slskd.format",
	"LIDARR_ENABLED":                "lidarr.enabled",
	"LIDARR_IP":                     "lidarr.host",
	"LIDARR_PORT":                   "lidarr.port",
	"LIDARR_USE_SSL":                "lidarr.use_ssl",
	"LIDARR_BASE_API_PATH":          "lidarr.base_path",
	"LIDARR_TOKEN":                  "lidarr.apikey",
	"LASTFM_API_KEY":                "lastfm.api_key",
	"LASTFM_API_SECRET":             "lastfm.api_secret",
	"LOG_LEVEL":                     "log.level",
	"LOG_FORMAT":                    "log.format",
}

var envBoolKeys = map[string]bool{
	"matching.fuzzy": true,
	"slskd.enabled":  true,
	"lidarr.enabled": true,
	"lidarr.use_ssl": true,
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	return load(getConfigPaths())
}

func load(configPaths []string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Environment overrides files
	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		PlaylistPrefix: DefaultPlaylistPrefix,
		Matching: MatchingConfig{
			ExcludedWords: splitList(DefaultExcludedWords),
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	// The legacy prefix was often quoted in compose files
	cfg.PlaylistPrefix = strings.ReplaceAll(cfg.PlaylistPrefix, `"`, "")

	if cfg.Spotify.Market == "" {
		cfg.Spotify.Market = "US"
	}

	cfg.Subsonic.Host = strings.TrimSuffix(cfg.Subsonic.Host, "/")
	cfg.Slskd.URL = strings.TrimSuffix(cfg.Slskd.URL, "/")

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(xdg.CacheHome, appName)
	}
	cfg.CacheDir = expandPath(cfg.CacheDir)

	if cfg.DatabasePath == "" {
		path, err := xdg.DataFile(filepath.Join(appName, appName+".db"))
		if err != nil {
			return nil, err
		}
		cfg.DatabasePath = path
	}
	cfg.DatabasePath = expandPath(cfg.DatabasePath)

	return cfg, nil
}

// envValue maps a single environment variable onto its koanf key.
// Unknown variables are skipped by returning an empty key.
func envValue(key, value string) (string, any) {
	target, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	if target == "matching.excluded_words" {
		return target, splitList(value)
	}
	if envBoolKeys[target] {
		return target, parseBool(value)
	}
	return target, value
}

func parseBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "1" || s == "true" || s == "yes"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/sonicsync/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// SubsonicURL returns the target library base URL including port and base path.
func (c *Config) SubsonicURL() string {
	return joinURL(c.Subsonic.Host, c.Subsonic.Port, c.Subsonic.BasePath)
}

// LidarrURL returns the Lidarr base URL.
func (c *Config) LidarrURL() string {
	host := c.Lidarr.Host
	if host != "" && !strings.Contains(host, "://") {
		scheme := "http://"
		if c.Lidarr.UseSSL {
			scheme = "https://"
		}
		host = scheme + host
	}
	return joinURL(host, c.Lidarr.Port, c.Lidarr.BasePath)
}

func joinURL(host string, port int, basePath string) string {
	if host == "" {
		return ""
	}
	u := strings.TrimSuffix(host, "/")
	if port > 0 {
		u = fmt.Sprintf("%s:%d", u, port)
	}
	if basePath != "" {
		u += "/" + strings.Trim(basePath, "/")
	}
	return u
}

// HasSubsonicConfig returns true if the target library is configured.
func (c *Config) HasSubsonicConfig() bool {
	return c.Subsonic.Host != "" && c.Subsonic.User != ""
}

// HasSpotifyConfig returns true if Spotify credentials are configured.
func (c *Config) HasSpotifyConfig() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// HasSlskdConfig returns true if slskd integration is configured and enabled.
func (c *Config) HasSlskdConfig() bool {
	return c.Slskd.Enabled && c.Slskd.URL != "" && c.Slskd.APIKey != ""
}

// HasLidarrConfig returns true if Lidarr integration is configured and enabled.
func (c *Config) HasLidarrConfig() bool {
	return c.Lidarr.Enabled && c.Lidarr.Host != "" && c.Lidarr.APIKey != ""
}

// HasLastfmConfig returns true if Last.fm is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// GetObjectCacheConfig returns the object cache configuration with defaults applied.
func (c *Config) GetObjectCacheConfig() ObjectCacheConfig {
	cfg := c.ObjectCache

	if cfg.TTLHours <= 0 {
		cfg.TTLHours = 12
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}

	return cfg
}

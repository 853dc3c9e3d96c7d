package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Crawler   CrawlerConfig
	Wiki      WikiConfig
	Embedding EmbeddingConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Neo4j     Neo4jConfig
	Server    ServerConfig
	Logging   LoggingConfig
}

type CrawlerConfig struct {
	SeedPage     string
	LangCode     string
	LangCodes    []string
	SimThreshold float64
	MaxPages     int
	MaxNewPages  int
	Runs         int
}

type WikiConfig struct {
	AccessToken string
	AppName     string
	Email       string
	TimeoutSec  int
}

type EmbeddingConfig struct {
	APIKey     string
	Model      string
	Dim        int
	TimeoutSec int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/wikitopics")

	viper.SetEnvPrefix("WIKITOPICS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("crawler.seedPage", "Association_football")
	viper.SetDefault("crawler.langCode", "en")
	viper.SetDefault("crawler.langCodes", []string{"en", "de", "fr", "pt", "es", "it"})
	viper.SetDefault("crawler.simThreshold", 0.45)
	viper.SetDefault("crawler.maxPages", 5)
	viper.SetDefault("crawler.maxNewPages", 5)
	viper.SetDefault("crawler.runs", 5)

	viper.SetDefault("wiki.appName", "wikitopics")
	viper.SetDefault("wiki.email", "admin@example.org")
	viper.SetDefault("wiki.timeoutSec", 180)

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dim", 512)
	viper.SetDefault("embedding.timeoutSec", 30)

	viper.SetDefault("sqlite.path", "./data/wikitopics.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("neo4j.enabled", false)
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

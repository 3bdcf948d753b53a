package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/duo-mfa/pkg/secondfactor"
)

type DuoConfig struct {
	APIHostname             string `env:"DUO_API_HOSTNAME" env-default:"none"`
	IntegrationKey          string `env:"DUO_INTEGRATION_KEY" env-default:"none"`
	SecretKey               string `env:"DUO_SECRET_KEY" env-default:"none"`
	Groups                  string `env:"DUO_GROUPS" env-default:"none"`
	FailSafe                string `env:"DUO_FAIL_SAFE" env-default:""`
	CustomClientIDs         string `env:"DUO_CUSTOM_CLIENT_IDS" env-default:""`
	UsernameRegexMatch      string `env:"DUO_USERNAME_REGEX_MATCH" env-default:"none"`
	UsernameRegexReplace    string `env:"DUO_USERNAME_REGEX_REPLACE" env-default:""`
	UsernameCustomAttribute string `env:"DUO_USERNAME_CUSTOM_ATTRIBUTE" env-default:"none"`
	UseImpersonator         string `env:"DUO_USE_IMPERSONATOR" env-default:"false"`
}

func (d DuoConfig) toRawConfig() map[string]string {
	return map[string]string{
		secondfactor.ConfigAPIHostname:             d.APIHostname,
		secondfactor.ConfigIntegrationKey:          d.IntegrationKey,
		secondfactor.ConfigSecretKey:               d.SecretKey,
		secondfactor.ConfigGroups:                  d.Groups,
		secondfactor.ConfigFailSafe:                d.FailSafe,
		secondfactor.ConfigCustomClientIDs:         d.CustomClientIDs,
		secondfactor.ConfigUsernameRegexMatch:      d.UsernameRegexMatch,
		secondfactor.ConfigUsernameRegexReplace:    d.UsernameRegexReplace,
		secondfactor.ConfigUsernameCustomAttribute: d.UsernameCustomAttribute,
		secondfactor.ConfigUseImpersonator:         d.UseImpersonator,
	}
}

type SessionStoreConfig struct {
	PersistenceType string `env:"SESSION_PERSISTENCE" env-default:"memory"`
	DataDir         string `env:"SESSION_DATA_DIR" env-default:".data"`
	RedisAddr       string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB         int    `env:"REDIS_DB" env-default:"0"`
}

type SessionDbConfig struct {
	Host     string `env:"SESSION_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"SESSION_PG_PORT" env-default:"5432"`
	Database string `env:"SESSION_PG_DATABASE" env-default:"authn_db"`
	User     string `env:"SESSION_PG_USER" env-default:"authn"`
	Password string `env:"SESSION_PG_PASSWORD" env-default:"pwd"`
}

func (d SessionDbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type ServerConfig struct {
	BaseURI       string `env:"BASE_URI" env-default:""`
	SigningSecret string `env:"SIGNING_SECRET" env-default:"very-secure-signing-secret"`
	CookieSecure  bool   `env:"COOKIE_SECURE" env-default:"false"`
	UsersFile     string `env:"USERS_FILE" env-default:""`
}

type Config struct {
	DuoConfig          DuoConfig
	SessionStoreConfig SessionStoreConfig
	SessionDbConfig    SessionDbConfig
	ServerConfig       ServerConfig
	AppConfig          app.AppConfig
}

// loadUsers reads the demo user directory. The primary credential step is out
// of scope for this binary, so users are a static list.
func loadUsers(path string) (map[string]*secondfactor.User, error) {
	users := map[string]*secondfactor.User{}
	if path == "" {
		users["demo"] = &secondfactor.User{Username: "demo"}
		return users, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []secondfactor.User
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for i := range list {
		users[list[i].Username] = &list[i]
	}
	return users, nil
}

func main() {
	config := Config{}
	cleanenv.ReadEnv(&config)

	authConfig, err := secondfactor.BuildConfig(config.DuoConfig.toRawConfig())
	if err != nil {
		slog.Error("Invalid Duo configuration", "err", err)
		os.Exit(-1)
	}

	repositoryConfig := secondfactor.RepositoryConfig{
		DataDir: config.SessionStoreConfig.DataDir,
	}
	switch config.SessionStoreConfig.PersistenceType {
	case "redis":
		repositoryConfig.RedisClient = redis.NewClient(&redis.Options{
			Addr:     config.SessionStoreConfig.RedisAddr,
			Password: config.SessionStoreConfig.RedisPassword,
			DB:       config.SessionStoreConfig.RedisDB,
		})
	case "postgres", "postgresql":
		dbConfig := config.SessionDbConfig.toDbConfig()
		pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
		repositoryConfig.Pool = pool
	}

	sessions, err := secondfactor.NewSessionRepository(config.SessionStoreConfig.PersistenceType, repositoryConfig)
	if err != nil {
		slog.Error("Failed creating session repository", "err", err)
		os.Exit(-1)
	}

	users, err := loadUsers(config.ServerConfig.UsersFile)
	if err != nil {
		slog.Error("Failed loading user directory", "file", config.ServerConfig.UsersFile, "err", err)
		os.Exit(-1)
	}
	lookup := func(ctx context.Context, username string) (*secondfactor.User, error) {
		return users[username], nil
	}

	flowService := secondfactor.NewFlowService(authConfig, nil)
	handle := secondfactor.NewHandle(flowService, sessions, lookup,
		[]byte(config.ServerConfig.SigningSecret),
		secondfactor.WithBaseURI(config.ServerConfig.BaseURI),
		secondfactor.WithSecureCookies(config.ServerConfig.CookieSecure),
	)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Mount("/", secondfactor.Handler(handle))

	server.Run()
}

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ziyixi/slotify/slot"
	"github.com/ziyixi/slotify/store"
	"github.com/ziyixi/slotify/utils"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Config holds all configuration parameters. Flags override values loaded
// from the optional YAML config file, which overrides the defaults.
type Config struct {
	Port         int    `yaml:"port"`
	DatabasePath string `yaml:"databasePath"`
	DatabaseURL  string `yaml:"databaseURL"`
	Timezone     string `yaml:"timezone"`
	SlotLimit    int    `yaml:"slotLimit"`
	WindowDays   int    `yaml:"windowDays"`
	AdminUser    string `yaml:"adminUser"`
	AdminPass    string `yaml:"adminPassword"`
	RateLimit    int    `yaml:"rateLimitPerMinute"`
}

var (
	config     Config
	configPath string
	healthURL  string
	GitCommit  string // Will be set at build time
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to an optional YAML config file")
	flag.IntVar(&config.Port, "port", 8080, "Port to run the server on")
	flag.StringVar(&config.DatabasePath, "database-path", "slotify.db", "Path to the SQLite database file")
	flag.StringVar(&config.DatabaseURL, "database-url", "", "Postgres connection URL; takes precedence over --database-path")
	flag.StringVar(&config.Timezone, "timezone", slot.DefaultTimezone, "IANA timezone anchoring the allocation window's day boundaries")
	flag.IntVar(&config.SlotLimit, "slot-limit", slot.DefaultLimit, "Maximum allocation units per resource per window")
	flag.IntVar(&config.WindowDays, "window-days", slot.DefaultWindowDays, "Rolling window length in calendar days")
	flag.StringVar(&config.AdminUser, "admin-user", "admin", "Username seeded on first start")
	flag.StringVar(&config.AdminPass, "admin-password", "admin123", "Password for the seeded user")
	flag.IntVar(&config.RateLimit, "rate-limit", 0, "Requests per minute allowed on write endpoints (0 disables)")
	flag.StringVar(&healthURL, "healthcheck", "", "Probe the given base URL with the admin credentials and exit")
}

// loadConfigFile merges YAML values into cfg for every field the flags left at
// their default. Explicit flags always win.
func loadConfigFile(path string, cfg *Config, set map[string]bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if !set["port"] && fileCfg.Port != 0 {
		cfg.Port = fileCfg.Port
	}
	if !set["database-path"] && fileCfg.DatabasePath != "" {
		cfg.DatabasePath = fileCfg.DatabasePath
	}
	if !set["database-url"] && fileCfg.DatabaseURL != "" {
		cfg.DatabaseURL = fileCfg.DatabaseURL
	}
	if !set["timezone"] && fileCfg.Timezone != "" {
		cfg.Timezone = fileCfg.Timezone
	}
	if !set["slot-limit"] && fileCfg.SlotLimit != 0 {
		cfg.SlotLimit = fileCfg.SlotLimit
	}
	if !set["window-days"] && fileCfg.WindowDays != 0 {
		cfg.WindowDays = fileCfg.WindowDays
	}
	if !set["admin-user"] && fileCfg.AdminUser != "" {
		cfg.AdminUser = fileCfg.AdminUser
	}
	if !set["admin-password"] && fileCfg.AdminPass != "" {
		cfg.AdminPass = fileCfg.AdminPass
	}
	if !set["rate-limit"] && fileCfg.RateLimit != 0 {
		cfg.RateLimit = fileCfg.RateLimit
	}
	return nil
}

func setupRouter(storage *store.Storage, rateLimit int) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	app := gin.Default()

	app.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := app.Group("/api", storageMiddleware(storage), basicAuthMiddleware(storage))

	api.GET("/phones", HandleListPhones)
	api.GET("/phones/:id", HandleGetPhone)
	api.GET("/phones/:id/usage", HandlePhoneUsage)
	api.GET("/ips", HandleListIPs)
	api.GET("/ips/:id", HandleGetIP)
	api.GET("/ips/:id/usage", HandleIPUsage)
	api.GET("/slots", HandleListSlots)
	api.GET("/slots/:id", HandleGetSlot)
	api.GET("/dashboard/summary", HandleDashboardSummary)

	write := api.Group("")
	write.Use(utils.RateLimitMiddleware(rateLimit))

	write.POST("/phones", HandleCreatePhone)
	write.PATCH("/phones/:id", HandleUpdatePhone)
	write.DELETE("/phones/:id", HandleDeletePhone)
	write.POST("/ips", HandleCreateIP)
	write.PATCH("/ips/:id", HandleUpdateIP)
	write.DELETE("/ips/:id", HandleDeleteIP)
	write.POST("/slots", HandleCreateSlot)
	write.DELETE("/slots/:id", HandleDeleteSlot)
	write.POST("/auth/change-password", HandleChangePassword)

	return app
}

func runHealthcheck(baseURL, username, password string) error {
	body, status, err := utils.FetchWithBasicAuth(baseURL+"/healthz", username, password)
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("healthcheck returned status %d: %v", status, body)
	}
	return nil
}

func main() {
	log.Infof("Server Starting time: %s", time.Now().Format(time.RFC3339))
	flag.Parse()

	if healthURL != "" {
		if err := runHealthcheck(healthURL, config.AdminUser, config.AdminPass); err != nil {
			log.Fatalf("Healthcheck failed: %v", err)
		}
		log.Info("Healthcheck passed")
		return
	}

	if configPath != "" {
		explicitly := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { explicitly[f.Name] = true })
		if err := loadConfigFile(configPath, &config, explicitly); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Infof("Loaded configuration from %s", configPath)
	}

	policy, err := slot.NewPolicy(config.SlotLimit, config.WindowDays, config.Timezone)
	if err != nil {
		log.Fatalf("Invalid allocation policy: %v", err)
	}
	log.Infof("Allocation policy: limit=%d window=%dd timezone=%s",
		policy.Limit, policy.WindowDays, policy.Location)

	storage, err := store.Open(store.Config{
		SQLitePath:  config.DatabasePath,
		DatabaseURL: config.DatabaseURL,
	}, policy)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer storage.Close()

	if err := storage.SeedAdmin(config.AdminUser, config.AdminPass); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	app := setupRouter(storage, config.RateLimit)
	listenAddr := fmt.Sprintf(":%d", config.Port)
	log.Infof("Git commit: %s", GitCommit)
	log.Infof("Gin has started in %s mode on %s", gin.Mode(), listenAddr)

	if err := app.Run(listenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

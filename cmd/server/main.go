// Package main provides the ocean model query HTTP server.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go.ngs.io/oceangrid/internal/adapter/store/opener"
	"go.ngs.io/oceangrid/internal/config"
	httpHandler "go.ngs.io/oceangrid/internal/http"
	"go.ngs.io/oceangrid/internal/model"
	"go.ngs.io/oceangrid/internal/usecase"
)

const version = "0.1.0"

var (
	cfgFile string
	cfg     = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "oceangrid",
	Short: "Ocean model query server",
	Long: `oceangrid serves point, profile, timeseries, path, area and subset
queries over gridded and unstructured ocean model output.

Settings are read from the configuration file, then from OCEANGRID_*
environment variables (a .env file is loaded if present), then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return readConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("oceangrid version %s\n", version)
	},
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the configured datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfg)
		if err != nil {
			return err
		}
		for _, ds := range c.Datasets {
			kind := ds.Type
			if kind == "" {
				kind = "auto"
			}
			fmt.Printf("%-20s %-10s %s\n", ds.ID, kind, ds.URL)
		}
		return nil
	},
}

func init() {
	config.SetDefaults(cfg)
	cfg.SetEnvPrefix(config.EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cfg.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "configuration file (yaml, toml or json)")
	flags.String("port", "8080", "server port")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("cors-allowed-origins", "", "comma-separated list of allowed origins (default: all origins)")
	flags.Float64("rate-limit", 0, "sustained requests per second, 0 disables limiting")
	flags.Int("open-datasets", opener.DefaultSize, "number of datasets kept open")
	flags.Int("workers", 0, "resampling workers per request, 0 uses one per CPU")
	if err := bindFlags(cfg, flags, "port", "log-level", "cors-allowed-origins", "rate-limit", "open-datasets", "workers"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(versionCmd, datasetsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bindFlags binds each named flag to the viper key with dashes replaced
// by underscores.
func bindFlags(cfg *viper.Viper, set *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		f := set.Lookup(name)
		if f == nil {
			return fmt.Errorf("no flag named %s", name)
		}
		if err := cfg.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
			return err
		}
	}
	return nil
}

// readConfig loads .env and the configuration file.
func readConfig() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env file")
	}
	if cfgFile == "" {
		cfgFile = os.Getenv(config.EnvPrefix + "_CONFIG")
	}
	if cfgFile == "" {
		return nil
	}
	cfg.SetConfigFile(cfgFile)
	if err := cfg.ReadInConfig(); err != nil {
		return fmt.Errorf("problem reading configuration file: %v", err)
	}
	return nil
}

func serve() error {
	c, err := config.Load(cfg)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log_level=%q", config.ErrInvalid, c.LogLevel)
	}
	log.SetLevel(level)

	log.Info("Starting ocean model query server...")
	log.Infof("Port: %s", c.Port)
	if cfgFile != "" {
		log.Infof("Configuration: %s", cfgFile)
	}
	if len(c.Datasets) == 0 {
		log.Warn("No datasets configured")
	}
	for _, ds := range c.Datasets {
		log.WithFields(logrus.Fields{
			"id":   ds.ID,
			"type": ds.Type,
			"url":  ds.URL,
		}).Info("Registered dataset")
	}

	// Initialize dataset handles.
	models := opener.New(c.Datasets, opener.Options{
		Size:   c.OpenDatasets,
		Model:  model.Options{Workers: c.Workers, Logger: log},
		Logger: log,
	})
	defer func() {
		if err := models.Close(); err != nil {
			log.WithError(err).Warn("failed to close datasets")
		}
	}()

	// Initialize use case.
	queryUC := usecase.NewQueryUseCase(c.Datasets, models)

	// Setup router.
	router := httpHandler.SetupRouter(queryUC, httpHandler.RouterOptions{
		CORSOrigins: c.CORSOrigins,
		RateLimit:   c.RateLimit,
		RateBurst:   c.RateBurst,
		Logger:      log,
	})

	// Start server.
	addr := fmt.Sprintf(":%s", c.Port)
	log.Infof("Server listening on %s", addr)
	log.Infof("Health check: http://localhost:%s/health", c.Port)
	log.Info("API endpoints:")
	log.Info("  - GET /v1/datasets")
	log.Info("  - GET /v1/datasets/:id/variables")
	for _, op := range []usecase.Operation{
		usecase.OpPoint, usecase.OpProfile, usecase.OpTimeseries, usecase.OpPath,
		usecase.OpProfileDepths, usecase.OpArea, usecase.OpSubset,
	} {
		log.Infof("  - GET /v1/datasets/:id/%s", op)
	}

	if err := router.Run(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

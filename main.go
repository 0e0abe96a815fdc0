package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/formpulse/automate/agent"
	"github.com/formpulse/automate/config"
	"github.com/formpulse/automate/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	cfg config.Config
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("db-host", "localhost", "postgres host")
	cmd.Flags().Int("db-port", 5432, "postgres port")
	cmd.Flags().String("db-user", "automate", "postgres user")
	cmd.Flags().String("db-password", "", "postgres password")
	cmd.Flags().String("db-name", "automate", "postgres database")
	cmd.Flags().String("db-sslmode", "disable", "postgres sslmode")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Bool("development", false, "development logging")
	cmd.Flags().Duration("webhook-timeout", 30*time.Second, "timeout for outbound webhook calls")
	cmd.Flags().Duration("sweep-interval", config.RETRY_SWEEP_INTERVAL, "retry sweep interval")
	cmd.Flags().Int("sweep-batch-size", config.RETRY_SWEEP_BATCH_SIZE, "retry sweep batch size")
	cmd.Flags().Duration("workflow-cache-ttl", 30*time.Second, "workflow definition cache ttl")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return err
		}
	}

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.PostgresConfig.Host = viper.GetString("db-host")
	c.cfg.PostgresConfig.Port = viper.GetInt("db-port")
	c.cfg.PostgresConfig.User = viper.GetString("db-user")
	c.cfg.PostgresConfig.Password = viper.GetString("db-password")
	c.cfg.PostgresConfig.Database = viper.GetString("db-name")
	c.cfg.PostgresConfig.SSLMode = viper.GetString("db-sslmode")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.Development = viper.GetBool("development")
	c.cfg.WebhookTimeout = viper.GetDuration("webhook-timeout")
	c.cfg.SweepInterval = viper.GetDuration("sweep-interval")
	c.cfg.SweepBatchSize = viper.GetInt("sweep-batch-size")
	c.cfg.WorkflowCacheTTL = viper.GetDuration("workflow-cache-ttl")
	return logger.InitLogger(c.cfg.LogLevel, c.cfg.Development)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	a, err := agent.New(c.cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return a.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "automate",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/meshctl/meshcore/internal/app"
	"github.com/meshctl/meshcore/pkg/logging"
)

var (
	serveHost      string
	servePort      int
	serveDBPath    string
	serveRedisAddr string
	serveCacheTTL  int
	serveLogLevel  string
	serveLogJSON   bool
)

// registryServeCmd runs the registry HTTP service in the foreground. It is
// never invoked directly by a user: `meshctl start` re-execs this binary
// with this hidden subcommand as the registry subprocess's argv, the same
// way the process tracker later finds it by pid.
var registryServeCmd = &cobra.Command{
	Use:    "__serve-registry",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runServeRegistry,
}

func init() {
	rootCmd.AddCommand(registryServeCmd)

	registryServeCmd.Flags().StringVar(&serveHost, "host", "localhost", "listen host")
	registryServeCmd.Flags().IntVar(&servePort, "port", 8080, "listen port")
	registryServeCmd.Flags().StringVar(&serveDBPath, "db-path", "meshcore.db", "embedded database path")
	registryServeCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "", "redis address backing the response cache (empty disables caching)")
	registryServeCmd.Flags().IntVar(&serveCacheTTL, "cache-ttl-seconds", 30, "response cache TTL in seconds")
	registryServeCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	registryServeCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "emit logs as JSON")
}

func runServeRegistry(cmd *cobra.Command, args []string) error {
	logging.Init(logging.ParseLevel(serveLogLevel), cmd.OutOrStderr(), serveLogJSON)

	application, err := app.New(app.Config{
		Host:         serveHost,
		Port:         servePort,
		DatabasePath: serveDBPath,
		RedisAddr:    serveRedisAddr,
		CacheTTL:     time.Duration(serveCacheTTL) * time.Second,
	})
	if err != nil {
		return err
	}
	return application.Run(cmd.Context())
}

// Package main provides the tidalresolver CLI application entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tidalresolver/internal/core"
	httpserver "tidalresolver/internal/http"
	"tidalresolver/internal/logger"
	"tidalresolver/internal/node"
	"tidalresolver/pkg/host"
	"tidalresolver/pkg/tidal"
)

const envPrefix = "TIDALRESOLVER"

var (
	cfgFile string
	config  *core.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tidalresolver",
	Short: "tidalresolver - TIDAL links → playable tracks",
	Long: `tidalresolver serves a search endpoint backed by an audio node and resolves
TIDAL track, album and playlist links into queue entries through the node.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search through the plugin chain and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Scrape a TIDAL web token and report whether it worked",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "env file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this rotated file")
	flags.Bool("tidal-convert-unresolved", false, "resolve every TIDAL track through the node before returning")
	flags.String("tidal-country-code", defaults.Tidal.CountryCode, "country code sent to the TIDAL API")
	flags.String("tidal-options-file", "", "JSON or YAML file with plugin options (convertUnresolved, countryCode)")
	flags.String("node-url", defaults.Node.URL, "audio node REST URL")
	flags.String("node-password", defaults.Node.Password, "audio node password")
	flags.Duration("node-timeout", defaults.Node.Timeout, "audio node request timeout")
	flags.String("node-search-source", defaults.Node.SearchSource, "source prefix for plain text searches")
	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Int("search-limit-per-minute", defaults.Server.SearchLimitPerMinute,
		"maximum /search calls per client per minute (0 disables)")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(searchCmd, tokenCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig(viper.GetViper())

	built, err := logger.New(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log configuration, falling back to info: %v\n", err)
		config.Log.Level = "info"
		built, err = logger.New(config.Log)
		if err != nil {
			panic(fmt.Sprintf("Failed to build logger: %v", err))
		}
	}
	log = built
}

func buildConfig(v *viper.Viper) *core.Config {
	cfg := core.DefaultConfig()

	cfg.Tidal.ConvertUnresolved = v.GetBool("tidal-convert-unresolved")
	if cc := v.GetString("tidal-country-code"); cc != "" {
		cfg.Tidal.CountryCode = strings.ToUpper(cc)
	}
	cfg.Tidal.OptionsFile = v.GetString("tidal-options-file")

	if u := v.GetString("node-url"); u != "" {
		cfg.Node.URL = u
	}
	if pw := v.GetString("node-password"); pw != "" {
		cfg.Node.Password = pw
	}
	if d := v.GetDuration("node-timeout"); d > 0 {
		cfg.Node.Timeout = d
	}
	if src := v.GetString("node-search-source"); src != "" {
		cfg.Node.SearchSource = src
	}

	if serverHost := v.GetString("server-host"); serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if port := v.GetInt("server-port"); port > 0 {
		cfg.Server.Port = port
	}
	if v.IsSet("search-limit-per-minute") {
		cfg.Server.SearchLimitPerMinute = v.GetInt("search-limit-per-minute")
	}

	if level := v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	cfg.Log.File = v.GetString("log-file")

	return cfg
}

// pluginOptions merges the options file over the flag values. Keys missing
// from the file keep their flag value.
func pluginOptions(cfg core.TidalConfig) (tidal.Options, error) {
	opts := cfg.PluginOptions()
	if cfg.OptionsFile == "" {
		return opts, nil
	}

	v := viper.New()
	v.SetConfigFile(cfg.OptionsFile)
	if err := v.ReadInConfig(); err != nil {
		return opts, fmt.Errorf("failed to read options file: %w", err)
	}

	fileOpts, err := tidal.OptionsFromMap(v.AllSettings())
	if err != nil {
		return opts, err
	}
	if v.IsSet("convertUnresolved") {
		opts.ConvertUnresolved = fileOpts.ConvertUnresolved
	}
	if fileOpts.CountryCode != "" {
		opts.CountryCode = fileOpts.CountryCode
	}
	return opts, nil
}

type services struct {
	registry   *prometheus.Registry
	plugin     *tidal.Plugin
	manager    *host.Manager
	httpServer *httpserver.Server
}

func newServices() (*services, error) {
	opts, err := pluginOptions(config.Tidal)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	plugin := tidal.New(opts,
		tidal.WithLogger(log),
		tidal.WithMetrics(tidal.NewMetrics(registry)),
	)
	nodeClient := node.NewClient(&config.Node, log.Named("node"))
	manager := host.NewManager(nodeClient, log.Named("manager"), plugin)

	return &services{
		registry: registry,
		plugin:   plugin,
		manager:  manager,
	}, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("Starting tidalresolver",
		zap.String("node_url", config.Node.URL),
		zap.String("country_code", config.Tidal.CountryCode),
		zap.Bool("convert_unresolved", config.Tidal.ConvertUnresolved))

	svcs, err := newServices()
	if err != nil {
		return err
	}
	svcs.httpServer = httpserver.NewServer(&config.Server, svcs.manager, svcs.plugin.Ready,
		svcs.registry, log.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		if initPlugins(gCtx, svcs.manager) {
			log.Info("tidalresolver ready",
				zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("tidalresolver stopped with error", zap.Error(err))
		return err
	}

	log.Info("tidalresolver stopped gracefully")
	return nil
}

// initPlugins loads the plugins and reports whether all of them came up. A
// failed token scrape is not fatal: the TIDAL wrapper is already installed and
// scrapes again on the next link, and /readyz stays 503 until it succeeds.
func initPlugins(ctx context.Context, manager *host.Manager) bool {
	if err := manager.Init(ctx); err != nil {
		log.Warn("Plugin initialization failed, serving without a TIDAL token", zap.Error(err))
		return false
	}
	return true
}

func runSearch(cmd *cobra.Command, args []string) error {
	defer func() {
		_ = log.Sync()
	}()

	svcs, err := newServices()
	if err != nil {
		return err
	}
	initPlugins(cmd.Context(), svcs.manager)

	res, err := svcs.manager.Search(cmd.Context(), host.SearchQuery{Query: strings.Join(args, " ")}, "cli")
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runToken(cmd *cobra.Command, _ []string) error {
	defer func() {
		_ = log.Sync()
	}()

	svcs, err := newServices()
	if err != nil {
		return err
	}

	token, err := svcs.plugin.FetchToken(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "token acquired (%d characters)\n", len(token))
	return nil
}

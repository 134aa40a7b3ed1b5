package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"zwop/cmd/zwop/cmds"
	"zwop/internal/api"
	"zwop/internal/backends"
	filebackend "zwop/internal/backends/file"
	"zwop/internal/flow"
	"zwop/internal/ports"
	"zwop/internal/types"
	"zwop/internal/zulip"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	EnvFileKey   = "ENV_FILE"
	PortKey      = "PORT"
	ClientRPMKey = "CLIENT_RPM"
	CacheTTLKey  = "CLIENT_CACHE_TTL"
	LogLevelKey  = "LOG_LEVEL"
	LogFormatKey = "LOG_FORMAT"

	ZulipSiteKey   = "ZULIP_SITE"
	ZulipEmailKey  = "ZULIP_EMAIL"
	ZulipAPIKeyKey = "ZULIP_API_KEY"

	defaultPort      = 8080
	defaultClientRPM = 120
	defaultCacheTTL  = 5 * time.Minute
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("zwop failed")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zwop",
		Short:         "Write-only proxy in front of Zulip, scoped by API key",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadEnv()
			return setupLogging()
		},
	}
	root.AddCommand(newServeCmd(), newClientsCmd())
	return root
}

// loadEnv reads ENV_FILE (default .env) into the environment. A missing file is fine.
func loadEnv() {
	envFile := getenv(EnvFileKey, ".env")
	if err := godotenv.Load(envFile); err != nil {
		log.Debugf("The %s file not found.", envFile)
	}
}

func setupLogging() error {
	level, err := log.ParseLevel(getenv(LogLevelKey, "info"))
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if os.Getenv(LogFormatKey) == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func newServeCmd() *cobra.Command {
	var (
		port      int
		clientRPM int
		cacheTTL  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = getenvInt(PortKey, port)
			}
			if !cmd.Flags().Changed("client-rpm") {
				clientRPM = getenvInt(ClientRPMKey, clientRPM)
			}
			if !cmd.Flags().Changed("cache-ttl") {
				if v, err := time.ParseDuration(os.Getenv(CacheTTLKey)); err == nil {
					cacheTTL = v
				}
			}
			return serve(cmd.Context(), port, clientRPM, cacheTTL)
		},
	}
	cmd.Flags().IntVar(&port, "port", defaultPort, "listen port (env "+PortKey+")")
	cmd.Flags().IntVar(&clientRPM, "client-rpm", defaultClientRPM, "requests per minute per client, 0 disables (env "+ClientRPMKey+")")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", defaultCacheTTL, "key lookup cache for redis/ddb backends (env "+CacheTTLKey+")")
	return cmd
}

func serve(ctx context.Context, port, clientRPM int, cacheTTL time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, limiter, err := backends.ClientRepositoryFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("client repository: %w", err)
	}
	publisher, auditARN, err := backends.PublisherFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("audit publisher: %w", err)
	}
	// The file backend already serves lookups from memory.
	if _, ok := repo.(*filebackend.Repository); ok {
		cacheTTL = 0
	}

	defaultBot := defaultBotFromEnv()
	if defaultBot == nil {
		log.Warnf("%s/%s/%s not set; clients without their own bot will be refused", ZulipSiteKey, ZulipEmailKey, ZulipAPIKeyKey)
	}

	cfg := api.ServerConfig{Port: port, ClientRPM: clientRPM, CacheTTL: cacheTTL, AuditARN: auditARN}
	stopCh, doneCh := api.RunServerInterruptible(cfg, repo, limiter, &zulip.Factory{Default: defaultBot}, publisher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return <-doneCh
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		close(stopCh)
		return nil
	})
	return g.Wait()
}

func defaultBotFromEnv() *types.BotConfig {
	bot := types.BotConfig{
		Name:   "default",
		Site:   os.Getenv(ZulipSiteKey),
		Email:  os.Getenv(ZulipEmailKey),
		APIKey: os.Getenv(ZulipAPIKeyKey),
	}
	if bot.Site == "" || bot.Email == "" || bot.APIKey == "" {
		return nil
	}
	return &bot
}

func newClientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect and register API clients in the configured backend",
	}

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List clients in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd.Context())
			if err != nil {
				return err
			}
			return cmds.ListClients(cmd.Context(), repo, query, cmd.OutOrStdout())
		},
	}
	list.Flags().StringVar(&query, "query", "", "JMESPath expression applied to the client list")

	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Show the client for an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd.Context())
			if err != nil {
				return err
			}
			return cmds.GetClient(cmd.Context(), repo, args[0], cmd.OutOrStdout())
		},
	}

	var (
		req flow.RegisterRequest
		bot types.BotConfig
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a scoped client; a key is generated unless --key is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd.Context())
			if err != nil {
				return err
			}
			req.Kind = types.KindScoped
			if bot != (types.BotConfig{}) {
				req.Bot = &bot
			}
			return cmds.AddClient(cmd.Context(), repo, req, cmd.OutOrStdout())
		},
	}
	add.Flags().StringVar(&req.Key, "key", "", "API key to assign")
	add.Flags().StringVar(&req.Stream, "stream", "", "stream the client may post to")
	add.Flags().IntVar(&req.ProposalNo, "proposal", 0, "proposal number the stream belongs to")
	add.Flags().StringVar(&bot.Name, "bot-name", "", "bot name")
	add.Flags().StringVar(&bot.Email, "bot-email", "", "bot email")
	add.Flags().StringVar(&bot.APIKey, "bot-api-key", "", "bot API key")
	add.Flags().StringVar(&bot.Site, "bot-site", "", "Zulip site URL for the bot")
	add.Flags().IntVar(&bot.ID, "bot-id", 0, "bot user id")
	_ = add.MarkFlagRequired("stream")
	_ = add.MarkFlagRequired("proposal")

	var adminKey string
	addAdmin := &cobra.Command{
		Use:   "add-admin",
		Short: "Register an admin client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd.Context())
			if err != nil {
				return err
			}
			return cmds.AddClient(cmd.Context(), repo, flow.RegisterRequest{Kind: types.KindAdmin, Key: adminKey}, cmd.OutOrStdout())
		},
	}
	addAdmin.Flags().StringVar(&adminKey, "key", "", "API key to assign")

	imp := &cobra.Command{
		Use:   "import FILE.yml",
		Short: "Register every client listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo(cmd.Context())
			if err != nil {
				return err
			}
			clients, err := cmds.PutClients(cmd.Context(), repo, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			log.Infof("imported %d clients", len(clients))
			return nil
		},
	}

	cmd.AddCommand(list, get, add, addAdmin, imp)
	return cmd
}

func openRepo(ctx context.Context) (ports.ClientRepository, error) {
	r, _, err := backends.ClientRepositoryFromEnv(ctx)
	if err != nil {
		if errors.Is(err, types.ErrCorruptStore) {
			return nil, fmt.Errorf("client store is corrupt, refusing to continue: %w", err)
		}
		return nil, err
	}
	return r, nil
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

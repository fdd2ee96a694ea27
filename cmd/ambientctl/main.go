// cmd/ambientctl/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ambient-pro/internal/commission"
	"ambient-pro/internal/common/config"
	"ambient-pro/internal/common/database"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/invites"
	"ambient-pro/internal/lifecycle"
	"ambient-pro/internal/models"
	"ambient-pro/internal/search"
	"ambient-pro/internal/store"
	"ambient-pro/internal/store/memory"
	"ambient-pro/internal/store/postgres"
)

// inviteCreator issues recruiting invitations.
type inviteCreator interface {
	Create(ctx context.Context, inviterID, email string) (*invites.Invite, error)
}

// app holds what every subcommand needs. Tests fill it directly; otherwise
// connect builds it from the service configuration.
type app struct {
	configPath string
	timeout    time.Duration

	store   store.Store
	engine  *lifecycle.Engine
	invites inviteCreator
	closers []func() error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ambientctl",
		Short:         "Admin console for Ambient Pro sets, projects and commissions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.engine != nil {
				return nil
			}
			return a.connect(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./configs/config.yaml)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "timeout for each command")

	root.AddCommand(
		newSetsCmd(a),
		newProjectsCmd(a),
		newLeaderboardCmd(a),
		newCommissionsCmd(a),
		newInvitesCmd(a),
	)
	return root
}

func (a *app) connect(ctx context.Context) error {
	var cfg *config.Config
	var err error
	if a.configPath != "" {
		cfg, err = config.LoadFromFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// Diagnostics go to stderr so command output stays pipeable.
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	zapLog, err := logger.NewFromConfig(logCfg)
	if err != nil {
		return err
	}
	log := logger.NewZapAdapter(zapLog)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		a.store = postgres.New(pg.DB,
			postgres.WithListenerDSN(pg.DSN()),
			postgres.WithLogger(log),
		)
	default:
		a.store = memory.New()
	}

	policy, err := commission.FromConfig(cfg.Commission)
	if err != nil {
		return err
	}
	engineOpts := []lifecycle.Option{
		lifecycle.WithPolicy(policy),
		lifecycle.WithMirrorCreditToCloser(cfg.Commission.MirrorCreditToCloser),
		lifecycle.WithLogger(log),
	}
	// Closes made here reach the same index the API searches.
	if cfg.Database.Elasticsearch.Enabled() {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		projects := search.NewProjectIndex(esClient.Client,
			search.WithIndex(cfg.Search.ProjectIndex),
			search.WithLogger(log),
		)
		if err := projects.EnsureIndex(ctx); err != nil {
			log.Warn("project index unavailable, closes will not be searchable", map[string]interface{}{
				"error": err.Error(),
			})
		}
		engineOpts = append(engineOpts, lifecycle.WithIndexer(projects))
	}
	a.engine = lifecycle.NewEngine(a.store, engineOpts...)

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rdb.Close)
	a.invites = invites.NewService(rdb.Client,
		invites.WithTTL(cfg.Invites.TTL()),
		invites.WithBaseURL(cfg.Invites.BaseURL),
		invites.WithLogger(log),
	)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// cmdContext returns a command context bounded by --timeout.
func (a *app) cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// viewerFor resolves the acting user. An empty id acts as an unrestricted
// admin console session.
func (a *app) viewerFor(ctx context.Context, userID string) (models.Viewer, error) {
	if userID == "" {
		return models.Viewer{ID: "ambientctl", Role: models.RoleAdmin}, nil
	}
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return models.Viewer{}, fmt.Errorf("acting user %s: %w", userID, err)
	}
	return models.Viewer{ID: u.ID, Role: u.Role, Office: u.Office}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eduadmin/portal/config"
	"github.com/eduadmin/portal/internal/bootstrap"
	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx     context.Context
	Logger  *slog.Logger
	Config  config.AppConfig
	Session *bootstrap.Session
	Storage *bootstrap.Storage
	Stdin   io.Reader
	Stdout  io.Writer
}

const defaultCommandTimeout = 30 * time.Second

var errMissingPassword = errors.New("password is required (use -password or pipe it on stdin)")

func main() {
	logger := bootstrap.InitLogger("warn")

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)

	runErr := withSession(ctx, logger, cfg, func(cmdCtx *commandContext) error {
		return cmd.run(cmdCtx, os.Args[2:])
	})
	cancel()
	stop()
	if runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in and persist the session (-remember keeps it across restarts)",
			run:         runLogin,
		},
		"status": {
			name:        "status",
			description: "Show the persisted session and its principal",
			run:         runStatus,
		},
		"refresh": {
			name:        "refresh",
			description: "Rotate the persisted access token using the refresh token",
			run:         runRefresh,
		},
		"logout": {
			name:        "logout",
			description: "End the persisted session and clear every storage tier",
			run:         runLogout,
		},
		"probe": {
			name:        "probe",
			description: "Report which credential storage tiers are writable",
			run:         runProbe,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: eduadmin-session <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-10s %s\n", name, commands()[name].description); err != nil {
			return err
		}
	}
	return nil
}

// withSession assembles storage, provider and manager, restores the persisted session and runs fn.
// The CLI is a separate process, so only the durable tier carries state between invocations.
func withSession(ctx context.Context, logger *slog.Logger, cfg config.AppConfig, fn func(*commandContext) error) error {
	instanceID := "cli-" + uuid.NewString()

	var redisClient redis.UniversalClient
	if cfg.UsesRedis() {
		client, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				logger.Error("close redis failed", "error", cerr)
			}
		}()
		redisClient = client
	}

	storage, err := bootstrap.OpenStorage(ctx, bootstrap.StorageOptions{
		Storage:     cfg.Storage,
		Redis:       cfg.Redis,
		RedisClient: redisClient,
		InstanceID:  instanceID,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := storage.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Error("close storage failed", "error", cerr)
		}
	}()

	provider, err := bootstrap.BuildAuthProvider(bootstrap.AuthOptions{Auth: cfg.Auth, Logger: logger})
	if err != nil {
		return err
	}

	// Cross-instance publishing lets a running server pick up CLI logins and logouts.
	session := bootstrap.BuildSession(bootstrap.SessionOptions{
		Session:     cfg.Session,
		Storage:     cfg.Storage,
		Redis:       cfg.Redis,
		Store:       storage,
		Provider:    provider,
		RedisClient: redisClient,
		InstanceID:  instanceID,
		Logger:      logger,
	})
	defer session.Close()
	session.Manager.Restore(ctx)

	return fn(&commandContext{
		Ctx:     ctx,
		Logger:  logger,
		Config:  cfg,
		Session: session,
		Storage: storage,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
	})
}

type loginOptions struct {
	Email    string
	Password string
	Remember bool
}

func parseLoginOptions(args []string, rememberDefault bool) (loginOptions, error) {
	var opts loginOptions
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.StringVar(&opts.Email, "email", "", "Account email")
	fs.StringVar(&opts.Password, "password", "", "Account password (read from stdin when empty)")
	fs.BoolVar(&opts.Remember, "remember", rememberDefault, "Persist the session across restarts")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if strings.TrimSpace(opts.Email) == "" {
		return opts, errors.New("-email is required")
	}
	return opts, nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errMissingPassword
	}
	return line, nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginOptions(args, cmdCtx.Config.Session.RememberMeDefault)
	if err != nil {
		return err
	}
	if opts.Password == "" {
		if opts.Password, err = readPassword(cmdCtx.Stdin); err != nil {
			return err
		}
	}
	if !opts.Remember && cmdCtx.Config.Storage.Ephemeral == config.BackendMemory {
		cmdCtx.Logger.Warn("session is not remembered and the ephemeral tier is in-process: it ends when this command exits")
	}

	res := cmdCtx.Session.Manager.Login(cmdCtx.Ctx, opts.Email, opts.Password, opts.Remember)
	if !res.OK() {
		return fmt.Errorf("login failed: %s", res.Failure)
	}
	return printStatus(cmdCtx.Stdout, cmdCtx.Session.Manager)
}

func runStatus(cmdCtx *commandContext, _ []string) error {
	return printStatus(cmdCtx.Stdout, cmdCtx.Session.Manager)
}

func runRefresh(cmdCtx *commandContext, _ []string) error {
	if err := cmdCtx.Session.Manager.Refresh(cmdCtx.Ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return printStatus(cmdCtx.Stdout, cmdCtx.Session.Manager)
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	cmdCtx.Session.Manager.Logout(cmdCtx.Ctx)
	return writef(cmdCtx.Stdout, "Session cleared.\n")
}

func runProbe(cmdCtx *commandContext, _ []string) error {
	w := tabwriter.NewWriter(cmdCtx.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "Tier\tBackend\tAvailable\n"); err != nil {
		return fmt.Errorf("write probe header: %w", err)
	}
	rows := []struct {
		tier    domainauth.Tier
		backend string
	}{
		{domainauth.TierDurable, string(cmdCtx.Config.Storage.Durable)},
		{domainauth.TierEphemeral, string(cmdCtx.Config.Storage.Ephemeral)},
		{domainauth.TierMemory, "memory"},
	}
	for _, row := range rows {
		ok := cmdCtx.Storage.Store.IsAvailable(cmdCtx.Ctx, row.tier)
		if err := writef(w, "%s\t%s\t%t\n", row.tier, row.backend, ok); err != nil {
			return fmt.Errorf("write probe row: %w", err)
		}
	}
	return w.Flush()
}

// statusView is the subset of the manager printStatus needs.
type statusView interface {
	Status() domainauth.Status
	Principal() *domainauth.Principal
	Tier() (domainauth.Tier, bool)
}

func printStatus(out io.Writer, v statusView) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writef(w, "Status\t%s\n", v.Status()); err != nil {
		return err
	}
	if p := v.Principal(); p != nil {
		fields := [][2]string{
			{"User ID", p.ID},
			{"Name", p.DisplayName},
			{"Email", p.Email},
			{"Role", string(p.Role)},
		}
		if p.Grade != "" {
			fields = append(fields, [2]string{"Grade", p.Grade})
		}
		for _, f := range fields {
			if err := writef(w, "%s\t%s\n", f[0], f[1]); err != nil {
				return err
			}
		}
	}
	if tier, ok := v.Tier(); ok {
		if err := writef(w, "Tier\t%s\n", tier); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

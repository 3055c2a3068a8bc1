// Command guardian is the CLI front end for the guardian library: it
// reads service definitions from a directory of YAML files and starts,
// stops, and reports on the daemons they describe.
//
// Reference: Data-Corruption-goweb/go/main/main.go (context-threaded
// setup: data dir, logger, config, app) and
// Data-Corruption-goweb/go/commands/daemon/command.go (the command
// tree shape).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"guardian"
	"guardian/internal/config"
	"guardian/internal/daemonspec"
	"guardian/internal/guardiansvc"
	"guardian/internal/registry"
	"guardian/internal/storagepath"
	"guardian/internal/wizard"

	"github.com/Data-Corruption/stdx/xlog"
	"github.com/Data-Corruption/stdx/xterm/prompt"
	"github.com/urfave/cli/v3"
)

const (
	Name            = "guardian"
	DefaultLogLevel = "warn"
	DefaultStopWait = 10 * time.Second
)

var Version string // set by build script

type serviceDirKey struct{}

func serviceDirIntoContext(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, serviceDirKey{}, dir)
}

func serviceDirFromContext(ctx context.Context) string {
	dir, _ := ctx.Value(serviceDirKey{}).(string)
	return dir
}

func main() { os.Exit(run()) }

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The self-exec'd guardian/worker processes are dispatched before
	// any of the ambient setup below runs: they inherit a readiness
	// pipe at a fixed fd and must not block on, say, registry lmdb
	// locks held by a concurrent `guardian list`.
	if len(os.Args) > 1 && os.Args[1] == daemonspec.InternalSubcommand {
		return runInternal(ctx, os.Args[2:])
	}

	ctx, err := storagepath.Init(ctx, Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage path: %s\n", err)
		return 1
	}
	dataDir := storagepath.FromContext(ctx)
	serviceDir := filepath.Join(dataDir, "services")

	logPath := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logPath, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log path: %s\n", err)
		return 1
	}
	log, err := xlog.New(logPath, DefaultLogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %s\n", err)
		return 1
	}
	ctx = xlog.IntoContext(ctx, log)
	defer log.Close()

	reg, err := registry.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open registry: %s\n", err)
		return 1
	}
	ctx = registry.IntoContext(ctx, reg)
	defer reg.Close()

	app := &cli.Command{
		Name:    Name,
		Version: Version,
		Usage:   "supervise long-running Unix processes with a guardian-and-lock model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log",
				Value: DefaultLogLevel,
				Usage: "override log level (debug|info|warn|error|none)",
			},
			&cli.StringFlag{
				Name:  "service-dir",
				Value: serviceDir,
				Usage: "directory of per-service YAML definitions",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if lvl := cmd.String("log"); lvl != DefaultLogLevel {
				if err := log.SetLevel(lvl); err != nil {
					return ctx, err
				}
			}
			ctx = serviceDirIntoContext(ctx, cmd.String("service-dir"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			startCommand(),
			stopCommand(),
			statusCommand(),
			restartCommand(),
			listCommand(),
			addCommand(),
			backupsCommand(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		xlog.Error(ctx, err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func loadSpec(ctx context.Context, cmd *cli.Command) (daemonspec.Spec, error) {
	name := cmd.Args().First()
	if name == "" {
		return daemonspec.Spec{}, fmt.Errorf("service name is required")
	}
	store, err := config.Open(serviceDirFromContext(ctx), name)
	if err != nil {
		return daemonspec.Spec{}, err
	}
	return store.Spec()
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "start a service from its YAML definition",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := loadSpec(ctx, cmd)
			if err != nil {
				return err
			}
			if err := guardian.Start(ctx, spec); err != nil {
				return err
			}
			if reg := registry.FromContext(ctx); reg != nil {
				if err := reg.Put(spec.Name, spec.PidfilePath); err != nil {
					xlog.Errorf(ctx, "failed to record %s in registry: %v", spec.Name, err)
				}
			}
			fmt.Printf("%s started\n", spec.Name)
			return nil
		},
	}
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "stop a running service",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := loadSpec(ctx, cmd)
			if err != nil {
				return err
			}
			result, err := guardian.Stop(ctx, spec.PidfilePath, DefaultStopWait)
			if err != nil {
				return err
			}
			if result == guardian.NotRunning {
				fmt.Printf("%s not running\n", spec.Name)
				return nil
			}
			fmt.Printf("%s stopped\n", spec.Name)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "report whether a service is alive",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := loadSpec(ctx, cmd)
			if err != nil {
				return err
			}
			alive, err := guardian.Check(spec.PidfilePath)
			if err != nil {
				return err
			}
			if alive {
				fmt.Printf("%s is running\n", spec.Name)
			} else {
				fmt.Printf("%s is not running\n", spec.Name)
			}
			return nil
		},
	}
}

func restartCommand() *cli.Command {
	return &cli.Command{
		Name:      "restart",
		Usage:     "stop then start a service",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			spec, err := loadSpec(ctx, cmd)
			if err != nil {
				return err
			}
			fmt.Println("attempting to stop", spec.Name)
			if _, err := guardian.Stop(ctx, spec.PidfilePath, DefaultStopWait); err != nil {
				if err == guardian.ErrStopTimeout {
					if !prompt.YesNo(fmt.Sprintf("%s did not stop gracefully. Force kill (SIGKILL) and continue restart?", spec.Name)) {
						return fmt.Errorf("restart aborted because %s did not stop gracefully", spec.Name)
					}
					if err := guardian.ForceKill(spec.PidfilePath); err != nil {
						return fmt.Errorf("failed to force kill %s during restart: %w", spec.Name, err)
					}
					fmt.Printf("%s killed\n", spec.Name)
				} else if err != guardian.ErrNotRunning {
					return fmt.Errorf("failed to stop %s: %w", spec.Name, err)
				}
			} else {
				fmt.Println(spec.Name, "stopped")
			}
			time.Sleep(1 * time.Second)
			if err := guardian.Start(ctx, spec); err != nil {
				return fmt.Errorf("failed to start %s: %w", spec.Name, err)
			}
			fmt.Printf("%s restarted\n", spec.Name)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list every known service and whether it's alive",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reg := registry.FromContext(ctx)
			if reg == nil {
				return fmt.Errorf("registry not available")
			}
			services, err := reg.List()
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Println("no known services")
				return nil
			}
			for name, pidfilePath := range services {
				alive, err := guardian.Check(pidfilePath)
				if err != nil {
					fmt.Printf("%-20s error: %v\n", name, err)
					continue
				}
				state := "dead"
				if alive {
					state = "alive"
				}
				fmt.Printf("%-20s %s\n", name, state)
			}
			return nil
		},
	}
}

// backupsCommand groups the config-backup operations internal/config
// exposes (ListBackups/RestoreBackup/CleanOldBackups) so guardian add's
// automatic pre-overwrite snapshots are actually reachable from the CLI
// rather than write-only.
func backupsCommand() *cli.Command {
	return &cli.Command{
		Name:  "backups",
		Usage: "list, restore, or prune service file backups",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "list backups for a service, newest first",
				ArgsUsage: "<name>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("service name is required")
					}
					backups, err := config.ListBackups(backupDirFor(ctx), name)
					if err != nil {
						return err
					}
					if len(backups) == 0 {
						fmt.Printf("no backups for %s\n", name)
						return nil
					}
					for _, b := range backups {
						fmt.Printf("%-40s %s  %d bytes\n", b.Name, b.Timestamp.Format(time.RFC3339), b.Size)
					}
					return nil
				},
			},
			{
				Name:      "restore",
				Usage:     "restore a service file from a backup",
				ArgsUsage: "<name> <backup-file>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					backupName := cmd.Args().Get(1)
					if name == "" || backupName == "" {
						return fmt.Errorf("service name and backup file are required")
					}
					backupDir := backupDirFor(ctx)
					servicePath := filepath.Join(serviceDirFromContext(ctx), name+".yaml")
					previous, err := config.RestoreBackup(filepath.Join(backupDir, backupName), servicePath, backupDir)
					if err != nil {
						return err
					}
					if previous != "" {
						fmt.Printf("restored %s from %s (previous contents saved to %s)\n", name, backupName, filepath.Base(previous))
					} else {
						fmt.Printf("restored %s from %s\n", name, backupName)
					}
					return nil
				},
			},
			{
				Name:      "clean",
				Usage:     "delete all but the newest --keep backups for a service",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "keep", Value: 5, Usage: "number of newest backups to retain"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("service name is required")
					}
					deleted, err := config.CleanOldBackups(backupDirFor(ctx), name, int(cmd.Int("keep")))
					if err != nil {
						return err
					}
					fmt.Printf("deleted %d backup(s) for %s\n", deleted, name)
					return nil
				},
			},
		},
	}
}

func backupDirFor(ctx context.Context) string {
	return filepath.Join(serviceDirFromContext(ctx), "backups")
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "interactively define a new service",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return wizard.Run(serviceDirFromContext(ctx))
		},
	}
}

// runInternal dispatches the hidden guardian/worker entry points that
// internal/startengine and internal/guardiansvc self-exec into. argv is
// os.Args[2:], i.e. everything after the internal subcommand name.
func runInternal(ctx context.Context, argv []string) int {
	if len(argv) < 3 || argv[1] != "--spec-file" {
		fmt.Fprintln(os.Stderr, "malformed internal invocation")
		return 1
	}
	mode := daemonspec.Mode(argv[0])
	specFile := argv[2]

	switch mode {
	case daemonspec.ModeGuardian:
		return guardiansvc.Run(ctx, specFile)
	case daemonspec.ModeWorker:
		return runWorker(specFile)
	default:
		fmt.Fprintf(os.Stderr, "unknown internal mode %q\n", mode)
		return 1
	}
}

// runWorker resolves a registered callback and runs it in place of the
// fresh-process Argv path, for Command{CallbackName: ...} specs. A
// panicking callback is recovered rather than crashing the worker
// process outright, so it still reports as a normal nonzero exit to
// the guardian waiting on it.
func runWorker(specFile string) int {
	spec, err := daemonspec.ReadSpecFile(specFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fn, ok := daemonspec.LookupCallback(spec.Command.CallbackName)
	if !ok {
		fmt.Fprintf(os.Stderr, "no callback registered under %q\n", spec.Command.CallbackName)
		return 1
	}
	code, panicErr := daemonspec.RunCallback(fn)
	if panicErr != nil {
		fmt.Fprintln(os.Stderr, panicErr)
	}
	return code
}

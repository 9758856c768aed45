package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/semmidev/arkiva/internal/app"
	"github.com/semmidev/arkiva/internal/config"
	"github.com/semmidev/arkiva/internal/domain"
	"github.com/semmidev/arkiva/internal/infrastructure/logger"
)

var (
	version = "unset"
	commit  = "unset"
)

var cli struct {
	Config  string `short:"c" default:"config.yaml" help:"Global configuration file."`
	JobsDir string `default:"jobs" help:"Directory of per-job configuration files."`

	Backup struct {
		Job  string `arg:"" help:"Job name."`
		Type string `default:"diff" enum:"full,diff,incr,dryrun" help:"Run type."`
	} `cmd:"" help:"Run one backup for a job."`

	Restore struct {
		Job  string `arg:"" help:"Job name."`
		Set  string `arg:"" help:"Backup set id (20060102_150405)."`
		Dest string `short:"d" help:"Destination directory (defaults to the job source)."`
	} `cmd:"" help:"Restore a complete backup set."`

	RestoreFiles struct {
		Job   string   `arg:"" help:"Job name."`
		Set   string   `arg:"" help:"Backup set id."`
		Paths []string `arg:"" help:"Relative paths to restore."`
		Dest  string   `short:"d" help:"Destination directory (defaults to the job source)."`
	} `cmd:"" name:"restore-files" help:"Restore selected files from a backup set."`

	Sets struct {
		Job string `arg:"" help:"Job name."`
	} `cmd:"" help:"List the recorded backup sets of a job."`

	Locks struct {
		Clean struct {
		} `cmd:"" help:"Remove lock files left behind by dead processes."`
	} `cmd:"" help:"Job lock maintenance."`

	Schedule struct {
	} `cmd:"" help:"Run the scheduler daemon until interrupted."`

	Version kong.VersionFlag `short:"v" help:"Display version."`
}

func main() {
	ctx := kong.Parse(&cli, kong.UsageOnError(), kong.Vars{
		"version": fmt.Sprintf("arkiva %s (%s)", version, commit),
	})

	cfg, err := config.Load(cli.Config, cli.JobsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arkiva: %v\n", err)
		ctx.Exit(1)
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arkiva: %v\n", err)
		ctx.Exit(1)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Errorf("Startup failed: %v", err)
		log.Close()
		ctx.Exit(1)
	}
	defer a.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(runCtx, a, ctx.Command()); err != nil {
		log.Errorf("%v", err)
		a.Close()
		ctx.Exit(1)
	}
	ctx.Exit(0)
}

func run(ctx context.Context, a *app.App, command string) error {
	switch command {
	case "backup <job>":
		res, err := a.RunBackup(ctx, cli.Backup.Job, domain.RunType(cli.Backup.Type))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%d files, %d archives)\n",
			res.JobName, res.Summary(), res.FileCount, res.ArchiveCount)
		return nil

	case "restore <job> <set>":
		res, err := a.RestoreSet(ctx, cli.Restore.Job, cli.Restore.Set, cli.Restore.Dest)
		if err != nil {
			return err
		}
		fmt.Printf("%s: restored %d file(s) from set %s\n", res.JobName, res.Restored, res.SetID)
		return nil

	case "restore-files <job> <set> <paths>":
		res, err := a.RestoreFiles(ctx, cli.RestoreFiles.Job, cli.RestoreFiles.Set,
			cli.RestoreFiles.Paths, cli.RestoreFiles.Dest)
		if err != nil {
			return err
		}
		for _, p := range res.Paths {
			if p.Err != nil {
				fmt.Printf("  failed   %s: %v\n", p.Path, p.Err)
			} else {
				fmt.Printf("  restored %s\n", p.Path)
			}
		}
		fmt.Printf("%s: restored %d of %d path(s) from set %s\n",
			res.JobName, res.Restored, len(res.Paths), res.SetID)
		return nil

	case "sets <job>":
		sets, err := a.ListSets(cli.Sets.Job)
		if err != nil {
			return err
		}
		if len(sets) == 0 {
			fmt.Println("no backup sets recorded")
			return nil
		}
		for _, s := range sets {
			fmt.Printf("%s  %-7s %-7s %4d archives %8d files %12d bytes\n",
				s.SetID, s.RunType, s.Status, s.ArchiveCount, s.FileCount, s.ByteCount)
		}
		return nil

	case "locks clean":
		removed, err := a.CleanLocks()
		if err != nil {
			return err
		}
		for _, job := range removed {
			fmt.Printf("removed stale lock: %s\n", job)
		}
		fmt.Printf("%d stale lock(s) removed\n", len(removed))
		return nil

	case "schedule":
		return a.Run(ctx)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

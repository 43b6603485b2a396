package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/crystal-mush/palsave/pkg/config"
	"github.com/crystal-mush/palsave/pkg/entity"
	"github.com/crystal-mush/palsave/pkg/events"
	"github.com/crystal-mush/palsave/pkg/journal"
	"github.com/crystal-mush/palsave/pkg/metrics"
	"github.com/crystal-mush/palsave/pkg/refdata"
	"github.com/crystal-mush/palsave/pkg/savedb"
)

// Version is reported by the "version" command.
const Version = "0.9.0"

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func envInt(envVar string, fallback int) int {
	if v := os.Getenv(envVar); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// errUsage makes run print the usage text and exit with status 2.
var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:], os.Stdin, os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		usage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: palsave -dir <save-dir> [options] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  summary                              Counts of indexed entities (default)")
	fmt.Fprintln(w, "  players | guilds | bases             List entities")
	fmt.Fprintln(w, "  pals [-player UID] [-container ID]   List pals")
	fmt.Fprintln(w, "  items CONTAINER                      List item slots")
	fmt.Fprintln(w, "  pal show|add|clone|move|delete|heal|edit ...")
	fmt.Fprintln(w, "  player delete|edit ...")
	fmt.Fprintln(w, "  guild delete|kick ...")
	fmt.Fprintln(w, "  item set|reset ...")
	fmt.Fprintln(w, "  validate [-fix] [-json]              Consistency checks")
	fmt.Fprintln(w, "  preset list|save-slots|load-slots|save-pal|apply-pal|delete-slots|delete-pal ...")
	fmt.Fprintln(w, "  backup list|create|restore ...")
	fmt.Fprintln(w, "  journal [-session N] [-type T] [-subject ID] [-limit N]")
	fmt.Fprintln(w, "  sessions                             List journal sessions")
	fmt.Fprintln(w, "  shell                                Interactive session reading commands from stdin")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment variables (used as defaults when flags are not set):")
	fmt.Fprintln(w, "  PALSAVE_DIR        Save directory (holds Level.sav)")
	fmt.Fprintln(w, "  PALSAVE_CONF       Path to config file (.yaml)")
	fmt.Fprintln(w, "  PALSAVE_LOGFILE    Rotated log file, empty = stderr")
	fmt.Fprintln(w, "  PALSAVE_METRICS    Prometheus listen address, e.g. :9178")
	fmt.Fprintln(w, "  PALSAVE_JOURNAL    SQLite mutation journal")
	fmt.Fprintln(w, "  PALSAVE_PRESETS    bbolt preset store")
	fmt.Fprintln(w, "  PALSAVE_REFDATA    YAML reference data")
	fmt.Fprintln(w, "  PALSAVE_BACKUP_DIR Archive directory")
	fmt.Fprintln(w, "  PALSAVE_RETAIN     Keep last N archives")
	fmt.Fprintln(w, "  PALSAVE_NO_BACKUP  Set to 'true' to skip the archive before saving")
}

// options are the parsed global flags.
type options struct {
	dir       string
	conf      string
	logFile   string
	metrics   string
	journal   string
	presets   string
	refdata   string
	backupDir string
	retain    int
	noBackup  bool
	dryRun    bool
}

func parseFlags(args []string) (*options, []string, error) {
	fs := flag.NewFlagSet("palsave", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o := &options{}
	fs.StringVar(&o.dir, "dir", envDefault("PALSAVE_DIR", ""), "Save directory holding Level.sav (env: PALSAVE_DIR)")
	fs.StringVar(&o.conf, "conf", envDefault("PALSAVE_CONF", ""), "Path to config file (env: PALSAVE_CONF)")
	fs.StringVar(&o.logFile, "logfile", envDefault("PALSAVE_LOGFILE", ""), "Rotated log file (env: PALSAVE_LOGFILE)")
	fs.StringVar(&o.metrics, "metrics", envDefault("PALSAVE_METRICS", ""), "Prometheus listen address, overrides config (env: PALSAVE_METRICS)")
	fs.StringVar(&o.journal, "journal", envDefault("PALSAVE_JOURNAL", ""), "SQLite journal file, overrides config (env: PALSAVE_JOURNAL)")
	fs.StringVar(&o.presets, "presets", envDefault("PALSAVE_PRESETS", ""), "bbolt preset store, overrides config (env: PALSAVE_PRESETS)")
	fs.StringVar(&o.refdata, "refdata", envDefault("PALSAVE_REFDATA", ""), "YAML reference data, overrides config (env: PALSAVE_REFDATA)")
	fs.StringVar(&o.backupDir, "backup-dir", envDefault("PALSAVE_BACKUP_DIR", ""), "Archive directory, overrides config (env: PALSAVE_BACKUP_DIR)")
	fs.IntVar(&o.retain, "retain", envInt("PALSAVE_RETAIN", -1), "Keep last N archives, overrides config (env: PALSAVE_RETAIN)")
	fs.BoolVar(&o.noBackup, "no-backup", os.Getenv("PALSAVE_NO_BACKUP") == "true", "Do not archive the save before writing (env: PALSAVE_NO_BACKUP)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Apply changes in memory only")
	if err := fs.Parse(args); err != nil {
		return nil, nil, errUsage
	}
	return o, fs.Args(), nil
}

// loadConfig applies the config file and the flag overrides. Without a
// config file the backup directory defaults to one inside the save
// directory.
func loadConfig(o *options) (*config.Config, error) {
	cfg := config.Default()
	if o.conf != "" {
		var err error
		if cfg, err = config.Load(o.conf); err != nil {
			return nil, err
		}
	} else {
		cfg.BackupDir = filepath.Join(o.dir, cfg.BackupDir)
	}
	for _, ov := range []struct {
		dst *string
		val string
	}{
		{&cfg.MetricsAddr, o.metrics},
		{&cfg.JournalDB, o.journal},
		{&cfg.PresetDB, o.presets},
		{&cfg.RefdataFile, o.refdata},
		{&cfg.BackupDir, o.backupDir},
	} {
		if ov.val != "" {
			*ov.dst = ov.val
		}
	}
	if o.retain >= 0 {
		cfg.BackupRetain = o.retain
	}
	return cfg, cfg.Validate()
}

func setupLogging(path string) {
	if path == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	})
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	o, rest, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(rest) > 0 && rest[0] == "version" {
		fmt.Fprintf(stdout, "palsave %s\n", Version)
		return nil
	}
	if o.dir == "" {
		return errUsage
	}
	setupLogging(o.logFile)

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	var names entity.Names
	var ref *refdata.Names
	if cfg.RefdataFile != "" {
		if ref, err = refdata.Load(cfg.RefdataFile, cfg.Language); err != nil {
			return err
		}
		names = ref
		pals, items, skills := ref.Len()
		log.Printf("refdata: %d pals, %d items, %d skills (%s)", pals, items, skills, cfg.Language)
	}

	bus := events.NewBus()
	bus.SubscribeGlobal(events.SubscriberFunc(func(ev events.Event) {
		switch ev.Type {
		case events.EvProgress:
			log.Printf("%s", ev.Text)
		case events.EvWarning:
			log.Printf("WARNING: %s", ev.Text)
		}
	}))

	start := time.Now()
	m := metrics.New(nil, start)
	bus.SubscribeGlobal(m)
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
		go func() {
			log.Printf("metrics: listening on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	var j *journal.Journal
	if cfg.JournalDB != "" {
		if j, err = journal.Open(cfg.JournalDB, 5); err != nil {
			return err
		}
		defer func() {
			if err := j.Checkpoint(); err != nil {
				log.Printf("journal: checkpoint: %v", err)
			}
			j.Close()
		}()
		bus.SubscribeGlobal(j)
	}

	a := &app{
		dir:     o.dir,
		cfg:     cfg,
		opts:    o,
		out:     stdout,
		bus:     bus,
		names:   names,
		ref:     ref,
		metrics: m,
		journal: j,
	}
	defer a.close()

	cmd := rest
	if len(cmd) == 0 {
		cmd = []string{"summary"}
	}
	if offline(cmd[0]) {
		return a.exec(cmd)
	}

	if err := a.load(); err != nil {
		return err
	}
	if j != nil {
		if _, err := j.Begin(o.dir); err != nil {
			return err
		}
	}
	if cmd[0] == "shell" {
		return a.shell(stdin)
	}
	if err := a.exec(cmd); err != nil {
		return err
	}
	if a.dirty {
		return a.save(strings.Join(cmd, " "))
	}
	return nil
}

// offline reports whether a command works without loading the save.
func offline(cmd string) bool {
	switch cmd {
	case "backup", "journal", "sessions":
		return true
	}
	return false
}

// loadTimed loads dir and reports how long it took.
func loadTimed(dir string, opts savedb.Options) (*savedb.Document, time.Duration, error) {
	start := time.Now()
	doc, err := savedb.LoadDir(dir, opts)
	return doc, time.Since(start), err
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/duelhall/trumpduel/pkg/duel"
	"github.com/duelhall/trumpduel/pkg/server"
	"github.com/duelhall/trumpduel/pkg/utils"
)

func main() {
	// Optional .env file for local development; flags still win.
	_ = godotenv.Load()

	var (
		datadir    string
		dbPath     string
		stake      int64
		debugLevel string
	)
	flag.StringVar(&datadir, "datadir", defaultStr("DUEL_DATADIR", filepath.Join(os.TempDir(), "duelsrv")), "Data directory for database and logs")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (default <datadir>/duel.sqlite)")
	flag.Int64Var(&stake, "stake", defaultInt64("DUEL_STAKE", duel.DefaultRules().Stake), "Per-player stake debited at seat time")
	flag.StringVar(&debugLevel, "debuglevel", defaultStr("DUEL_DEBUGLEVEL", "info"), "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	if err := utils.EnsureDataDirExists(datadir); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if dbPath == "" {
		dbPath = filepath.Join(datadir, "duel.sqlite")
	}

	// Init DB
	db, err := server.NewDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Logging backend
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    filepath.Join(datadir, "logs", "duelsrv.log"),
		DebugLevel: debugLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logBackend.Close()
	log := logBackend.Logger("MAIN")

	rules := duel.DefaultRules()
	rules.Stake = stake

	duelSrv := server.NewServer(db, logBackend, rules)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	duelSrv.StartSweep(ctx)

	log.Infof("Duel server running, datadir=%s, db=%s, stake=%d", datadir, dbPath, rules.Stake)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("Shutting down...")
	cancel()
	duelSrv.Stop()
}

// defaultStr returns the environment value for key when set, else fallback.
func defaultStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// defaultInt64 returns the environment value for key when it parses, else
// fallback.
func defaultInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

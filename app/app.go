package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sashabeton/bitcoinvault/infrastructure/config"
	infrastructuredatabase "github.com/sashabeton/bitcoinvault/infrastructure/db/database"
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database/ldb"
	"github.com/sashabeton/bitcoinvault/infrastructure/logger"
	"github.com/sashabeton/bitcoinvault/infrastructure/os/signal"
	"github.com/sashabeton/bitcoinvault/version"
)

const databaseDirectoryName = "db"

type bitcoinvaultApp struct {
	cfg *config.Config
}

// StartApp starts the node app, and blocks until it finishes running
func StartApp() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	err = logger.InitLog(cfg.LogFile(), cfg.ErrLogFile())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	app := &bitcoinvaultApp{cfg: cfg}
	return app.main(nil)
}

func (app *bitcoinvaultApp) main(startedChan chan<- struct{}) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := signal.InterruptListener(nil)
	defer log.Infof("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())

	db, err := openDB(app.cfg)
	if err != nil {
		log.Errorf("Loading database failed: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the database...")
		err := db.Close()
		if err != nil {
			log.Errorf("Failed to close the database: %s", err)
		}
	}()

	componentManager, err := NewComponentManager(app.cfg, db)
	if err != nil {
		log.Errorf("Unable to start bitcoinvault: %+v", err)
		return err
	}
	defer componentManager.Stop()

	err = componentManager.Start()
	if err != nil {
		log.Errorf("Unable to start bitcoinvault: %+v", err)
		return err
	}

	if startedChan != nil {
		startedChan <- struct{}{}
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

// databasePath returns the path to the block database given a database type.
func databasePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, databaseDirectoryName)
}

func openDB(cfg *config.Config) (infrastructuredatabase.Database, error) {
	dbPath := databasePath(cfg)
	err := os.MkdirAll(dbPath, 0700)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	versionFileExists, err := checkDatabaseVersion(dbPath)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading database from '%s'", dbPath)
	db, err := ldb.NewLevelDB(dbPath)
	if err != nil {
		return nil, err
	}

	if !versionFileExists {
		err = createDatabaseVersionFile(dbPath)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/cohort/apps/api/echo"
	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/review"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
	emailsvc "github.com/trezcool/cohort/services/email"
	logsvc "github.com/trezcool/cohort/services/logger"
	"github.com/trezcool/cohort/storage/database"
	inmemdb "github.com/trezcool/cohort/storage/database/inmem"
	sqlxrepos "github.com/trezcool/cohort/storage/database/sqlx"
)

// dbSetUpTimeout bounds the provisioning, connection & migration of the database at start up.
const dbSetUpTimeout = time.Minute

type storage struct {
	users         user.Repository
	courses       course.Repository
	tasks         task.Repository
	notifications notification.Repository
	reviews       review.Repository
	locker        core.Locker
	close         func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	store, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = store.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, storage %q", conf.Build, conf.Storage))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	bus := event.NewBus(logger)
	usrSvc := user.NewService(store.users)
	graph := course.NewGraph(store.courses, store.users)
	gate := task.NewGate(store.tasks)
	resolver := task.NewResolver(store.tasks, graph, store.users, store.locker, bus, logger)
	workflow := task.NewWorkflow(store.tasks, gate, graph, bus)

	notification.NewRouter(store.notifications, graph, usrSvc, bus, logger).Register(bus)
	if conf.Notifications.EmailEnabled {
		notification.NewMailer(usrSvc, emailsvc.New(conf, logger)).Register(bus)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)
	expvar.NewInt("subscriptions").Set(int64(bus.SubscriptionCount()))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:        conf.Server.Address,
		DisableReqLogs: !conf.Debug,
		Conf:           conf,
		Logger:         logger,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		Users:          usrSvc,
		Resolver:       resolver,
		Gate:           gate,
		Workflow:       workflow,
		Inbox:          notification.NewInbox(store.notifications),
		ReviewSvc:      review.NewService(store.reviews, graph),
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err = server.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpStorage(conf *core.Config) (*storage, error) {
	if conf.Storage == core.StorageMemory {
		db := inmemdb.Open()
		return &storage{
			users:         inmemdb.NewUserRepository(db),
			courses:       inmemdb.NewCourseRepository(db),
			tasks:         inmemdb.NewTaskRepository(db),
			notifications: inmemdb.NewNotificationRepository(db),
			reviews:       inmemdb.NewReviewRepository(db),
			locker:        inmemdb.NewLocker(),
			close:         func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return nil, err
	}
	return &storage{
		users:         sqlxrepos.NewUserRepository(db),
		courses:       sqlxrepos.NewCourseRepository(db),
		tasks:         sqlxrepos.NewTaskRepository(db),
		notifications: sqlxrepos.NewNotificationRepository(db),
		reviews:       sqlxrepos.NewReviewRepository(db),
		locker:        sqlxrepos.NewLocker(db),
		close:         db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbSetUpTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

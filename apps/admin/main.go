package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
	emailsvc "github.com/trezcool/cohort/services/email"
	logsvc "github.com/trezcool/cohort/services/logger"
	"github.com/trezcool/cohort/storage/database"
	sqlxrepos "github.com/trezcool/cohort/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := database.Open(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	core.ParseEmailTemplates(conf, logger)
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)
	graph := course.NewGraph(sqlxrepos.NewCourseRepository(db), usrRepo)
	bus := event.NewBus(logger)
	notification.NewRouter(sqlxrepos.NewNotificationRepository(db), graph, usrSvc, bus, logger).Register(bus)
	if conf.Notifications.EmailEnabled {
		notification.NewMailer(usrSvc, emailsvc.New(conf, logger)).Register(bus)
	}

	// start CLI
	cli := commandLine{
		db:     db.DB,
		conf:   conf,
		out:    os.Stdout,
		usrSvc: usrSvc,
		resolver: task.NewResolver(
			sqlxrepos.NewTaskRepository(db), graph, usrRepo, sqlxrepos.NewLocker(db), bus, logger,
		),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

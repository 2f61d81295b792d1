package main

import (
	"log"
	"os"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
	emailsvc "github.com/shulehq/shule/services/email"
	logsvc "github.com/shulehq/shule/services/logger"
	"github.com/shulehq/shule/storage/database"
	sqlxrepos "github.com/shulehq/shule/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	appLog := logsvc.NewRollbarLogger(logger, conf)
	appLog.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	usrRepo := sqlxrepos.NewUserRepository(db)
	districtRepo := sqlxrepos.NewDistrictRepository(db)
	districtSvc := district.NewService(districtRepo, nil, appLog)
	mailSvc := emailsvc.NewConsoleService(conf)
	usrSvc := user.NewService(conf, usrRepo, mailSvc, appLog)
	studentSvc := student.NewService(
		conf,
		sqlxrepos.NewStudentRepository(db),
		districtSvc,
		license.NewAllocator(districtSvc),
		usrSvc,
		mailSvc,
		appLog,
	)
	// start CLI
	cli := commandLine{
		db:          db,
		usrRepo:     usrRepo,
		districtSvc: districtSvc,
		studentSvc:  studentSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

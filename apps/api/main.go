package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	echoapi "github.com/shulehq/shule/apps/api/echo"
	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/iep"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
	cachesvc "github.com/shulehq/shule/services/cache"
	emailsvc "github.com/shulehq/shule/services/email"
	exportsvc "github.com/shulehq/shule/services/export"
	logsvc "github.com/shulehq/shule/services/logger"
	"github.com/shulehq/shule/storage/database"
	sqlxrepos "github.com/shulehq/shule/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(std, err)

	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if conf.Debug {
		errAndDie(std, database.CreateIfNotExist(conf))
	}
	db, err := database.Open(conf)
	errAndDie(std, err)
	defer db.Close()
	errAndDie(std, database.Migrate(db))

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var districtCache district.Cache
	if conf.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer rdb.Close()
		districtCache = cachesvc.NewDistrictCache(rdb, conf, logger)
	}

	usrSvc := user.NewService(conf, sqlxrepos.NewUserRepository(db), mailSvc, logger)
	districtSvc := district.NewService(sqlxrepos.NewDistrictRepository(db), districtCache, logger)
	allocator := license.NewAllocator(districtSvc)
	studentSvc := student.NewService(conf, sqlxrepos.NewStudentRepository(db), districtSvc, allocator, usrSvc, mailSvc, logger)
	iepSvc := iep.NewService(sqlxrepos.NewIEPRepository(db), logger)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:        conf.Server.Addr(),
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			DistrictSvc:    districtSvc,
			StudentSvc:     studentSvc,
			IEPSvc:         iepSvc,
			Exporter:       exportsvc.NewRosterExporter(),
			SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		},
	)
	go app.Start()

	<-shutdown
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatalf("%+v", err)
	}
}

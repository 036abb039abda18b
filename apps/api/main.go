package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/kannanru/studentfee/apps/api/echo"
	"github.com/kannanru/studentfee/assets"
	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/attendance"
	"github.com/kannanru/studentfee/core/event"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/core/user"
	"github.com/kannanru/studentfee/services/checkout"
	"github.com/kannanru/studentfee/services/email"
	"github.com/kannanru/studentfee/services/eventbus"
	"github.com/kannanru/studentfee/services/logger"
	"github.com/kannanru/studentfee/storage/database"
	"github.com/kannanru/studentfee/storage/database/inmem"
	"github.com/kannanru/studentfee/storage/database/sqlx"
)

const inmemEngine = "inmem"

type repositories struct {
	user       user.Repository
	student    student.Repository
	fee        fee.Repository
	attendance attendance.Repository
	closer     io.Closer
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
	logger.Enable(!conf.Debug)
	defer logger.Wait()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	repos, err := setUpRepositories(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.closer.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "", 0), logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	bus := eventbus.NewInMemoryBus(logger)
	provider := checkout.NewHMACProvider(conf, logger)

	usrSvc := user.NewService(repos.user)
	stdSvc := student.NewService(repos.student)
	feeSvc := fee.NewService(repos.fee, stdSvc, provider, mailSvc, bus, conf)
	bus.Subscribe(event.PaymentRecorded, feeSvc.SendReceipt)
	attSvc := attendance.NewService(repos.attendance, stdSvc, bus, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(assets.FS, assets.TemplatesDir, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("dbEngine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			UserSvc:       usrSvc,
			StudentSvc:    stdSvc,
			FeeSvc:        feeSvc,
			AttendanceSvc: attSvc,
			Events:        bus,
			CheckoutKeyID: provider.KeyID(),
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpRepositories opens the configured database. The inmem engine keeps everything in memory.
func setUpRepositories(conf *core.Config) (*repositories, error) {
	if conf.Database.Engine == inmemEngine {
		db := inmemdb.Open()
		return &repositories{
			user:       inmemdb.NewUserRepository(db),
			student:    inmemdb.NewStudentRepository(db),
			fee:        inmemdb.NewFeeRepository(db),
			attendance: inmemdb.NewAttendanceRepository(db),
			closer:     io.NopCloser(nil),
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &repositories{
		user:       sqlxrepos.NewUserRepository(db),
		student:    sqlxrepos.NewStudentRepository(db),
		fee:        sqlxrepos.NewFeeRepository(db),
		attendance: sqlxrepos.NewAttendanceRepository(db),
		closer:     db,
	}, nil
}

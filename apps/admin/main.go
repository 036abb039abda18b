package main

import (
	"fmt"
	"log"
	"os"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/user"
	"github.com/kannanru/studentfee/services/logger"
	"github.com/kannanru/studentfee/storage/database"
	"github.com/kannanru/studentfee/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:     db.DB,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db)),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		logger.Wait()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/tymastrangelo/groupgrade-sub000/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if err := gooseRunFunc(context.Background(), cli.db, args[0], args[1:]...); err != nil {
		return err
	}
	cli.logger.Info(fmt.Sprintf("migrate %s: done", args[0]))
	return nil
}

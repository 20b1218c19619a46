package main

import (
	"log"
	"os"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/services/logger"
)

func main() {
	conf := core.NewConfig()

	std := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)

	// start CLI
	cli := commandLine{conf: conf, logger: logger, out: os.Stdout}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

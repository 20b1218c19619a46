package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/minierp/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|up-by-one|up-to VERSION|down|down-to VERSION|redo - migrate the postgres document store")
	fmt.Fprintln(cli.out, "  token -sub ID [-roles ROLE,...] [-email EMAIL] [-student-id ID] - issue an API token")
	fmt.Fprintln(cli.out, "  evaluate [-student-id ID] - assess students from the document store")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenSub := tokenCmd.String("sub", "", "The subject (user id) of the token.")
	tokenRoles := tokenCmd.String("roles", "", "Comma separated roles: admin, counselor, teacher, accountant, student.")
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenStudentID := tokenCmd.String("student-id", "", "The student id linked to the user.")

	evaluateCmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	evaluateStudentID := evaluateCmd.String("student-id", "", "Assess a single student.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		tokenCmd.SetOutput(cli.out)
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenSub == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSub, *tokenRoles, *tokenEmail, *tokenStudentID)
	case "evaluate":
		evaluateCmd.SetOutput(cli.out)
		if err := evaluateCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.evaluate(*evaluateStudentID)
	default:
		cli.printUsage()
		return errHelp
	}
}

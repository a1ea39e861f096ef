package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sql.DB
	conf     *core.Config
	out      io.Writer
	usrSvc   *user.Service
	resolver *task.Resolver
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                      - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL -role ROLE [-approved]")
	fmt.Fprintln(cli.out, "  approve -username USERNAME                                  - approve a student")
	fmt.Fprintln(cli.out, "  enroll -batch BATCH_ID -students USERNAME[,USERNAME...]     - add students to a batch")
	fmt.Fprintln(cli.out, "  unenroll -batch BATCH_ID -students USERNAME[,USERNAME...]   - remove students from a batch")
	fmt.Fprintln(cli.out, "  token -username USERNAME                                    - print an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "One of admin, mentor & student.")
	addUserApproved := addUserCmd.Bool("approved", false, "Approve the user at once.")

	approveCmd := flag.NewFlagSet("approve", flag.ExitOnError)
	approveUname := approveCmd.String("username", "", "The student's username.")

	enrollCmd := flag.NewFlagSet("enroll", flag.ExitOnError)
	enrollBatch := enrollCmd.String("batch", "", "The batch ID.")
	enrollStudents := enrollCmd.String("students", "", "Comma separated usernames of the students.")

	unenrollCmd := flag.NewFlagSet("unenroll", flag.ExitOnError)
	unenrollBatch := unenrollCmd.String("batch", "", "The batch ID.")
	unenrollStudents := unenrollCmd.String("students", "", "Comma separated usernames of the students.")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenUname := tokenCmd.String("username", "", "The user's username.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.addUser(user.NewUser{
			Name:       *addUserName,
			Username:   *addUserUname,
			Email:      *addUserEmail,
			Role:       *addUserRole,
			IsApproved: *addUserApproved,
		})
	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *approveUname == "" {
			approveCmd.Usage()
			return errHelp
		}
		return cli.approve(*approveUname)
	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *enrollBatch == "" || *enrollStudents == "" {
			enrollCmd.Usage()
			return errHelp
		}
		return cli.enroll(*enrollBatch, splitList(*enrollStudents))
	case "unenroll":
		if err := unenrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *unenrollBatch == "" || *unenrollStudents == "" {
			unenrollCmd.Usage()
			return errHelp
		}
		return cli.unenroll(*unenrollBatch, splitList(*unenrollStudents))
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUname == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUname)
	default:
		cli.printUsage()
		return errHelp
	}
}

func splitList(s string) []string {
	var items []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	return items
}

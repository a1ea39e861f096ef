package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core/user"
)

func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %q (%s)\n", usr.Role, usr.Username, usr.ID)
	return nil
}

func (cli *commandLine) approve(uname string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsername(ctx, uname)
	if err != nil {
		return err
	}
	if _, err = cli.usrSvc.Approve(ctx, usr.ID); err != nil {
		return errors.Wrap(err, "approving user")
	}
	fmt.Fprintf(cli.out, "approved %q\n", usr.Username)
	return nil
}

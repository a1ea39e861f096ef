package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/trezcool/cohort/core/user"
)

// cliActor is the admin the command line acts as.
var cliActor = user.User{Name: "admin cli", Role: user.RoleAdmin, IsApproved: true, IsActive: true}

func (cli *commandLine) studentIDs(ctx context.Context, unames []string) ([]string, error) {
	ids := make([]string, 0, len(unames))
	for _, uname := range unames {
		usr, err := cli.usrSvc.GetByUsername(ctx, uname)
		if err != nil {
			return nil, err
		}
		ids = append(ids, usr.ID)
	}
	return ids, nil
}

func (cli *commandLine) enroll(batchID string, unames []string) error {
	ctx := context.Background()
	ids, err := cli.studentIDs(ctx, unames)
	if err != nil {
		return err
	}
	added, err := cli.resolver.EnrollStudents(ctx, cliActor, batchID, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "added %d student(s) to batch %s: %s\n", len(added), batchID, strings.Join(added, ", "))
	return nil
}

func (cli *commandLine) unenroll(batchID string, unames []string) error {
	ctx := context.Background()
	ids, err := cli.studentIDs(ctx, unames)
	if err != nil {
		return err
	}
	removed, err := cli.resolver.UnenrollStudents(ctx, cliActor, batchID, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "removed %d student(s) from batch %s: %s\n", len(removed), batchID, strings.Join(removed, ", "))
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/trezcool/minierp/apps/api/echo"
	"github.com/trezcool/minierp/core"
)

func (cli *commandLine) token(sub, roles, email, studentID string) error {
	p := core.Principal{
		ID:        core.CleanString(sub),
		Email:     core.CleanString(email, true /* lower */),
		StudentID: core.CleanString(studentID),
		Roles:     make([]string, 0),
	}
	for _, role := range strings.Split(roles, ",") {
		role = core.CleanString(role, true /* lower */)
		if role == "" {
			continue
		}
		if !core.IsValidRole(role) {
			return fmt.Errorf("invalid role %q", role)
		}
		p.Roles = append(p.Roles, role)
	}

	token, err := echoapi.GenerateToken(cli.conf, echoapi.NewClaims(cli.conf, p))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

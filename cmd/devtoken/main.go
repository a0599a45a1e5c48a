// Command devtoken mints bearer tokens for local testing against the API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/spec-kit/lifecycle-engine/internal/auth"
	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var subject, id, role string
	var ttl int

	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flagSet.StringVarP(&subject, "subject", "s", "staff", "caller type: staff, ai, customer or system")
	flagSet.StringVar(&id, "id", "", "subject id (staff id, customer id, AI agent id)")
	flagSet.StringVar(&role, "role", "", "staff role claim: agent or admin")
	flagSet.IntVar(&ttl, "ttl", 0, "token lifetime in minutes (default AUTH_TOKEN_TTL_MINUTES)")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	actorType, err := parseSubject(subject)
	if err != nil {
		return err
	}
	if id == "" {
		if actorType != domain.ActorAI {
			return fmt.Errorf("--id is required")
		}
		id = cfg.Engine.AIAgentID
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTLMinutes
	}

	var staffRole *domain.StaffRole
	if role != "" {
		r := domain.StaffRole(role)
		if r != domain.StaffRoleAgent && r != domain.StaffRoleAdmin {
			return fmt.Errorf("unknown role %q", role)
		}
		staffRole = &r
	}

	token, exp, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).Issue(domain.Actor{Type: actorType, ID: id}, staffRole)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format("2006-01-02 15:04:05 MST"))
	fmt.Println(token)
	return nil
}

func parseSubject(raw string) (domain.ActorType, error) {
	switch strings.ToLower(raw) {
	case "staff":
		return domain.ActorStaff, nil
	case "ai":
		return domain.ActorAI, nil
	case "customer":
		return domain.ActorCustomer, nil
	case "system":
		return domain.ActorSystem, nil
	}
	return "", fmt.Errorf("unknown subject %q", raw)
}

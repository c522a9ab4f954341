// Command cmd issues access tokens for local testing and operator scripts.
//
//	go run ./cmd -sub 0190f5b2-... -role admin -ttl 1h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joy095/carrental/config"
	"github.com/joy095/carrental/logger"
	"github.com/joy095/carrental/utils"
	"github.com/joy095/carrental/utils/jwt_parse"
)

func init() {
	logger.InitLoggers()
	config.LoadEnv()
}

func main() {
	sub := flag.String("sub", "", "principal id (uuid); a new one is generated when empty")
	role := flag.String("role", string(utils.RoleUser), "user or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	id := uuid.New()
	if *sub != "" {
		parsed, err := uuid.Parse(*sub)
		if err != nil {
			logger.ErrorLogger.Fatalf("Invalid -sub: %v", err)
		}
		id = parsed
	}

	r := utils.Role(*role)
	if r != utils.RoleUser && r != utils.RoleAdmin {
		logger.ErrorLogger.Fatalf("Invalid -role %q, want user or admin", *role)
	}

	token, err := jwt_parse.IssueToken(utils.Principal{ID: id, Role: r}, utils.GetJWTSecret(), *ttl)
	if err != nil {
		logger.ErrorLogger.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Fprintln(os.Stdout, token)
}

// cmd/hashpw/main.go

// hashpw prints the Argon2id hash of a password for MOD_PASSWORD_HASH.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/giziti/beltbot/internal/auth"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			log.Fatalf("failed to read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		log.Fatal("empty password")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	fmt.Println(hash)
}

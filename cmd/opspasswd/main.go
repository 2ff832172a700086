// opspasswd prints the argon2id hash of a password for use as the
// OPERATOR_PASSWORD_HASH config value / env override.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/technosupport/airfield-guard/internal/opsauth"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Scan()
		password = scanner.Text()
	}

	hash, err := opsauth.HashPassword(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "opspasswd: hash password:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

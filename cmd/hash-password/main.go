package main

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"github.com/stemsi/assessment-runner/internal/config"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// hash-password prints a bcrypt hash for ADMIN_PASSWORD_HASH so the
// plain admin password never has to live in the environment.
func main() {
	cfg := config.Load()

	fmt.Println("=== Hash Admin Password ===")

	password, err := readPassword("Enter Password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading password:", err)
		os.Exit(1)
	}
	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "Error: Password must be at least 8 characters")
		os.Exit(1)
	}
	// bcrypt ignores everything past 72 bytes.
	if len(password) > 72 {
		fmt.Fprintln(os.Stderr, "Error: Password must be at most 72 bytes")
		os.Exit(1)
	}

	confirm, err := readPassword("Confirm Password: ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading password:", err)
		os.Exit(1)
	}
	if !bytes.Equal(password, confirm) {
		fmt.Fprintln(os.Stderr, "Error: Passwords do not match")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword(password, cfg.BcryptCost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: Failed to hash password:", err)
		os.Exit(1)
	}

	fmt.Printf("\nADMIN_PASSWORD_HASH=%s\n", hash)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	return b, err
}

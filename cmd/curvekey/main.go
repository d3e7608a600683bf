// Command curvekey manages the operator key file read by curvebot.
//
//	curvekey encrypt -out operator.json   # secret on stdin, password from env
//	curvekey inspect -in operator.json    # prints the address, decrypts to verify
//
// The password is read from CURVEBOT_WALLET_KEY_PASSWORD.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/curvebot/internal/wallet"
)

const passwordEnv = "CURVEBOT_WALLET_KEY_PASSWORD"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "encrypt":
		err = encrypt(os.Args[2:])
	case "inspect":
		err = inspect(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "curvekey: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: curvekey encrypt -out FILE | inspect -in FILE")
}

func encrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	out := fs.String("out", "operator-key.json", "key file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(args)

	password := os.Getenv(passwordEnv)
	if password == "" {
		return fmt.Errorf("%s must be set", passwordEnv)
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s exists (use -force)", *out)
	}

	fmt.Fprintln(os.Stderr, "paste the private key or seed phrase, then press enter:")
	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read secret: %w", err)
	}
	secret = strings.TrimSpace(secret)

	// The chain id does not affect the derived address.
	cred, err := wallet.NewResolver(big.NewInt(1)).Resolve(secret)
	if err != nil {
		return err
	}
	addr := wallet.Lower(cred.Address())
	cred.Destroy()

	data, err := wallet.EncryptSecret(secret, password, addr)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("wrote %s for %s\n", *out, addr)
	return nil
}

func inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	in := fs.String("in", "operator-key.json", "key file to read")
	_ = fs.Parse(args)

	password := os.Getenv(passwordEnv)
	if password == "" {
		return fmt.Errorf("%s must be set", passwordEnv)
	}
	secret, err := wallet.LoadSecret(wallet.KeyConfig{EncryptedKeyPath: *in, KeyPassword: password})
	if err != nil {
		return err
	}
	cred, err := wallet.NewResolver(big.NewInt(1)).Resolve(secret)
	if err != nil {
		return err
	}
	defer cred.Destroy()
	fmt.Printf("%s decrypts to %s\n", *in, wallet.Lower(cred.Address()))
	return nil
}

// Command easybet-sign is an operator tool for the EasyBet API. It prints the
// signature headers for a request and encrypts wallet keys for storage.
//
//	easybet-sign sign -key-file wallet.json -method POST -path /api/token/claim
//	easybet-sign encrypt -out wallet.json
//
// Keys and passwords may also come from EASYBET_PRIVATE_KEY and
// EASYBET_KEY_PASSWORD.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/alanyoungcy/easybet/internal/crypto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "sign":
		err = runSign(os.Args[2:], os.Stdout)
	case "encrypt":
		err = runEncrypt(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "easybet-sign: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: easybet-sign <sign|encrypt> [flags]")
}

func runSign(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("EASYBET_PRIVATE_KEY"), "hex private key")
	keyFile := fs.String("key-file", "", "encrypted key file")
	password := fs.String("password", os.Getenv("EASYBET_KEY_PASSWORD"), "key file password")
	method := fs.String("method", "GET", "HTTP method")
	path := fs.String("path", "", "request path, e.g. /api/projects")
	body := fs.String("body", "", "request body")
	bodyFile := fs.String("body-file", "", "read the request body from a file (- for stdin)")
	asJSON := fs.Bool("json", false, "print headers as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("sign: -path is required")
	}

	payload := []byte(*body)
	if *bodyFile != "" {
		var err error
		if *bodyFile == "-" {
			payload, err = io.ReadAll(os.Stdin)
		} else {
			payload, err = os.ReadFile(*bodyFile)
		}
		if err != nil {
			return fmt.Errorf("sign: read body: %w", err)
		}
	}

	signer, err := crypto.LoadSigner(crypto.KeySource{
		RawPrivateKey:    *key,
		EncryptedKeyPath: *keyFile,
		KeyPassword:      *password,
	})
	if err != nil {
		return err
	}
	headers, err := signer.Headers(*method, *path, payload, time.Now())
	if err != nil {
		return err
	}
	return printHeaders(out, headers, *asJSON)
}

func printHeaders(out io.Writer, headers map[string]string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(headers)
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if _, err := fmt.Fprintf(out, "%s: %s\n", k, headers[k]); err != nil {
			return err
		}
	}
	return nil
}

func runEncrypt(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	key := fs.String("key", os.Getenv("EASYBET_PRIVATE_KEY"), "hex private key")
	password := fs.String("password", os.Getenv("EASYBET_KEY_PASSWORD"), "encryption password")
	outPath := fs.String("out", "", "write the key file here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" || *password == "" {
		return errors.New("encrypt: a key and a password are required")
	}

	data, err := crypto.EncryptKey(*key, *password)
	if err != nil {
		return err
	}
	if *outPath == "" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		return fmt.Errorf("encrypt: write %s: %w", *outPath, err)
	}
	fmt.Fprintf(out, "wrote %s\n", *outPath)
	return nil
}

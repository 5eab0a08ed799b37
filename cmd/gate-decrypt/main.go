package main

import (
	"context"
	"io"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/cli"
	"github.com/denysvitali/odi-gate/pkg/crypt"
	"github.com/denysvitali/odi-gate/pkg/storage"
)

// Args decrypts either stdin or, with --session, an image fetched from the
// configured storage.
type Args struct {
	Session string `arg:"--session" help:"Session id of an archived upload to fetch"`
	storage.Args
}

var log = logrus.StandardLogger()

func main() {
	var args Args
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}

	if args.Passphrase == "" {
		log.Fatalf("passphrase cannot be empty")
	}

	var reader io.Reader
	if args.Session != "" {
		s, err := args.Args.Setup(context.Background())
		if err != nil {
			log.Fatalf("unable to create storage: %v", err)
		}
		if s == nil {
			log.Fatalf("--session requires a storage type")
		}
		img, err := s.Retrieve(context.Background(), args.Session)
		if err != nil {
			log.Fatalf("unable to retrieve %s: %v", args.Session, err)
		}
		reader = img.Reader
	} else {
		c, err := crypt.New(args.Passphrase, []byte(args.Salt))
		if err != nil {
			log.Fatalf("unable to create crypt: %v", err)
		}
		if reader, err = c.Decrypt(os.Stdin); err != nil {
			log.Fatalf("unable to decrypt: %v", err)
		}
	}

	if _, err := io.Copy(os.Stdout, reader); err != nil {
		log.Fatalf("unable to copy: %v", err)
	}
}

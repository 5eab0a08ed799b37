package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/capture/opencv"
	"github.com/denysvitali/odi-gate/pkg/logutils"
	"github.com/denysvitali/odi-gate/pkg/resolver"
	"github.com/denysvitali/odi-gate/pkg/validator"
)

var args struct {
	Images    []string `arg:"positional,required" help:"Image files to inspect"`
	Json      bool     `arg:"--json" help:"Print one JSON object per image"`
	Threshold int      `arg:"--confidence-threshold" default:"60"`
	LogLevel  string   `arg:"--log-level,env:LOG_LEVEL" default:"warn"`
}

var log = logrus.StandardLogger()

type Report struct {
	File       string             `json:"file"`
	Text       string             `json:"text,omitempty"`
	Confidence int                `json:"confidence"`
	Accepted   bool               `json:"accepted"`
	Reason     string             `json:"reason,omitempty"`
	Identity   *resolver.Identity `json:"identity,omitempty"`
}

func main() {
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)

	decoder := opencv.NewQRDecoder()
	defer decoder.Close()
	still := capture.NewStillImage(opencv.Loader{}, decoder)
	v := validator.New(validator.WithThreshold(args.Threshold))

	failed := false
	enc := json.NewEncoder(os.Stdout)
	for _, path := range args.Images {
		r := inspect(still, v, path)
		if !r.Accepted {
			failed = true
		}
		if args.Json {
			if err := enc.Encode(r); err != nil {
				log.Fatalf("unable to encode report: %v", err)
			}
			continue
		}
		printReport(r)
	}
	if failed {
		os.Exit(1)
	}
}

func inspect(still *capture.StillImage, v *validator.Validator, path string) Report {
	r := Report{File: path}
	f, err := os.Open(path)
	if err != nil {
		r.Reason = err.Error()
		return r
	}
	defer f.Close()

	up, err := still.Decode(f)
	if err != nil {
		r.Reason = err.Error()
		return r
	}
	r.Text = up.Payload.Text
	r.Confidence, err = v.Validate(up.Payload)
	if err != nil {
		r.Reason = err.Error()
		return r
	}
	r.Accepted = true
	identity := resolver.Extract(up.Payload.Text)
	r.Identity = &identity
	return r
}

func printReport(r Report) {
	fmt.Printf("%s\n", r.File)
	if r.Text != "" {
		fmt.Printf("  payload:    %q\n", r.Text)
		fmt.Printf("  confidence: %d\n", r.Confidence)
	}
	if !r.Accepted {
		fmt.Printf("  rejected:   %s\n", r.Reason)
		return
	}
	fmt.Printf("  person:     %s (%s)\n", r.Identity.PersonId, r.Identity.Category)
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/approval"
	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/capture/opencv"
	"github.com/denysvitali/odi-gate/pkg/cli"
	"github.com/denysvitali/odi-gate/pkg/engine"
	"github.com/denysvitali/odi-gate/pkg/gateclient"
	"github.com/denysvitali/odi-gate/pkg/gateclient/caroundtripper"
	"github.com/denysvitali/odi-gate/pkg/journal"
	"github.com/denysvitali/odi-gate/pkg/logutils"
	"github.com/denysvitali/odi-gate/pkg/metrics"
	"github.com/denysvitali/odi-gate/pkg/resolver"
	"github.com/denysvitali/odi-gate/pkg/retry"
	"github.com/denysvitali/odi-gate/pkg/server"
	"github.com/denysvitali/odi-gate/pkg/storage"
	"github.com/denysvitali/odi-gate/pkg/validator"
)

type Args struct {
	BackendAddr    string        `arg:"--backend-addr,required,env:GATE_BACKEND_ADDR" help:"Base URL of the facility backend"`
	BackendToken   string        `arg:"--backend-token,env:GATE_BACKEND_TOKEN" help:"Bearer token for the facility backend, may be keychain:<element>"`
	BackendCaPath  string        `arg:"--backend-ca-path,env:GATE_BACKEND_CA_PATH" help:"PEM file of the CA that signed the backend certificate"`
	BackendCert    string        `arg:"--backend-client-cert,env:GATE_BACKEND_CLIENT_CERT" help:"Client certificate of the station, requires --backend-ca-path"`
	BackendKey     string        `arg:"--backend-client-key,env:GATE_BACKEND_CLIENT_KEY"`
	BackendTimeout time.Duration `arg:"--backend-timeout,env:GATE_BACKEND_TIMEOUT" default:"10s"`
	FetchAttempts  int           `arg:"--fetch-attempts,env:FETCH_ATTEMPTS" default:"3" help:"Attempts of the authoritative person fetch"`
	FetchBackoff   time.Duration `arg:"--fetch-backoff,env:FETCH_BACKOFF" default:"500ms" help:"Base delay of the linear fetch backoff"`

	ListenAddr string `arg:"-L,--listen-addr,env:LISTEN_ADDR" default:"127.0.0.1:8085"`
	LogLevel   string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	LogFormat  string `arg:"--log-format,env:LOG_FORMAT" default:"text" help:"text or json"`

	CameraDevice      int     `arg:"--camera-device,env:CAMERA_DEVICE" default:"-1" help:"Camera to start scanning with, -1 to wait for the UI"`
	CameraFrontFacing bool    `arg:"--camera-front-facing,env:CAMERA_FRONT_FACING" help:"Mirror the preview of the camera"`
	ScanRate          float64 `arg:"--scan-rate,env:SCAN_RATE" default:"3" help:"Decode attempts per second"`
	Threshold         int     `arg:"--confidence-threshold,env:CONFIDENCE_THRESHOLD" default:"60"`

	OsAddr               string `arg:"--opensearch-addr,env:OPENSEARCH_ADDR" help:"Record session outcomes to OpenSearch"`
	OsIndex              string `arg:"--opensearch-index,env:OPENSEARCH_INDEX" default:"gate-sessions"`
	OsInsecureSkipVerify bool   `arg:"--opensearch-insecure-skip-verify,env:OPENSEARCH_SKIP_TLS"`
	OsPassword           string `arg:"--opensearch-password,env:OPENSEARCH_PASSWORD"`
	OsUsername           string `arg:"--opensearch-username,env:OPENSEARCH_USERNAME"`

	storage.Args
}

var log = logrus.StandardLogger()

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("unable to load .env: %v", err)
	}

	var args Args
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	logutils.SetLoggerLevel(args.LogLevel)
	logutils.SetLoggerFormat(args.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newBackendClient(args)
	if err != nil {
		log.Fatalf("create backend client: %v", err)
	}

	m := metrics.New()
	res := resolver.New(client,
		resolver.WithRetryPolicy(retry.New(args.FetchAttempts, retry.Linear(args.FetchBackoff))),
		resolver.WithDegradedHook(func(string, error) { m.FetchDegraded() }),
	)

	archive, err := args.Args.Setup(ctx)
	if err != nil {
		log.Fatalf("create storage: %v", err)
	}

	rec, err := newJournal(ctx, args)
	if err != nil {
		log.Fatalf("create journal: %v", err)
	}
	queue := journal.NewQueue(rec, 2, 128)
	defer queue.Close()

	decoder := opencv.NewQRDecoder()
	defer decoder.Close()

	opts := []engine.Option{
		engine.WithCamera(
			opencv.Opener(opencv.WithFrontFacing(args.CameraFrontFacing)),
			decoder,
			capture.WithScanRate(args.ScanRate),
		),
		engine.WithStillImage(capture.NewStillImage(opencv.Loader{}, decoder)),
		engine.WithJournal(queue),
		engine.WithMetrics(m),
	}
	serverOpts := []server.Option{
		server.WithMetrics(m),
		server.WithBackendHealth(client.Healthz),
	}
	if archive != nil {
		opts = append(opts, engine.WithArchive(archive))
		serverOpts = append(serverOpts, server.WithArchive(archive))
	}

	eng := engine.New(
		validator.New(validator.WithThreshold(args.Threshold)),
		res,
		approval.NewMachine(client, res),
		opts...,
	)
	defer eng.Shutdown()

	if args.CameraDevice >= 0 {
		if _, err := eng.StartCamera(args.CameraDevice); err != nil {
			log.Errorf("unable to start camera %d: %v", args.CameraDevice, err)
		}
	}

	if err := server.New(eng, serverOpts...).Run(ctx, args.ListenAddr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func newBackendClient(args Args) (*gateclient.Client, error) {
	opts := []gateclient.Option{gateclient.WithTimeout(args.BackendTimeout)}
	if args.BackendToken != "" {
		opts = append(opts, gateclient.WithToken(args.BackendToken))
	}
	client, err := gateclient.New(args.BackendAddr, opts...)
	if err != nil {
		return nil, err
	}
	if args.BackendCaPath != "" {
		var rtOpts []caroundtripper.Option
		if args.BackendCert != "" {
			rtOpts = append(rtOpts, caroundtripper.WithClientCertificate(args.BackendCert, args.BackendKey))
		}
		rt, err := caroundtripper.New(args.BackendCaPath, rtOpts...)
		if err != nil {
			return nil, err
		}
		client.SetHttpTransport(rt)
	}
	return client, nil
}

func newJournal(ctx context.Context, args Args) (journal.Recorder, error) {
	if args.OsAddr == "" {
		log.Infof("no OpenSearch address, session outcomes are not recorded")
		return journal.Nop{}, nil
	}
	opts := []journal.Option{
		journal.WithIndex(args.OsIndex),
		journal.WithUsername(args.OsUsername),
		journal.WithPassword(args.OsPassword),
	}
	if args.OsInsecureSkipVerify {
		opts = append(opts, journal.WithSkipTLS())
	}
	return journal.NewOpenSearch(ctx, args.OsAddr, opts...)
}

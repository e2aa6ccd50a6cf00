package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dbkernel/pkg/config"
	"github.com/sidkik/dbkernel/pkg/errors"
	"github.com/sidkik/dbkernel/pkg/execution"
	"github.com/sidkik/dbkernel/pkg/remote"
	"github.com/sidkik/dbkernel/pkg/remote/databricks"
	"github.com/sidkik/dbkernel/pkg/remote/s3"
	"github.com/sidkik/dbkernel/pkg/session"
)

// closeTimeout bounds the cleanup when a session ends. It doesn't use the
// session's context since that's cancelled when the user interrupts the
// CLI.
const closeTimeout = time.Minute

// Mocked for unit testing.
var (
	stderr    io.Writer = os.Stderr
	exit                = os.Exit
	newS3               = s3.New
	getwd               = os.Getwd
	loadConfig          = config.Load
)

// HandleFatalError handles errors that are severe enough to terminate the
// program.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic logs the panic before letting it crash the program, so that
// the panic shows up in the debug log.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("panic", r).Error("Panic")
		panic(r)
	}
}

// SignalContext returns a context that's cancelled when the user interrupts
// the CLI.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signals:
			log.WithField("signal", sig).Debug("Received signal. Shutting down.")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx, cancel
}

// LoadConfig resolves and validates the configuration for the working
// directory.
func LoadConfig() (config.Config, error) {
	dir, err := getwd()
	if err != nil {
		return config.Config{}, errors.WithContext(err, "get working directory")
	}

	cfg, err := loadConfig(dir)
	if err != nil {
		return config.Config{}, errors.WithContext(err, "load config")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// NewSession connects to the workspace described by `cfg`.
func NewSession(ctx context.Context, cfg config.Config) (*session.Session, error) {
	client := databricks.New(cfg.Host, cfg.Token)
	storage, err := newStorage(cfg, client)
	if err != nil {
		return nil, errors.WithContext(err, "create staging storage")
	}

	rem := session.Remote{
		Contexts:  client,
		Cluster:   client,
		Users:     client,
		Storage:   storage,
		Workspace: client.Workspace(),
	}
	return session.New(ctx, cfg, rem, session.Options{Progress: printProgress})
}

// WithSession runs `fn` in a session for the project in the working
// directory. The session is closed once `fn` returns, even if the user
// interrupts it.
func WithSession(fn func(context.Context, *session.Session) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := SignalContext()
	defer cancel()

	s, err := NewSession(ctx, cfg)
	if err != nil {
		return errors.WithContext(err, "start session")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		s.Close(closeCtx)
	}()

	return fn(ctx, s)
}

func newStorage(cfg config.Config, client *databricks.Client) (remote.Storage, error) {
	switch cfg.Storage.Type {
	case config.StorageS3:
		storage, err := newS3(cfg.Storage.Region, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case config.StorageDBFS, "":
		return client.DBFS(), nil
	}
	return nil, errors.New("unknown storage type %q", cfg.Storage.Type)
}

// printProgress overwrites the previous progress message so that the
// polling dots animate in place.
func printProgress(msg string) {
	fmt.Fprintf(stderr, "\r%-12s\r", msg)
}

// PrintResult writes the output of `cmd` to `out`. Errors raised by the
// user's code are written to stderr with their traceback, and returned.
func PrintResult(out io.Writer, cmd *execution.Command) error {
	for _, fragment := range cmd.Result.Output {
		switch fragment.Kind {
		case remote.Stdout:
			fmt.Fprint(out, fragment.Text)
		case remote.Stderr:
			fmt.Fprint(stderr, fragment.Text)
		case remote.Display:
			fmt.Fprintf(out, "[%s output]\n", fragment.MIMEType)
		}
	}

	if cmd.Result.Reconnected {
		log.Warn("The execution context was replaced while running. " +
			"Variables defined by earlier commands are gone.")
	}

	if cmd.State == remote.Cancelled {
		return errors.NewFriendlyError("The command was cancelled.")
	}

	err := cmd.Err()
	if err == nil {
		return nil
	}

	if execErr, ok := err.(errors.CommandExecutionError); ok && len(execErr.Traceback) > 0 {
		fmt.Fprintln(stderr, strings.Join(execErr.Traceback, "\n"))
	}
	return err
}

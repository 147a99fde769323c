// Command verinews-casd serves a record mirror store over gRPC so several
// verinews installations can share one copy of confirmed records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"verinews.io/verify/internal/logging"
	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
	"verinews.io/verify/storage/grpccas"

	_ "verinews.io/verify/storage/ipfs"
	_ "verinews.io/verify/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verinews-casd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "Log level")
	logFile := fs.String("log-file", "", "Also write logs to this file (default $"+logging.EnvLogFile+")")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log, closeLog, err := logging.New(logging.Options{Level: *logLevel, File: *logFile, Info: errOut, Warn: errOut})
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer closeLog()

	cas, closeFn, err := casregistry.Open(*backend, casregistry.UsageDaemon)
	if err != nil {
		log.WithError(err).WithField("backend", *backend).Error("open backend")
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.WithError(err).Error("listen")
		return 1
	}

	log.WithFields(logrus.Fields{"addr": lis.Addr().String(), "backend": *backend}).Info("verinews-casd listening")
	if err := serve(ctx, lis, cas, log); err != nil {
		log.WithError(err).Error("serve")
		return 1
	}
	log.Info("verinews-casd stopped")
	return 0
}

func newServer(cas storage.CAS, log logrus.FieldLogger) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpccas.LoggingInterceptor(log)))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})
	return s
}

// serve runs until lis fails or ctx is done, then drains in-flight calls.
func serve(ctx context.Context, lis net.Listener, cas storage.CAS, log logrus.FieldLogger) error {
	s := newServer(cas, log)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			s.GracefulStop()
		case <-done:
		}
	}()
	err := s.Serve(lis)
	close(done)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

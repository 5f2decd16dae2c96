// Command h2inspect decodes HTTP/2 frames from a capture file or from live
// TCP connections and logs a summary of each frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"example.com/h2framein/internal/config"
	"example.com/h2framein/internal/http2"
	"example.com/h2framein/internal/inspect"
	"example.com/h2framein/internal/logger"
	"example.com/h2framein/internal/server"
)

var (
	configFilePath string
	listenAddress  string
	inputFile      string
)

func main() {
	flag.StringVar(&configFilePath, "config", "", "Path to the configuration file (JSON or TOML)")
	flag.StringVar(&listenAddress, "listen", "", "TCP address to accept connections on; overrides inspector.listen_address")
	flag.StringVar(&inputFile, "file", "", "Decode a raw frame capture instead of listening (\"-\" for stdin)")
	flag.Parse()

	os.Exit(run())
}

func run() int {
	cfg := config.Default()
	if configFilePath != "" {
		absConfigPath, err := filepath.Abs(configFilePath)
		if err != nil {
			log.Printf("Error getting absolute path for config file %s: %v", configFilePath, err)
			return 1
		}
		cfg, err = config.LoadConfig(absConfigPath)
		if err != nil {
			log.Printf("Failed to load configuration: %v", err)
			return 1
		}
	}
	if listenAddress != "" {
		cfg.Inspector.ListenAddress = &listenAddress
	}

	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer appLogger.CloseLogFiles()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reopenOnHangup(ctx, appLogger)

	if inputFile != "" {
		err = inspectFile(ctx, cfg, appLogger, inputFile)
	} else {
		var srv *server.Server
		srv, err = server.NewServer(cfg, appLogger)
		if err == nil {
			err = srv.ListenAndServe(ctx)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Exiting with error", logger.LogFields{"error": err.Error()})
		return 1
	}
	return 0
}

func reopenOnHangup(ctx context.Context, lg *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := lg.ReopenLogFiles(); err != nil {
				lg.Error("Failed to reopen log files", logger.LogFields{"error": err.Error()})
				continue
			}
			lg.Info("Log files reopened", nil)
		}
	}
}

func inspectFile(ctx context.Context, cfg *config.Config, lg *logger.Logger, path string) error {
	var ch http2.Channel
	if path == "-" {
		ch = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open capture: %w", err)
		}
		defer f.Close()
		ch = fileChannel(f)
	}

	dec, err := http2.NewFrameDecoder(http2.NewBasicTransportMetrics(), *cfg.Decoder.BufferLen, int(*cfg.Decoder.MaxFrameSize))
	if err != nil {
		return err
	}
	in, err := inspect.New(dec, inspect.OptionsFromConfig(cfg.Inspector), lg.With(logger.LogFields{"source": path}))
	if err != nil {
		return err
	}
	res, err := in.Run(ctx, ch)
	if err != nil {
		return err
	}
	lg.Info("Capture decoded", logger.LogFields{"frames": res.Frames, "bytes": res.Bytes, "complete": res.Closed})
	return nil
}

// fileChannel prefers a non-blocking descriptor read and falls back to the
// file's ordinary reader where that is unsupported.
func fileChannel(f *os.File) http2.Channel {
	if ch, err := http2.NewFDChannel(int(f.Fd())); err == nil {
		return ch
	}
	return f
}

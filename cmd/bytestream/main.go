package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/moriyoshi/bytestream"
	"github.com/moriyoshi/bytestream/bufio"
	"github.com/moriyoshi/bytestream/forwarder"
	"github.com/moriyoshi/bytestream/framing"
	"github.com/moriyoshi/bytestream/internal/expand"
	"github.com/moriyoshi/bytestream/types"
)

func loadServerCertificate(certFile string, keyFile string, passphrase string) (*tls.Config, error) {
	var certPEMBlock, keyPEMBlock *pem.Block

	{
		b, err := os.ReadFile(certFile)
		if err != nil {
			return nil, err
		}
		for {
			var block *pem.Block
			block, b = pem.Decode(b)
			if block == nil {
				break
			}
			if block.Type == "CERTIFICATE" {
				certPEMBlock = block
			}
			if strings.HasSuffix(block.Type, "PRIVATE KEY") {
				keyPEMBlock = block
			}
		}
	}
	if certPEMBlock == nil {
		return nil, fmt.Errorf("no certificate found in %s", certFile)
	}
	if keyFile != "" {
		b, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
		keyPEMBlock, _ = pem.Decode(b)
		if keyPEMBlock == nil || !strings.HasSuffix(keyPEMBlock.Type, "PRIVATE KEY") {
			return nil, fmt.Errorf("no private key found in %s", keyFile)
		}
	} else if keyPEMBlock == nil {
		return nil, fmt.Errorf("no key found in %s and no key file is specified", certFile)
	}

	if passphrase != "" {
		b, err := x509.DecryptPEMBlock(keyPEMBlock, []byte(passphrase))
		if err != nil {
			return nil, err
		}
		keyPEMBlock.Bytes = b
	}
	cert, err := tls.X509KeyPair(pem.EncodeToMemory(certPEMBlock), pem.EncodeToMemory(keyPEMBlock))
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}, nil
}

func loadCABundle(certBundle string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	b, err := os.ReadFile(certBundle)
	if err != nil {
		return nil, err
	}
	if !pool.AppendCertsFromPEM(b) {
		return nil, fmt.Errorf("failed to load CA bundle from %s", certBundle)
	}
	return pool, nil
}

type CLI struct {
	Bind              string        `name:"bind" help:"Address and port to listen on. Without it, the inputs are framed and the program exits." env:"BYTESTREAM_BIND" optional:""`
	Certificate       string        `name:"certificate" help:"Path to the certificate file; enables TLS on the listener." env:"BYTESTREAM_CERTIFICATE" optional:""`
	PrivateKey        string        `name:"private-key" help:"Path to the private key file." env:"BYTESTREAM_PRIVATE_KEY" optional:""`
	Passphrase        string        `name:"passphrase" help:"Passphrase for the private key file." env:"BYTESTREAM_PASSPHRASE" optional:""`
	Profiles          string        `name:"profiles" help:"Path to the framing profiles file (YAML or JSON)." env:"BYTESTREAM_PROFILES" optional:""`
	Profile           string        `name:"profile" help:"Name of the framing profile to apply." env:"BYTESTREAM_PROFILE" default:"default"`
	Output            string        `name:"output" short:"o" help:"Where frames go when there is no next hop ('-' for stdout)." env:"BYTESTREAM_OUTPUT" default:"-"`
	Separator         string        `name:"separator" help:"Bytes written after every frame; backslash escapes are decoded. Defaults to a newline." env:"BYTESTREAM_SEPARATOR" optional:""`
	NextHop           string        `name:"next-hop" help:"Host name / port pair frames are forwarded to." env:"BYTESTREAM_NEXT_HOP" optional:""`
	NextHopTLS        bool          `name:"next-hop-tls" help:"Use TLS for the next hop." env:"BYTESTREAM_NEXT_HOP_TLS" default:"false"`
	CABundle          string        `name:"ca-bundle" help:"Path to the CA bundle file for the next hop." env:"BYTESTREAM_CA_BUNDLE" optional:""`
	Ack               string        `name:"ack" help:"Reply sent after every frame; $${seq} and $${size} expand." env:"BYTESTREAM_ACK" optional:""`
	MaxConnections    int           `name:"max-connections" help:"Maximum number of connections served at once (0 for no limit)." env:"BYTESTREAM_MAX_CONNECTIONS" default:"0"`
	ReadRate          int64         `name:"read-rate" help:"Per-connection read rate in bytes per second (0 for no limit)." env:"BYTESTREAM_READ_RATE" default:"0"`
	BufferSize        int           `name:"buffer-size" help:"Buffer size for profiles that do not specify one." env:"BYTESTREAM_BUFFER_SIZE" default:"4096"`
	ConnectionTimeout time.Duration `name:"connection-timeout" help:"Connection timeout for the next hop." env:"BYTESTREAM_CONNECTION_TIMEOUT" default:"60s"`
	LogLevel          slog.Level    `name:"log-level" help:"Log level." env:"BYTESTREAM_LOG_LEVEL" default:"INFO" enum:"DEBUG,INFO,WARN,ERROR"`
	Inputs            []string      `arg:"" name:"input" help:"Files to frame when not listening ('-' for stdin)." optional:""`
}

func (CLI *CLI) initLogger(*kong.Context) *slog.Logger {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{Level: CLI.LogLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: CLI.LogLevel})
	}
	return slog.New(handler)
}

func (CLI *CLI) initFramer(kongCtx *kong.Context, logger *slog.Logger) *framing.Framer {
	options := []framing.FramerOptionFunc{
		framing.WithLogger(logger),
		framing.WithDefaultBufferSize(CLI.BufferSize),
	}
	var framer *framing.Framer
	var err error
	if CLI.Profiles != "" {
		framer, err = framing.NewFramerFromYAMLFile(CLI.Profiles, options...)
	} else {
		framer, err = framing.NewFramer(framing.DefaultProfiles(), options...)
	}
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return framer
}

func (CLI *CLI) separator(kongCtx *kong.Context) []byte {
	if CLI.Separator == "" {
		return []byte{'\n'}
	}
	sep, err := expand.Unescape(CLI.Separator)
	if err != nil {
		kongCtx.FatalIfErrorf(fmt.Errorf("invalid separator: %w", err))
	}
	return []byte(sep)
}

func (CLI *CLI) initForwarder(kongCtx *kong.Context, logger *slog.Logger) *forwarder.Forwarder {
	options := []forwarder.ForwarderOptionFunc{
		forwarder.WithLogger(logger),
		forwarder.WithConnTimeout(CLI.ConnectionTimeout),
		forwarder.WithSeparator(CLI.separator(kongCtx)),
		forwarder.WithBufferSize(CLI.BufferSize),
	}
	if CLI.NextHopTLS {
		clientTLSConfig := new(tls.Config)
		if CLI.CABundle != "" {
			logger.Info("loading CA bundle", slog.String("path", CLI.CABundle))
			caPool, err := loadCABundle(CLI.CABundle)
			if err != nil {
				kongCtx.FatalIfErrorf(err)
			}
			clientTLSConfig.RootCAs = caPool
		}
		options = append(options, forwarder.WithTLSConfig(clientTLSConfig))
	}
	fw, err := forwarder.NewForwarder(CLI.NextHop, options...)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return fw
}

// writerOutlet serialises frames from concurrent connections onto w.
type writerOutlet struct {
	mu        sync.Mutex
	w         *bufio.Writer
	separator []byte
}

func (o *writerOutlet) handle(_ context.Context, _ *types.FrameDescriptor, frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(frame); err != nil {
		return err
	}
	if _, err := o.w.Write(o.separator); err != nil {
		return err
	}
	return o.w.Flush()
}

func (CLI *CLI) initOutlet(kongCtx *kong.Context, logger *slog.Logger) (types.Outlet, func() error) {
	if CLI.NextHop != "" {
		return CLI.initForwarder(kongCtx, logger).Outlet(), func() error { return nil }
	}
	var w io.WriteCloser = os.Stdout
	if CLI.Output != "-" {
		f, err := os.Create(CLI.Output)
		if err != nil {
			kongCtx.FatalIfErrorf(err)
		}
		w = f
	}
	o := &writerOutlet{
		w:         bufio.NewWriter(w, bufio.WithSize(CLI.BufferSize), bufio.WithLogger(logger)),
		separator: CLI.separator(kongCtx),
	}
	return o.handle, func() error {
		if w == os.Stdout {
			return nil
		}
		return w.Close()
	}
}

func (CLI *CLI) initServer(kongCtx *kong.Context, logger *slog.Logger, framer *framing.Framer, outlet types.Outlet) *bytestream.Server {
	options := []bytestream.OptionFunc{
		bytestream.WithLogger(logger),
		bytestream.WithProfile(CLI.Profile),
		bytestream.WithMaxConnections(CLI.MaxConnections),
		bytestream.WithReadRate(CLI.ReadRate),
	}
	if CLI.Ack != "" {
		ack, err := expand.Unescape(CLI.Ack)
		if err != nil {
			kongCtx.FatalIfErrorf(fmt.Errorf("invalid ack: %w", err))
		}
		options = append(options, bytestream.WithAck(ack))
	}
	if CLI.Certificate != "" {
		serverTLSConfig, err := loadServerCertificate(CLI.Certificate, CLI.PrivateKey, CLI.Passphrase)
		if err != nil {
			kongCtx.FatalIfErrorf(err)
		}
		options = append(options, bytestream.WithTLSConfig(serverTLSConfig))
	}
	server, err := bytestream.NewServer(CLI.Bind, framer, outlet, options...)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
	return server
}

func (CLI *CLI) frameInput(ctx context.Context, logger *slog.Logger, framer *framing.Framer, outlet types.Outlet, input string) error {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	fd := types.FrameDescriptor{Origin: input, Profile: CLI.Profile}
	for frame, err := range framer.Frames(r, CLI.Profile) {
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fd.Sequence++
		fd.Timestamp = time.Now()
		if err := outlet(ctx, &fd, frame); err != nil {
			return err
		}
	}
	logger.Debug("input framed", slog.String("input", input), slog.Uint64("frames", fd.Sequence))
	return nil
}

func (CLI *CLI) frameInputs(ctx context.Context, logger *slog.Logger, framer *framing.Framer, outlet types.Outlet) error {
	inputs := CLI.Inputs
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	for _, input := range inputs {
		if err := CLI.frameInput(ctx, logger, framer, outlet, input); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()
	var CLI CLI
	kongCtx := kong.Parse(&CLI, kong.Description("Cuts byte streams into frames and relays them."))
	logger := CLI.initLogger(kongCtx)
	framer := CLI.initFramer(kongCtx, logger)
	outlet, closeOutlet := CLI.initOutlet(kongCtx, logger)
	defer closeOutlet()

	if CLI.Bind == "" {
		err := CLI.frameInputs(ctx, logger, framer, outlet)
		if err != nil && !errors.Is(err, context.Canceled) {
			kongCtx.FatalIfErrorf(err)
		}
		return
	}

	server := CLI.initServer(kongCtx, logger, framer, outlet)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	go func() {
		count := 0
	outer:
		for {
			select {
			case <-ctx.Done():
				break outer
			case <-sigChan:
				count += 1
				if count == 1 {
					kongCtx.Printf("Received SIGINT, shutting down...")
					go func() {
						err := server.Shutdown(ctx)
						if err != nil && !errors.Is(err, context.Canceled) {
							kongCtx.FatalIfErrorf(err)
						}
					}()
				} else {
					kongCtx.Printf("Received SIGINT again, forcing shutdown...")
					cancel()
				}
			}
		}
	}()
	err := server.Serve(ctx)
	if err != nil {
		kongCtx.FatalIfErrorf(err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gregLibert/emv-reader/pkg/config"
	"github.com/gregLibert/emv-reader/pkg/emv"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/pcsc"
	"github.com/gregLibert/emv-reader/pkg/replay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	readerFilter := flag.String("reader", "", "only use readers whose name contains this")
	replayPath := flag.String("replay", "", "read a recorded YAML transcript instead of a reader")
	recordPath := flag.String("record", "", "save the card exchanges as a YAML transcript")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *readerFilter != "" {
		cfg.Reader = *readerFilter
	}

	if *dumpConfig {
		raw, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding config: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(raw))
		return
	}

	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	opts, err := cfg.ReaderOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid reader options")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *replayPath != "" {
		err = readTranscript(ctx, *replayPath, cfg, opts)
	} else {
		err = readReaders(ctx, cfg, opts, *recordPath)
	}
	if err != nil {
		log.Error().Err(err).Msg("read failed")
		stop()
		os.Exit(1)
	}
}

// initLogging writes human readable logs to stderr and, when a log file is
// configured, JSON logs to a rotated file.
func initLogging(cfg config.Values) error {
	level, err := cfg.Level()
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o750); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    1,
			MaxBackups: 2,
		})
	}

	log.Logger = log.Output(io.MultiWriter(writers...)).With().Timestamp().Logger()
	return nil
}

// output serialises card reports of concurrent readers.
var output sync.Mutex

func printCard(source string, card *emv.Card) {
	output.Lock()
	defer output.Unlock()

	fmt.Printf("\n>> %s\n", source)
	if card == nil {
		fmt.Println("No payment application found.")
		return
	}
	fmt.Println(card.Describe())
}

func readTranscript(ctx context.Context, path string, cfg config.Values, opts emv.Options) error {
	t, err := replay.Load(path)
	if err != nil {
		return err
	}
	player, err := replay.NewPlayer(t)
	if err != nil {
		return err
	}

	card, err := readCard(ctx, player, cfg, opts)
	if err != nil {
		return err
	}
	printCard(t.Name, card)
	return nil
}

// readReaders reads the card of every matching reader concurrently.
func readReaders(ctx context.Context, cfg config.Values, opts emv.Options, recordPath string) error {
	readers, err := pcsc.Readers(pcsc.DefaultContextFactory, cfg.Reader)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, reader := range readers {
		record := recordPath
		if record != "" && len(readers) > 1 {
			record = numbered(record, i)
		}
		g.Go(func() error {
			return readReader(ctx, reader, cfg, opts, record)
		})
	}
	return g.Wait()
}

func readReader(ctx context.Context, reader string, cfg config.Values, opts emv.Options, recordPath string) error {
	session, err := pcsc.Open(ctx, pcsc.DefaultContextFactory, reader, pcsc.DefaultPollInterval)
	if err != nil {
		return fmt.Errorf("%s: %w", reader, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("reader", reader).Msg("error closing session")
		}
	}()

	var card iso7816.Transmitter = session
	var recorder *replay.Recorder
	if recordPath != "" {
		recorder = replay.NewRecorder(session, reader)
		card = recorder
	}

	result, readErr := readCard(ctx, card, cfg, opts)

	if recorder != nil {
		if saveErr := recorder.Transcript().Save(recordPath); saveErr != nil {
			readErr = errors.Join(readErr, saveErr)
		} else {
			log.Info().Str("path", recordPath).Msg("transcript saved")
		}
	}
	if readErr != nil {
		return fmt.Errorf("%s: %w", reader, readErr)
	}

	printCard(reader, result)
	return nil
}

func readCard(ctx context.Context, card iso7816.Transmitter, cfg config.Values, opts emv.Options) (*emv.Card, error) {
	client := iso7816.NewClient(card)
	client.Timeout = cfg.Timeout()
	return emv.NewReader(client, opts).ReadCard(ctx)
}

// numbered turns "card.yaml" into "card-1.yaml" for the reader at index i.
func numbered(path string, i int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i, ext)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"aistudio/internal/domain"
	"aistudio/internal/history"
	"aistudio/internal/imaging"
	"aistudio/internal/infra"
	provider "aistudio/internal/providers/image"
	"aistudio/internal/storage"
	"aistudio/internal/studio"
	"aistudio/pkg/zip"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitAborted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns instead of exiting so deferred cleanup (signal handler, store
// connections) always executes.
func run(args []string, stdout, stderr io.Writer) int {
	var (
		imageFlag      string
		promptFlag     string
		styleFlag      string
		clientFlag     string
		restoreFlag    string
		exportFlag     string
		listStylesFlag bool
		historyFlag    bool
	)

	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&imageFlag, "image", "", "path to a PNG or JPG image")
	fs.StringVar(&promptFlag, "prompt", "", "prompt describing the desired image")
	fs.StringVar(&styleFlag, "style", domain.DefaultStyle().ID, "style id (see -list-styles)")
	fs.StringVar(&clientFlag, "client", studio.DefaultClientID, "client id whose history is used")
	fs.StringVar(&restoreFlag, "restore", "", "print the form restored from the history entry with this id")
	fs.StringVar(&exportFlag, "export", "", "write history images and manifest to this zip file and exit")
	fs.BoolVar(&listStylesFlag, "list-styles", false, "list available styles and exit")
	fs.BoolVar(&historyFlag, "history", false, "print recent generations and exit")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	fail := func(err error) int {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	if listStylesFlag {
		for _, s := range domain.Styles {
			fmt.Fprintf(stdout, "%-12s %s\n", s.ID, s.Description)
		}
		return exitOK
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fail(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "generate").Logger()

	clientID, err := studio.NormalizeClientID(clientFlag)
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("open history store: %w", err))
	}
	defer closeStore()

	cache := history.New(ctx, store, cfg.HistoryKey+":"+clientID, logger)
	sim := provider.NewSimulator(
		provider.WithDelayRange(cfg.SimulatorMinDelay, cfg.SimulatorMaxDelay),
		provider.WithFailureRate(cfg.SimulatorFailureRate),
		provider.WithLogger(logger),
	)
	s := studio.New(sim, cache,
		studio.WithConfig(studio.Config{MaxAttempts: cfg.RetryMaxAttempts, BackoffBase: cfg.RetryBackoff}),
		studio.WithLogger(logger),
	)

	switch {
	case historyFlag:
		printJSON(stdout, s.History())
		return exitOK
	case exportFlag != "":
		if err := exportHistory(s.History(), exportFlag); err != nil {
			return fail(err)
		}
		return exitOK
	case restoreFlag != "":
		if err := s.RestoreFromHistory(restoreFlag); err != nil {
			return fail(fmt.Errorf("restore %q: %w", restoreFlag, err))
		}
		printJSON(stdout, s.Snapshot())
		return exitOK
	}

	if strings.TrimSpace(imageFlag) == "" {
		return fail(errors.New("-image is required"))
	}
	if err := s.SetStyle(styleFlag); err != nil {
		return fail(err)
	}
	s.SetPrompt(promptFlag)

	pre := imaging.New(logger)
	pre.MaxWidth = cfg.ImageMaxWidth
	pre.MaxFileSize = cfg.ImageMaxBytes
	pre.MaxPixels = cfg.ImageMaxPixels
	if err := loadImage(ctx, pre, s, imageFlag, stderr); err != nil {
		return fail(err)
	}

	// Ctrl-C aborts the run instead of killing the process mid-write.
	go func() {
		<-ctx.Done()
		s.Abort()
	}()

	out := s.Generate(context.Background())
	printJSON(stdout, struct {
		Phase    studio.Phase               `json:"phase"`
		Attempts int                        `json:"attempts"`
		Result   *domain.GenerationResponse `json:"result,omitempty"`
	}{out.Phase, out.Attempts, out.Response})

	code := exitCode(out)
	if code == exitError {
		err := out.Err
		if err == nil {
			err = errors.New("generation failed")
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return code
}

func exitCode(out studio.Outcome) int {
	switch out.Phase {
	case studio.PhaseSucceeded:
		return exitOK
	case studio.PhaseAborted:
		return exitAborted
	default:
		return exitError
	}
}

func loadImage(ctx context.Context, pre *imaging.Preprocessor, s *studio.Studio, path string, stderr io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	file := imaging.File{Name: filepath.Base(path), ContentType: http.DetectContentType(data), Data: data}
	if !pre.Validate(file) {
		return fmt.Errorf("%s: %w", path, imaging.ErrUnsupportedType)
	}
	if !pre.IsWithinLimit(file) {
		fmt.Fprintf(stderr, "warning: %s is larger than %d MB\n", file.Name, pre.MaxFileSize>>20)
	}
	dataURL, err := pre.Normalize(ctx, file)
	if err != nil {
		return err
	}
	s.SetImage(dataURL)
	return nil
}

func exportHistory(entries []domain.HistoryEntry, path string) error {
	assets, err := history.Export(entries)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := zip.WriteAssets(f, assets); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// imgfetch downloads images over HTTP(S) into a local directory,
// validating content types, capping sizes, and skipping images whose
// content is already stored.
//
// Usage:
//
//	imgfetch [url ...] [--dir=<path>] [--timeout=<dur>] [--rps=<n>]
//
// With no URL arguments, imgfetch prompts for URLs one per line until a
// blank line.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/imgfetch"
	"github.com/adamwoolhether/imgfetch/fetch"
	"github.com/adamwoolhether/imgfetch/fetch/dedup"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	outputDir string
	timeout   time.Duration
	userAgent string
	rps       int
	burst     int
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "imgfetch [url ...]",
	Short: "Fetch images from the web with duplicate detection",
	Long: "imgfetch downloads images over HTTP(S) into a local directory,\n" +
		"validating content types, capping sizes, and skipping images whose\n" +
		"content is already stored.",
	Args: cobra.ArbitraryArgs,
	RunE: run,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&outputDir, "dir", "d", "fetched_images", "output directory for downloaded images")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", "", "override the default User-Agent header")
	rootCmd.Flags().IntVar(&rps, "rps", 0, "max requests per second, 0 disables throttling")
	rootCmd.Flags().IntVar(&burst, "burst", 1, "throttle burst capacity")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable info logging")
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	urls := admitted(args, out)
	if len(args) == 0 {
		var err error
		urls, err = collectURLs(cmd.InOrStdin(), out)
		if err != nil {
			return fmt.Errorf("reading URLs: %w", err)
		}
	}
	if len(urls) == 0 {
		return errors.New("no valid URLs provided")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	index, err := dedup.Seed(outputDir)
	if err != nil {
		return fmt.Errorf("indexing existing images: %w", err)
	}

	opts := []fetch.Option{
		fetch.WithTimeout(timeout),
		fetch.WithLogger(newLogger(verbose)),
	}
	if userAgent != "" {
		opts = append(opts, fetch.WithUserAgent(userAgent))
	}
	if rps > 0 {
		opts = append(opts, fetch.WithThrottle(rps, burst))
	}

	fetcher, err := imgfetch.New(opts...)
	if err != nil {
		return fmt.Errorf("building fetcher: %w", err)
	}

	summary := fetcher.Run(cmd.Context(), urls, outputDir, index)

	for _, r := range summary.Results {
		if r.OK() {
			fmt.Fprintf(out, "fetched %s -> %s\n", r.URL, filepath.Join(outputDir, r.Filename))
			continue
		}
		fmt.Fprintf(out, "failed  %s: %v\n", r.URL, r.Err)
	}
	fmt.Fprintf(out, "\n%d downloaded, %d failed\n", summary.Succeeded, summary.Failed)

	return nil
}

// collectURLs prompts for URLs one per line until a blank line,
// rejecting anything that is not an absolute http(s) URL.
func collectURLs(in io.Reader, out io.Writer) ([]string, error) {
	fmt.Fprintln(out, "Enter image URLs (one per line, blank line to finish):")

	var urls []string
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		if err := fetch.AdmitURL(line); err != nil {
			fmt.Fprintf(out, "rejected: %v\n", err)
			continue
		}

		urls = append(urls, line)
	}

	return urls, scanner.Err()
}

// admitted filters raw down to admissible URLs, reporting rejects.
func admitted(raw []string, out io.Writer) []string {
	var urls []string
	for _, u := range raw {
		if err := fetch.AdmitURL(u); err != nil {
			fmt.Fprintf(out, "rejected: %v\n", err)
			continue
		}
		urls = append(urls, u)
	}

	return urls
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

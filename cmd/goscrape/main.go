package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/derinwebs/goscrape/internal/config"
	"github.com/derinwebs/goscrape/internal/logger"
	"github.com/derinwebs/goscrape/internal/output"
	"github.com/derinwebs/goscrape/internal/scraper"
	"github.com/derinwebs/goscrape/internal/urlcheck"
	"github.com/derinwebs/goscrape/pkg/plugin"
)

var version = "1.0.0"

// flags holds all parsed CLI options.
type flags struct {
	// Targets
	urls    []string
	urlFile string

	// Scrape
	selectors   string
	images      bool
	proxy       string
	concurrency int
	rateLimit   time.Duration
	userAgent   string
	timeout     int

	// Output
	outputPath string
	format     string
	silent     bool
	verbose    bool
	noColor    bool

	// Config file
	configFile string

	// Meta
	showHelp    bool
	showVersion bool
}

var noColor bool

func main() {
	f := parseFlags()
	noColor = f.noColor

	if f.showVersion {
		fmt.Printf("goscrape v%s\n", version)
		os.Exit(0)
	}
	if f.showHelp {
		printUsage()
		os.Exit(0)
	}

	cfg := buildConfig(f)
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration: %v", err)
	}

	urls := collectURLs(f)
	if len(urls) == 0 {
		printUsage()
		fmt.Fprintf(os.Stderr, "\n  %s no valid URL supplied\n\n", clr("red", "ERROR:"))
		os.Exit(1)
	}

	selectors := cfg.SelectorConfig()
	if f.selectors != "" {
		parsed, err := parseSelectors(f.selectors)
		if err != nil {
			fatal("invalid selectors: %v", err)
		}
		selectors = parsed
	}

	log := logger.New(cfg.Logging.Level)
	s, err := scraper.New(cfg, log)
	if err != nil {
		fatal("initialization failed: %v", err)
	}

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Fprintf(os.Stderr, "\n\n%s Interrupt received, stopping...\n", clr("yellow", "!"))
		s.Stop()
	}()

	if !f.silent {
		printBanner()
		fmt.Printf("\n  %s %d URL(s)  %s %d  %s %s\n\n",
			clr("cyan", "Targets:"), len(urls),
			clr("dim", "Workers:"), cfg.Scraper.Concurrency,
			clr("dim", "Format:"), cfg.Output.Format,
		)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range s.Events() {
			if f.silent {
				continue
			}
			handleEvent(event, f.verbose)
		}
	}()

	reqs := make([]plugin.Request, len(urls))
	for i, u := range urls {
		reqs[i] = plugin.Request{
			URL:            u,
			Selectors:      selectors,
			DownloadImages: cfg.Images.Enabled,
		}
	}

	var results []*plugin.Result
	singleFailed := false

	if len(reqs) == 1 {
		result, err := s.ScrapeOne(reqs[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", clr("red", "✗"), err)
			singleFailed = true
		} else {
			results = []*plugin.Result{result}
		}
	} else {
		// Batch mode never fails as a whole: failed URLs are logged and
		// dropped from the result set.
		results = s.ScrapeMany(reqs)
	}

	if len(results) > 0 {
		if err := saveResults(cfg, results); err != nil {
			fatal("failed to save results: %v", err)
		}
		if !f.silent {
			fmt.Printf("\n  %s %d result(s) saved to %s\n\n",
				clr("green", "✓"), len(results), clr("cyan", cfg.Output.Path))
		}
	}

	s.Close()
	<-done

	if singleFailed {
		os.Exit(1)
	}
}

func handleEvent(event plugin.Event, verbose bool) {
	switch event.Type {
	case plugin.EventPageDone:
		if event.Result == nil {
			return
		}
		r := event.Result
		fmt.Printf("  %s %s %s\n",
			clr("green", "●"),
			r.URL,
			clr("dim", fmt.Sprintf("[p:%d a:%d img:%d]", len(r.Paragraphs), len(r.Links), len(r.Images))),
		)
		if verbose {
			fmt.Printf("      %s %s\n", clr("dim", "├─ title:"), r.Title)
			for _, link := range r.Links {
				fmt.Printf("      %s %s\n", clr("dim", "├─ link:"), link.Href)
			}
		}

	case plugin.EventPageError:
		fmt.Printf("  %s %s %s\n", clr("red", "✗"), event.URL, clr("dim", event.Message))

	case plugin.EventImageSaved:
		if verbose {
			fmt.Printf("      %s %s\n", clr("dim", "├─ image:"), event.Message)
		}

	case plugin.EventBatchFinished:
		if event.Stats == nil {
			return
		}
		st := event.Stats
		fmt.Println()
		fmt.Printf("  %s\n", strings.Repeat("─", 50))
		fmt.Printf("  %s Scrape complete\n", clr("green", "✓"))
		fmt.Printf("    Pages:  %s scraped, %s errors\n",
			clr("cyan", fmt.Sprintf("%d", st.PagesScraped)),
			clr("red", fmt.Sprintf("%d", st.PagesErrored)),
		)
		if st.ImagesSaved > 0 {
			fmt.Printf("    Images: %s saved\n", clr("yellow", fmt.Sprintf("%d", st.ImagesSaved)))
		}
		fmt.Printf("    Time:   %s\n", fmtDur(st.Elapsed))
	}
}

// collectURLs merges -u flags, bare arguments and the URL list file,
// keeping only URLs that pass validation.
func collectURLs(f *flags) []string {
	candidates := append([]string{}, f.urls...)

	if f.urlFile != "" {
		file, err := os.Open(f.urlFile)
		if err != nil {
			fatal("cannot read URL file: %v", err)
		}
		defer file.Close()

		sc := bufio.NewScanner(file)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			candidates = append(candidates, line)
		}
		if err := sc.Err(); err != nil {
			fatal("cannot read URL file: %v", err)
		}
	}

	var urls []string
	seen := make(map[string]bool)
	for _, u := range candidates {
		if !urlcheck.IsValid(u) {
			fmt.Fprintf(os.Stderr, "  %s skipping invalid URL: %s\n", clr("yellow", "!"), u)
			continue
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// parseSelectors turns "key=value,key=value" into a selector config.
// Every expression is checked with cascadia before any fetch happens.
func parseSelectors(s string) (*plugin.SelectorConfig, error) {
	sel := &plugin.SelectorConfig{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed selector pair %q (want key=value)", pair)
		}
		key, expr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		if _, err := cascadia.Parse(expr); err != nil {
			return nil, fmt.Errorf("selector %q for %s: %w", expr, key, err)
		}

		switch key {
		case "title":
			sel.Title = expr
		case "paragraphs":
			sel.Paragraphs = expr
		case "links":
			sel.Links = expr
		default:
			if sel.Extra == nil {
				sel.Extra = make(map[string]string)
			}
			sel.Extra[key] = expr
		}
	}
	return sel, nil
}

func saveResults(cfg *config.Config, results []*plugin.Result) error {
	writer, err := output.NewWriter(cfg.Output.Format, cfg.Output.Path)
	if err != nil {
		return err
	}
	return writer.Write(results)
}

// ---------- Flag parsing ----------

func parseFlags() *flags {
	f := &flags{
		concurrency: -1,
		timeout:     -1,
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() string {
			if i+1 < len(args) {
				i++
				return args[i]
			}
			fatal("flag %s requires an argument", arg)
			return ""
		}
		nextInt := func() int {
			v := next()
			var n int
			fmt.Sscanf(v, "%d", &n)
			return n
		}

		switch arg {
		// Targets
		case "-u", "--url":
			f.urls = append(f.urls, next())
		case "-f", "--file":
			f.urlFile = next()

		// Scrape
		case "-s", "--selectors":
			f.selectors = next()
		case "-i", "--images":
			f.images = true
		case "-px", "--proxy":
			f.proxy = next()
		case "-c", "--concurrency":
			f.concurrency = nextInt()
		case "-rl", "--rate-limit":
			v := next()
			d, err := time.ParseDuration(v)
			if err != nil {
				d = time.Second
			}
			f.rateLimit = d
		case "-ua", "--user-agent":
			f.userAgent = next()
		case "-t", "--timeout":
			f.timeout = nextInt()

		// Output
		case "-o", "--output":
			f.outputPath = next()
		case "-fmt", "--format":
			f.format = next()
		case "-si", "--silent":
			f.silent = true
		case "-v", "--verbose":
			f.verbose = true
		case "-nc", "--no-color":
			f.noColor = true

		// Config file
		case "--config":
			f.configFile = next()

		// Meta
		case "-h", "--help":
			f.showHelp = true
		case "-V", "--version":
			f.showVersion = true

		default:
			// Treat bare args as URLs
			if !strings.HasPrefix(arg, "-") {
				f.urls = append(f.urls, arg)
			} else {
				fmt.Fprintf(os.Stderr, "Unknown flag: %s (use --help for usage)\n", arg)
				os.Exit(1)
			}
		}
	}
	return f
}

func buildConfig(f *flags) *config.Config {
	cfg := config.Default()
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			fatal("config file: %v", err)
		}
		cfg = loaded
	}

	// Flags override file values.
	if f.concurrency > 0 {
		cfg.Scraper.Concurrency = f.concurrency
	}
	if f.rateLimit > 0 {
		cfg.Scraper.RateLimitMs = int(f.rateLimit / time.Millisecond)
	}
	if f.userAgent != "" {
		cfg.Scraper.UserAgent = f.userAgent
	}
	if f.timeout >= 0 {
		cfg.Scraper.TimeoutSec = f.timeout
	}
	if f.proxy != "" {
		cfg.Scraper.Proxy = f.proxy
	}
	if f.images {
		cfg.Images.Enabled = true
	}
	if f.format != "" {
		cfg.Output.Format = strings.ToLower(f.format)
		if f.outputPath == "" {
			cfg.Output.Path = "scraping_results." + cfg.Output.Format
		}
	}
	if f.outputPath != "" {
		cfg.Output.Path = f.outputPath
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}

	return cfg
}

// ---------- Help / banner ----------

func printUsage() {
	printBanner()
	fmt.Print(`
USAGE:
  goscrape [flags] <url> [url...]
  goscrape -u https://example.com -i
  goscrape -f urls.txt -fmt csv -o results.csv

TARGETS:
  -u,   --url <string>          target URL (repeatable; bare args work too)
  -f,   --file <string>         file with one URL per line (# comments allowed)

SCRAPE:
  -s,   --selectors <string>    custom CSS selectors as key=value,key=value
                                (keys: title, paragraphs, links; replaces ALL
                                defaults, unset keys extract nothing)
  -i,   --images                download images referenced by each page
  -px,  --proxy <string>        http/socks5 proxy for all requests
  -c,   --concurrency <int>     number of concurrent scrape workers (default 5)
  -rl,  --rate-limit <duration> delay before each request (default 1s)
  -ua,  --user-agent <string>   custom user-agent string
  -t,   --timeout <int>         per-request timeout in seconds (default 0 = none)

OUTPUT:
  -o,   --output <string>       results file path (default scraping_results.json)
  -fmt, --format <string>       output format: json, csv (default "json")
  -si,  --silent                suppress all output except errors
  -v,   --verbose               show extracted links and images per page
  -nc,  --no-color              disable colored output

CONFIG:
        --config <string>       path to YAML configuration file

META:
  -h,   --help                  show this help message
  -V,   --version               show version

Exit status is non-zero when no valid URL is supplied or a single-URL
scrape fails. Batch runs exit zero; failed URLs are logged and dropped.

`)
}

func printBanner() {
	logo := `
   ██████╗  ██████╗ ███████╗ ██████╗██████╗  █████╗ ██████╗ ███████╗
  ██╔════╝ ██╔═══██╗██╔════╝██╔════╝██╔══██╗██╔══██╗██╔══██╗██╔════╝
  ██║  ███╗██║   ██║███████╗██║     ██████╔╝███████║██████╔╝█████╗
  ██║   ██║██║   ██║╚════██║██║     ██╔══██╗██╔══██║██╔═══╝ ██╔══╝
  ╚██████╔╝╚██████╔╝███████║╚██████╗██║  ██║██║  ██║██║     ███████╗
   ╚═════╝  ╚═════╝ ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚══════╝`
	fmt.Println(clr("cyan", logo))
	fmt.Printf("  %s  %s\n", clr("dim", "Selector-driven web scraper with image download"), clr("dim", "v"+version))
	fmt.Printf("  %s\n", clr("dim", strings.Repeat("─", 58)))
}

// ---------- Utilities ----------

func fmtDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

func clr(color, text string) string {
	if noColor {
		return text
	}
	codes := map[string]string{
		"red":    "\033[31m",
		"green":  "\033[32m",
		"yellow": "\033[33m",
		"cyan":   "\033[36m",
		"dim":    "\033[2m",
		"bold":   "\033[1m",
		"reset":  "\033[0m",
	}
	c, ok := codes[color]
	if !ok {
		return text
	}
	return c + text + codes["reset"]
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\n  %s %s\n\n", clr("red", "ERROR:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/redflag/internal/api"
	"github.com/hazyhaar/redflag/internal/auth"
	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/email"
	"github.com/hazyhaar/redflag/internal/export"
	"github.com/hazyhaar/redflag/internal/insight"
	"github.com/hazyhaar/redflag/internal/llm"
	"github.com/hazyhaar/redflag/internal/mcp"
	"github.com/hazyhaar/redflag/internal/session"
	"github.com/hazyhaar/redflag/internal/steps"
	"github.com/hazyhaar/redflag/pkg/audit"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "seed":
		cmdSeed(os.Args[2:])
	case "delete-session":
		cmdDeleteSession(os.Args[2:])
	case "recompute-summary":
		cmdRecompute(os.Args[2:])
	case "export":
		cmdExport(os.Args[2:])
	case "hash-password":
		cmdHashPassword(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "version":
		fmt.Printf("redflag %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`redflag — relationship toxicity survey

Usage:
  redflag serve [--config config.toml] [--addr :8080]
  redflag seed [--config config.toml]
  redflag delete-session --user U --partner P [--config config.toml]
  redflag recompute-summary [--config config.toml]
  redflag export [--raw] [--out FILE] [--config config.toml]
  redflag hash-password
  redflag mcp [--config config.toml]
  redflag version
  redflag help

Commands:
  serve              Start the HTTP server
  seed               Fill empty catalog tables with the default questions
  delete-session     Delete one (user, partner) round and update the summary
  recompute-summary  Rebuild the population summary from session rows
  export             Write session records as JSON lines
  hash-password      Read a password on stdin and print its bcrypt hash
  mcp                Serve operator tools over MCP (stdio)
  version            Print version
  help               Show this help`)
}

func commonFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to config.toml")
	return fs, configPath
}

func mustOpen(ctx context.Context, configPath string) *app {
	a, err := openApp(ctx, configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return a
}

func cmdServe(args []string) {
	fs, configPath := commonFlags("serve")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustOpen(ctx, *configPath)
	defer a.Close()
	cfg := a.cfg
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	llmClient := llm.NewFromConfig(ctx, cfg.LLM)
	insights := insight.New(llmClient, cfg.LLM.InsightModel, cfg.LLM.InsightMaxTokens)
	mailer := email.NewMailer(cfg.SMTP)

	controller := session.NewController(steps.New(steps.Deps{
		Catalog:          a.catalog,
		Recorder:         a.survey,
		Insight:          insights,
		Mailer:           mailer,
		TopRedFlagCount:  cfg.Survey.TopRedFlagCount,
		MinRedFlagRating: cfg.Survey.MinRedFlagRating,
		Rand:             rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	})...)
	sessions := session.NewManager(minutes(cfg.Server.SessionTTLMin))
	go sessions.Run(ctx)

	tokens := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin, cfg.Auth.AdminPasswordHash)
	handler := api.New(sessions, controller, a.survey, export.NewExporter(a.store), tokens)
	handler.SetAuditLogger(a.audit)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("redflag %s listening on %s", version, cfg.Server.Addr)
	log.Printf("storage: %s (trace=%v)", cfg.Storage.Backend, cfg.Storage.Trace)
	if insights.Enabled() {
		log.Printf("insight: enabled (%s)", strings.Join(llmClient.Providers(), ", "))
	} else {
		log.Printf("insight: disabled (no LLM key)")
	}
	if mailer.Enabled() {
		log.Printf("email reports: enabled via %s:%d", cfg.SMTP.Server, cfg.SMTP.Port)
	} else {
		log.Printf("email reports: disabled")
	}
	if cfg.Auth.AdminPasswordHash == "" {
		log.Printf("admin API: disabled (no admin_password_hash)")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("redflag stopped")
}

func cmdSeed(args []string) {
	fs, configPath := commonFlags("seed")
	fs.Parse(args)
	ctx := context.Background()

	a := mustOpen(ctx, *configPath)
	defer a.Close()
	n, err := catalog.Seed(ctx, a.store)
	if err != nil {
		log.Fatalf("seeding catalog: %v", err)
	}
	fmt.Printf("seeded %d rows\n", n)
}

func cmdDeleteSession(args []string) {
	fs, configPath := commonFlags("delete-session")
	user := fs.String("user", "", "user id")
	partner := fs.String("partner", "", "partner name")
	fs.Parse(args)
	if *user == "" || *partner == "" {
		log.Fatalf("delete-session needs --user and --partner")
	}
	ctx := audit.WithActor(context.Background(), audit.TransportCLI, osUser())

	a := mustOpen(ctx, *configPath)
	defer a.Close()
	report, err := audit.Do(ctx, a.audit, "delete_session", map[string]string{"user_id": *user, "partner_name": *partner},
		func(ctx context.Context, _ map[string]string) (any, error) {
			return a.survey.DeleteSession(ctx, *user, *partner)
		})
	if err != nil {
		log.Fatalf("delete-session: %v", err)
	}
	printJSON(report)
}

func cmdRecompute(args []string) {
	fs, configPath := commonFlags("recompute-summary")
	fs.Parse(args)
	ctx := audit.WithActor(context.Background(), audit.TransportCLI, osUser())

	a := mustOpen(ctx, *configPath)
	defer a.Close()
	out, err := audit.Do(ctx, a.audit, "recompute_summary", struct{}{}, func(ctx context.Context, _ struct{}) (mcp.RecomputeResult, error) {
		sum, drifted, err := a.survey.RecomputeSummary(ctx)
		return mcp.RecomputeResult{Summary: sum, Drifted: drifted}, err
	})
	if err != nil {
		log.Fatalf("recompute-summary: %v", err)
	}
	if out.Drifted {
		log.Printf("stored summary had drifted; replaced")
	}
	printJSON(out.Summary)
}

func cmdExport(args []string) {
	fs, configPath := commonFlags("export")
	raw := fs.Bool("raw", false, "include names, emails and real ids")
	out := fs.String("out", "", "output file (default stdout)")
	fs.Parse(args)
	ctx := audit.WithActor(context.Background(), audit.TransportCLI, osUser())

	a := mustOpen(ctx, *configPath)
	defer a.Close()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("creating %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}
	opts := export.Options{Raw: *raw}
	n, err := audit.Do(ctx, a.audit, "export", opts, func(ctx context.Context, opts export.Options) (int, error) {
		return export.NewExporter(a.store).Export(ctx, w, opts)
	})
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	log.Printf("exported %d sessions", n)
}

func cmdHashPassword(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	fs.Parse(args)

	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("reading password: %v", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		log.Fatalf("empty password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hashing password: %v", err)
	}
	fmt.Println(hash)
}

func cmdMCP(args []string) {
	fs, configPath := commonFlags("mcp")
	fs.Parse(args)

	// stdout carries the MCP stream; lifecycle messages go to stderr.
	log.SetOutput(os.Stderr)
	a := mustOpen(context.Background(), *configPath)
	defer a.Close()

	srv := mcp.NewServer(mcp.NewTools(a.survey, a.catalog), a.audit)
	if err := server.ServeStdio(srv); err != nil {
		log.Printf("mcp: %v", err)
	}
}

func osUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"devroom/internal/channel"
	"devroom/internal/chat"
	"devroom/internal/config"
	"devroom/internal/logger"
	"devroom/internal/pprof"
	"devroom/internal/project"
	"devroom/internal/sandbox"
	"devroom/internal/session"
	"devroom/internal/store"
	"devroom/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	projectID := flag.String("project", "", "project id to join (required)")
	serverURL := flag.String("server", "", "websocket server url, overrides config")
	apiURL := flag.String("api", "", "REST API base url, overrides config")
	token := flag.String("token", "", "bearer token for the REST API")
	userID := flag.String("user-id", "", "authenticated user id")
	userEmail := flag.String("user-email", "", "authenticated user email")
	userName := flag.String("user-name", "", "authenticated user display name")
	sandboxDir := flag.String("sandbox", "", "sandbox directory, overrides config")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error, none")
	pprofAddr := flag.String("pprof", "", "serve profiling endpoints on this address")
	logout := flag.Bool("logout", false, "tear down all persisted sessions and exit")
	flag.Parse()

	cfg, err := config.Load(config.GetConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *apiURL != "" {
		cfg.APIBaseURL = *apiURL
	}
	if *sandboxDir != "" {
		cfg.SandboxDir = *sandboxDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var loggerInitialized bool
	defer func() {
		if !loggerInitialized {
			return
		}
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if initErr := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	loggerInitialized = true
	logger.Info("devroom starting")

	// A broken local database never blocks session entry; fall back to an
	// ephemeral store and carry on.
	st, err := store.Open(filepath.Join(cfg.StateDir, "devroom.db"))
	if err != nil {
		logger.Warn("failed to open session database, continuing without persistence: %v", err)
		st, err = store.Open(":memory:")
		if err != nil {
			return fmt.Errorf("failed to open fallback store: %w", err)
		}
	}
	defer st.Close()

	user := chat.UserRef{ID: *userID, Email: *userEmail, Name: *userName}
	sess := session.New(user, *token, st)

	if *logout {
		return sess.Teardown()
	}

	if *projectID == "" {
		return fmt.Errorf("missing required -project flag")
	}
	if user.ID == "" {
		return fmt.Errorf("missing required -user-id flag")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *pprofAddr != "" {
		profiler := pprof.NewServer(*pprofAddr)
		if err := profiler.Start(); err != nil {
			logger.Warn("profiling disabled: %v", err)
		} else {
			defer profiler.Stop()
		}
	}

	guard := sandbox.NewGuard(cfg.SandboxDir)
	if err := guard.Acquire(*projectID); err != nil {
		return err
	}
	defer guard.Release()

	mounter, err := sandbox.NewDirMounter(cfg.SandboxDir)
	if err != nil {
		return fmt.Errorf("failed to prepare sandbox at %s: %w", cfg.SandboxDir, err)
	}
	defer mounter.Close()

	ch := channel.NewClient(cfg.ServerURL)
	defer ch.Close()

	var upstream workspace.Upstream
	if cfg.APIBaseURL != "" {
		upstream = project.NewClient(cfg.APIBaseURL, sess.Token())
	}

	ws := workspace.New(workspace.Options{
		ProjectID:    *projectID,
		User:         sess.User(),
		Store:        st,
		Channel:      ch,
		Mounter:      mounter,
		Upstream:     upstream,
		MountTimeout: time.Duration(cfg.MountBudget) * time.Second,
	})
	defer ws.Close()

	mounter.OnFileChanged(ws.ApplySandboxEdit)
	mounter.OnServerReady(func(r sandbox.ServerReady) {
		logger.Info("sandbox server ready on port %d", r.Port)
		fmt.Printf("sandbox server listening at %s\n", r.URL)
	})

	if err := ch.Connect(ctx, *projectID); err != nil {
		return err
	}
	if err := ws.Start(ctx); err != nil {
		return err
	}
	if err := mounter.Watch(); err != nil {
		logger.Warn("sandbox watch unavailable: %v", err)
	}

	logger.Info("joined project %s as %s", *projectID, user.ID)
	printLog(ws.Events())

	go repl(ctx, cancel, ws)
	<-ctx.Done()

	logger.Info("devroom shutting down")
	return nil
}

// repl reads commands from stdin. Plain lines are chat messages; lines
// starting with "/" are workspace commands.
func repl(ctx context.Context, cancel context.CancelFunc, ws *workspace.Workspace) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "/") {
			if quit := command(ws, strings.TrimSpace(line)); quit {
				cancel()
				return
			}
			continue
		}

		result, err := ws.SendMessage(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			continue
		}
		if result != chat.SendIgnored {
			printLog(ws.Events())
		}
	}
	cancel()
}

func command(ws *workspace.Workspace, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/reset":
		if err := ws.ResetConversation(); err != nil {
			fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
		}
		fmt.Println("conversation cleared")

	case "/files":
		for path, frag := range ws.MountedTree() {
			fmt.Printf("  %s (%d bytes)\n", path, len(frag.Contents()))
		}
		for _, path := range ws.UnmountedPaths() {
			fmt.Printf("  %s (archived)\n", path)
		}

	case "/open":
		if len(fields) < 2 {
			fmt.Println("usage: /open <path>")
			break
		}
		frag, err := ws.OpenFile(fields[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
			break
		}
		fmt.Printf("--- %s ---\n%s\n", fields[1], frag.Contents())

	case "/close":
		if len(fields) < 2 {
			fmt.Println("usage: /close <path>")
			break
		}
		if err := ws.CloseFile(fields[1]); err != nil {
			fmt.Fprintf(os.Stderr, "close failed: %v\n", err)
		}

	case "/edit":
		// /edit <path> <contents...>
		if len(fields) < 3 {
			fmt.Println("usage: /edit <path> <contents>")
			break
		}
		contents := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, fields[0]), " "+fields[1]))
		if err := ws.EditFile(fields[1], contents); err != nil {
			fmt.Fprintf(os.Stderr, "edit failed: %v\n", err)
		}

	case "/status":
		if since, ok := ws.AIPendingSince(); ok {
			fmt.Printf("waiting on AI reply since %s\n", since.Format(time.RFC3339))
		} else {
			fmt.Println("no AI reply outstanding")
		}

	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

func printLog(events []chat.Event) {
	for _, event := range events {
		switch e := event.(type) {
		case chat.HumanMessage:
			name := e.Sender.Name
			if name == "" {
				name = e.Sender.Email
			}
			fmt.Printf("[%s] %s\n", name, e.Text)
		case chat.AIMessage:
			payload := chat.ParsePayload(e.RawPayload)
			fmt.Printf("[ai] %s\n", payload.Text)
		case chat.SystemNotice:
			fmt.Printf("* %s\n", e.Text)
		}
	}
}

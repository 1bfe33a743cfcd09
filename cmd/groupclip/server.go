package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/groupclip/groupclip/internal/api"
	"github.com/groupclip/groupclip/internal/clipboard"
	"github.com/groupclip/groupclip/internal/config"
	"github.com/groupclip/groupclip/internal/notify"
	"github.com/groupclip/groupclip/internal/pipeline"
	"github.com/groupclip/groupclip/internal/realtime"
	"github.com/groupclip/groupclip/internal/remote"
	"github.com/groupclip/groupclip/internal/share"
	"github.com/groupclip/groupclip/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the groupclip daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running groupclip daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and group status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "groupclip.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// storeSink routes component diagnostics into the bounded error log.
type storeSink struct {
	store *storage.Store
}

func (s storeSink) LogError(source, message, details string) {
	if err := s.store.AppendErrorLog(storage.ErrorLog{
		Source:  source,
		Message: message,
		Details: details,
	}); err != nil {
		slog.Error("recording error log", "source", source, "error", err)
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "groupclip version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	apiToken, err := config.EnsureAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to start twice. The health endpoint is authoritative; the PID
	// file only names the culprit.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("groupclip is already running (PID %d)", pid)
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		printWarning("groupclip is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	sink := storeSink{store: store}
	endpoint := remote.Endpoint{BaseURL: cfg.Remote.BaseURL, APIKey: cfg.Remote.APIKey}
	manager := remote.NewManager(endpoint, sink)

	dispatcher := share.NewDispatcher(share.DefaultStrategies(manager, endpoint), sink, manager.EnsureReady)
	dispatcher.Strict = cfg.Share.Strict

	hub := api.NewHub()
	pipe := pipeline.New(store, dispatcher, notify.NewWebhookNotifier(), hub)

	// Inbound shares: mirror to attached UI clients and keep them in
	// history so they survive the client closing.
	subscriber := realtime.NewSubscriber(endpoint,
		func() string { return store.GetSettingDefault(storage.KeyUsername, "") },
		func(sh realtime.Share) {
			slog.Info("share received from group", "sender", sh.Sender)
			hub.Broadcast("NEW_SHARE", sh)
			if err := store.AppendHistory(storage.HistoryEntry{
				Content:   sh.Content,
				Kind:      "received",
				CreatedAt: sh.Timestamp,
			}); err != nil {
				slog.Error("recording received share", "error", err)
			}
		},
		sink,
	)
	defer subscriber.Close()
	if groupID := store.GetSettingDefault(storage.KeyGroupID, ""); groupID != "" {
		if err := subscriber.Subscribe(ctx, groupID); err != nil {
			slog.Warn("initial group subscription failed", "group", groupID, "error", err)
		}
	}

	poller := clipboard.NewPoller(cfg.Clipboard.Interval(), func(text string) {
		pipe.HandleClipboardText(ctx, text)
	})
	if store.GetSettingDefault(storage.KeyClipboardEnabled, "true") == "false" {
		poller.SetEnabled(false)
	}
	go poller.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Sharer:     pipe,
		Conn:       manager,
		Poller:     poller,
		Subscriber: subscriber,
		Hub:        hub,
		Token:      apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio so local agents can share and inspect activity.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  store,
		Sharer: pipe,
		Conn:   manager,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "groupclip listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("groupclip is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop groupclip (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to groupclip (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	resp, err := httpClient.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Daemon", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Daemon", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Daemon", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Remote store", "%s", cfg.Remote.BaseURL)

	if running {
		if client, err := newAPIClient(); err == nil {
			if settingsResp, err := client.get(ctx, "/settings"); err == nil {
				var settings struct {
					Username         string `json:"username"`
					GroupID          string `json:"groupId"`
					ClipboardEnabled bool   `json:"clipboardEnabled"`
				}
				if json.NewDecoder(settingsResp.Body).Decode(&settings) == nil {
					printStatus("Username", "%s", orUnset(settings.Username))
					printStatus("Group", "%s", orUnset(settings.GroupID))
					printStatus("Clipboard watch", "%s", onOff(settings.ClipboardEnabled))
				}
				settingsResp.Body.Close()
			}
			if diagResp, err := client.get(ctx, "/diagnostics/connection"); err == nil {
				var diag struct {
					Success bool   `json:"success"`
					Stage   string `json:"stage"`
					Error   string `json:"error"`
				}
				if json.NewDecoder(diagResp.Body).Decode(&diag) == nil {
					if diag.Success {
						printStatus("Connection", "ok")
					} else {
						printStatus("Connection", "failed at %s: %s", diag.Stage, diag.Error)
					}
				}
				diagResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func orUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

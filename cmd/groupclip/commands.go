package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/groupclip/groupclip/internal/config"
)

// --- share ---

var shareCmd = &cobra.Command{
	Use:   "share <text>",
	Short: "Share text with the group",
	Long: `Share text with the group.

Examples:
  groupclip share "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
  groupclip share "check this out" --title "Launch notes" --url https://example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		title, _ := cmd.Flags().GetString("title")
		url, _ := cmd.Flags().GetString("url")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"content": content}
		if title != "" {
			req["title"] = title
		}
		if url != "" {
			req["url"] = url
		}

		resp, err := client.post(cmd.Context(), "/share", req)
		if err != nil {
			return err
		}

		var result struct {
			Success bool   `json:"success"`
			Warning string `json:"warning"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("share failed: %s", result.Error)
		}
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		printSuccess("Shared with group")
		return nil
	},
}

func init() {
	shareCmd.Flags().String("title", "", "title for the shared content")
	shareCmd.Flags().String("url", "", "source URL for the shared content")
}

// --- activities ---

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "List recently detected contract addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/activities?limit=%d", limit))
		if err != nil {
			return err
		}

		var activities []struct {
			Address   string `json:"address"`
			Chain     string `json:"chain"`
			SharedBy  string `json:"sharedBy"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := decodeJSON(resp, &activities); err != nil {
			return err
		}

		if len(activities) == 0 {
			fmt.Println("No activity yet.")
			return nil
		}

		for _, a := range activities {
			fmt.Printf("%s  %-9s  %s  %s\n",
				formatTime(a.Timestamp),
				colorize(colorCyan, a.Chain),
				a.Address,
				colorize(colorBold, a.SharedBy),
			)
		}
		return nil
	},
}

func init() {
	activitiesCmd.Flags().Int("limit", 10, "maximum number of entries")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently shared clipboard items",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			Content   string `json:"content"`
			Kind      string `json:"kind"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}

		for _, e := range entries {
			content := e.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			fmt.Printf("%s  %-9s  %s\n", formatTime(e.Timestamp), colorize(colorCyan, e.Kind), content)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries")
}

// --- errors ---

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List recent daemon error log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/errors")
		if err != nil {
			return err
		}

		var entries []struct {
			Source    string `json:"source"`
			Message   string `json:"message"`
			Details   string `json:"details"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No errors logged.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %s  %s\n", formatTime(e.Timestamp), colorize(colorBold, e.Source), e.Message)
			if e.Details != "" {
				fmt.Printf("    %s\n", e.Details)
			}
		}
		return nil
	},
}

// --- clipboard ---

var clipboardCmd = &cobra.Command{
	Use:   "clipboard <on|off>",
	Short: "Enable or disable clipboard watching",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("argument must be \"on\" or \"off\", got %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/clipboard/toggle", map[string]any{"enabled": enabled})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Clipboard watching turned %s", args[0])
		return nil
	},
}

// --- webhook ---

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage Discord notification webhooks",
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a Discord webhook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/webhooks", map[string]any{
			"name": args[0],
			"url":  args[1],
		})
		if err != nil {
			return err
		}

		var hook struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &hook); err != nil {
			return err
		}

		printSuccess("Added webhook %s (%s)", args[0], hook.ID[:8])
		return nil
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered webhooks",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/webhooks")
		if err != nil {
			return err
		}

		var hooks []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			URL  string `json:"url"`
		}
		if err := decodeJSON(resp, &hooks); err != nil {
			return err
		}

		if len(hooks) == 0 {
			fmt.Println("No webhooks registered.")
			return nil
		}

		for _, h := range hooks {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, h.ID[:8]), colorize(colorBold, h.Name), h.URL)
		}
		return nil
	},
}

var webhookRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a webhook by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/webhooks/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed webhook %s", args[0])
		return nil
	},
}

func init() {
	webhookCmd.AddCommand(webhookAddCmd)
	webhookCmd.AddCommand(webhookListCmd)
	webhookCmd.AddCommand(webhookRemoveCmd)
}

// --- group ---

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage group membership and identity",
}

var groupJoinCmd = &cobra.Command{
	Use:   "join <group-id>",
	Short: "Join a group (replaces the current subscription)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"groupId": args[0]}
		if username != "" {
			req["username"] = username
		}

		resp, err := client.patch(cmd.Context(), "/settings", req)
		if err != nil {
			return err
		}

		var result struct {
			Success bool   `json:"success"`
			Warning string `json:"warning"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if result.Warning != "" {
			printWarning("%s", result.Warning)
		}
		printSuccess("Joined group %s", args[0])
		return nil
	},
}

var groupNameCmd = &cobra.Command{
	Use:   "name <username>",
	Short: "Set the name other group members see",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/settings", map[string]any{"username": args[0]})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Username set to %s", args[0])
		return nil
	},
}

func init() {
	groupJoinCmd.Flags().String("username", "", "also set the username in the same call")
	groupCmd.AddCommand(groupJoinCmd)
	groupCmd.AddCommand(groupNameCmd)
}

// --- diag ---

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Run a staged connectivity check against the remote store",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/diagnostics/connection")
		if err != nil {
			return err
		}

		var result struct {
			Success bool   `json:"success"`
			Stage   string `json:"stage"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Success {
			printSuccess("Connection ok (stages: client, ping, query)")
			return nil
		}
		printError("Connection failed at stage %q: %s", result.Stage, result.Error)
		return fmt.Errorf("connection test failed")
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func formatTime(epochMillis int64) string {
	if epochMillis == 0 {
		return "                "
	}
	return time.UnixMilli(epochMillis).Format("2006-01-02 15:04")
}

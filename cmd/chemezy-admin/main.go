// Package main is the entry point for the chemezy admin CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/awebisam/chemezy/internal/auth"
	"github.com/awebisam/chemezy/internal/awards"
	"github.com/awebisam/chemezy/internal/config"
	"github.com/awebisam/chemezy/internal/storage"
	_ "github.com/awebisam/chemezy/internal/storage/memory"
	_ "github.com/awebisam/chemezy/internal/storage/mysql"
	_ "github.com/awebisam/chemezy/internal/storage/postgres"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	serverURL string
	token     string
	output    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chemezy-admin",
		Short: "Admin CLI for the chemezy reaction service",
		Long:  `A command-line tool for managing award templates, granted awards, and discoveries in chemezy.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Chemezy server URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("CHEMEZY_ADMIN_TOKEN"), "Admin JWT (defaults to CHEMEZY_ADMIN_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")

	// Token commands
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue access tokens",
	}

	tokenIssueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed JWT for a user",
		Long: `Issue a signed JWT directly, without going through the server.

The signing secret must match the server's auth.secret so the server
accepts the token. Pass it via --secret or CHEMEZY_AUTH_SECRET.`,
		RunE: issueToken,
	}
	tokenIssueCmd.Flags().Int64("user-id", 0, "User ID the token identifies (required)")
	tokenIssueCmd.Flags().String("username", "", "Username claim")
	tokenIssueCmd.Flags().Bool("admin", false, "Grant the admin claim")
	tokenIssueCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	tokenIssueCmd.Flags().String("secret", os.Getenv("CHEMEZY_AUTH_SECRET"), "HMAC signing secret")
	tokenIssueCmd.Flags().String("issuer", "", "Issuer claim")
	_ = tokenIssueCmd.MarkFlagRequired("user-id")

	tokenCmd.AddCommand(tokenIssueCmd)

	// Template commands
	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Manage award templates",
	}

	templateListCmd := &cobra.Command{
		Use:   "list",
		Short: "List award templates",
		RunE:  listTemplates,
	}
	templateListCmd.Flags().Bool("active", false, "Only show active templates")

	templateDeactivateCmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an award template",
		Args:  cobra.ExactArgs(1),
		RunE:  deactivateTemplate,
	}

	templateCmd.AddCommand(templateListCmd, templateDeactivateCmd)

	// Award commands
	awardCmd := &cobra.Command{
		Use:   "award",
		Short: "Manage granted awards",
	}

	awardGrantCmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant an award to a user",
		RunE:  grantAward,
	}
	awardGrantCmd.Flags().Int64("user-id", 0, "User to grant to (required)")
	awardGrantCmd.Flags().Int64("template-id", 0, "Award template (required)")
	awardGrantCmd.Flags().Int("tier", 1, "Tier to grant")
	_ = awardGrantCmd.MarkFlagRequired("user-id")
	_ = awardGrantCmd.MarkFlagRequired("template-id")

	awardRevokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a granted award",
		RunE:  revokeAward,
	}
	awardRevokeCmd.Flags().Int64("user-id", 0, "User to revoke from (required)")
	awardRevokeCmd.Flags().Int64("template-id", 0, "Award template (required)")
	awardRevokeCmd.Flags().String("reason", "", "Audit reason")
	_ = awardRevokeCmd.MarkFlagRequired("user-id")
	_ = awardRevokeCmd.MarkFlagRequired("template-id")

	awardTierCmd := &cobra.Command{
		Use:   "tier",
		Short: "Set the tier of a granted award",
		RunE:  setAwardTier,
	}
	awardTierCmd.Flags().Int64("user-id", 0, "User holding the award (required)")
	awardTierCmd.Flags().Int64("template-id", 0, "Award template (required)")
	awardTierCmd.Flags().Int("tier", 0, "New tier (required)")
	_ = awardTierCmd.MarkFlagRequired("user-id")
	_ = awardTierCmd.MarkFlagRequired("template-id")
	_ = awardTierCmd.MarkFlagRequired("tier")

	awardCmd.AddCommand(awardGrantCmd, awardRevokeCmd, awardTierCmd)

	// Discovery commands
	discoveryCmd := &cobra.Command{
		Use:   "discovery",
		Short: "Manage world-first discoveries",
	}

	discoveryRevokeCmd := &cobra.Command{
		Use:   "revoke <effect>",
		Short: "Revoke a world-first discovery claim",
		Args:  cobra.ExactArgs(1),
		RunE:  revokeDiscovery,
	}
	discoveryRevokeCmd.Flags().String("reason", "", "Audit reason")

	discoveryCmd.AddCommand(discoveryRevokeCmd)

	// Leaderboard command
	leaderboardCmd := &cobra.Command{
		Use:   "leaderboard <category>",
		Short: "Show a leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE:  showLeaderboard,
	}
	leaderboardCmd.Flags().Int("limit", 25, "Number of entries")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chemezy-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}

	// Seed command - apply award templates directly to the database
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply an award template seed file directly to the database",
		Long: `Apply an award template seed file by connecting directly to the database.

This command bypasses the API. Use it to bootstrap a fresh deployment
before the server has been started.

Examples:
  # Seed against PostgreSQL
  chemezy-admin seed --file seeds/awards.yaml --storage-type postgresql \
    --pg-host localhost --pg-port 5432 --pg-database chemezy \
    --pg-user postgres --pg-password secret

  # Seed against MySQL
  chemezy-admin seed --file seeds/awards.yaml --storage-type mysql \
    --mysql-host localhost --mysql-port 3306 --mysql-database chemezy \
    --mysql-user root --mysql-password secret

Environment variables can also be used:
  CHEMEZY_PG_HOST, CHEMEZY_PG_PORT, etc.
  CHEMEZY_MYSQL_HOST, CHEMEZY_MYSQL_PORT, etc.
`,
		RunE: applySeed,
	}
	seedCmd.Flags().String("file", "", "Seed file path (required)")
	seedCmd.Flags().String("storage-type", "postgresql", "Storage type: postgresql, mysql, memory")
	// PostgreSQL flags
	seedCmd.Flags().String("pg-host", getEnvOrDefault("CHEMEZY_PG_HOST", "localhost"), "PostgreSQL host")
	seedCmd.Flags().Int("pg-port", getEnvOrDefaultInt("CHEMEZY_PG_PORT", 5432), "PostgreSQL port")
	seedCmd.Flags().String("pg-database", getEnvOrDefault("CHEMEZY_PG_DATABASE", "chemezy"), "PostgreSQL database")
	seedCmd.Flags().String("pg-user", getEnvOrDefault("CHEMEZY_PG_USER", ""), "PostgreSQL user")
	seedCmd.Flags().String("pg-password", getEnvOrDefault("CHEMEZY_PG_PASSWORD", ""), "PostgreSQL password")
	seedCmd.Flags().String("pg-sslmode", getEnvOrDefault("CHEMEZY_PG_SSLMODE", "disable"), "PostgreSQL SSL mode")
	// MySQL flags
	seedCmd.Flags().String("mysql-host", getEnvOrDefault("CHEMEZY_MYSQL_HOST", "localhost"), "MySQL host")
	seedCmd.Flags().Int("mysql-port", getEnvOrDefaultInt("CHEMEZY_MYSQL_PORT", 3306), "MySQL port")
	seedCmd.Flags().String("mysql-database", getEnvOrDefault("CHEMEZY_MYSQL_DATABASE", "chemezy"), "MySQL database")
	seedCmd.Flags().String("mysql-user", getEnvOrDefault("CHEMEZY_MYSQL_USER", ""), "MySQL user")
	seedCmd.Flags().String("mysql-password", getEnvOrDefault("CHEMEZY_MYSQL_PASSWORD", ""), "MySQL password")
	seedCmd.Flags().String("mysql-tls", getEnvOrDefault("CHEMEZY_MYSQL_TLS", "false"), "MySQL TLS mode")
	_ = seedCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(tokenCmd, templateCmd, awardCmd, discoveryCmd, leaderboardCmd, seedCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// HTTP client helper
func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	url := strings.TrimSuffix(serverURL, "/") + path

	var req *http.Request
	var err error

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		req, err = http.NewRequest(method, url, strings.NewReader(string(jsonBody)))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && resp.StatusCode != http.StatusNoContent {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := "unknown error"
		if m, ok := result["message"].(string); ok {
			msg = m
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
	}

	return result, nil
}

// Token commands
func issueToken(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetInt64("user-id")
	username, _ := cmd.Flags().GetString("username")
	admin, _ := cmd.Flags().GetBool("admin")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	secret, _ := cmd.Flags().GetString("secret")
	issuer, _ := cmd.Flags().GetString("issuer")

	if secret == "" {
		return fmt.Errorf("a signing secret is required (--secret or CHEMEZY_AUTH_SECRET)")
	}

	verifier, err := auth.NewVerifier(config.AuthConfig{
		Enabled: true,
		Secret:  secret,
		Issuer:  issuer,
	})
	if err != nil {
		return err
	}

	signed, err := verifier.IssueToken(&auth.Identity{
		UserID:   userID,
		Username: username,
		Admin:    admin,
	}, ttl)
	if err != nil {
		return err
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"token":      signed,
			"user_id":    userID,
			"admin":      admin,
			"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
		})
	}

	fmt.Println(signed)
	return nil
}

// Template commands
func listTemplates(cmd *cobra.Command, args []string) error {
	path := "/admin/templates"
	if active, _ := cmd.Flags().GetBool("active"); active {
		path += "?active=true"
	}

	result, err := doRequest("GET", path, nil)
	if err != nil {
		return err
	}

	templates, ok := result["templates"].([]interface{})
	if !ok {
		return fmt.Errorf("unexpected response format")
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(templates)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tTIERS\tPOINTS\tACTIVE\tVERSION")
	for _, t := range templates {
		tmpl := t.(map[string]interface{})
		tiers, _ := tmpl["tiers"].([]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%d\t%v\t%v\t%v\n",
			int64(tmpl["id"].(float64)),
			tmpl["name"],
			tmpl["category"],
			len(tiers),
			tmpl["points"],
			tmpl["active"],
			tmpl["version"],
		)
	}
	return w.Flush()
}

func deactivateTemplate(cmd *cobra.Command, args []string) error {
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		return fmt.Errorf("invalid template id: %s", args[0])
	}

	if _, err := doRequest("DELETE", "/admin/templates/"+args[0], nil); err != nil {
		return err
	}

	fmt.Printf("Template %s deactivated\n", args[0])
	return nil
}

// Award commands
func grantAward(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetInt64("user-id")
	templateID, _ := cmd.Flags().GetInt64("template-id")
	tier, _ := cmd.Flags().GetInt("tier")

	result, err := doRequest("POST", "/admin/awards/grant", map[string]interface{}{
		"user_id":     userID,
		"template_id": templateID,
		"tier":        tier,
	})
	if err != nil {
		return err
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Award granted!\n")
	fmt.Printf("User:     %v\n", int64(result["user_id"].(float64)))
	fmt.Printf("Template: %v\n", int64(result["template_id"].(float64)))
	fmt.Printf("Tier:     %v\n", int(result["tier"].(float64)))
	return nil
}

func revokeAward(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetInt64("user-id")
	templateID, _ := cmd.Flags().GetInt64("template-id")
	reason, _ := cmd.Flags().GetString("reason")

	_, err := doRequest("POST", "/admin/awards/revoke", map[string]interface{}{
		"user_id":     userID,
		"template_id": templateID,
		"reason":      reason,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Award revoked from user %d\n", userID)
	return nil
}

func setAwardTier(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetInt64("user-id")
	templateID, _ := cmd.Flags().GetInt64("template-id")
	tier, _ := cmd.Flags().GetInt("tier")

	_, err := doRequest("POST", "/admin/awards/tier", map[string]interface{}{
		"user_id":     userID,
		"template_id": templateID,
		"tier":        tier,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Award tier set to %d for user %d\n", tier, userID)
	return nil
}

// Discovery commands
func revokeDiscovery(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")

	_, err := doRequest("POST", "/admin/discoveries/revoke", map[string]interface{}{
		"effect": args[0],
		"reason": reason,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Discovery %q revoked\n", args[0])
	return nil
}

// Leaderboard command
func showLeaderboard(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	result, err := doRequest("GET", fmt.Sprintf("/leaderboard/%s?limit=%d", args[0], limit), nil)
	if err != nil {
		return err
	}

	entries, ok := result["entries"].([]interface{})
	if !ok {
		return fmt.Errorf("unexpected response format")
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tSCORE\tAWARDS")
	for _, e := range entries {
		entry := e.(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n",
			int(entry["rank"].(float64)),
			int64(entry["user_id"].(float64)),
			int64(entry["score"].(float64)),
			int(entry["awards"].(float64)),
		)
	}
	return w.Flush()
}

// Seed command
func applySeed(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	storageType, _ := cmd.Flags().GetString("storage-type")

	store, err := createSeedStorage(cmd, storageType)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	seeder := awards.NewSeeder(store, file, logger)
	if err := seeder.Apply(ctx); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	fmt.Println("Seed applied successfully")
	return nil
}

func createSeedStorage(cmd *cobra.Command, storageType string) (storage.Storage, error) {
	var settings storage.Settings

	switch storageType {
	case "postgresql", "postgres":
		settings.Host, _ = cmd.Flags().GetString("pg-host")
		settings.Port, _ = cmd.Flags().GetInt("pg-port")
		settings.Database, _ = cmd.Flags().GetString("pg-database")
		settings.Username, _ = cmd.Flags().GetString("pg-user")
		settings.Password, _ = cmd.Flags().GetString("pg-password")
		settings.SSLMode, _ = cmd.Flags().GetString("pg-sslmode")

	case "mysql":
		settings.Host, _ = cmd.Flags().GetString("mysql-host")
		settings.Port, _ = cmd.Flags().GetInt("mysql-port")
		settings.Database, _ = cmd.Flags().GetString("mysql-database")
		settings.Username, _ = cmd.Flags().GetString("mysql-user")
		settings.Password, _ = cmd.Flags().GetString("mysql-password")
		settings.TLS, _ = cmd.Flags().GetString("mysql-tls")
	}

	return storage.Open(storageType, settings)
}

// Helpers
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

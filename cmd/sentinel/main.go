package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sentinel-reserve/sentinel/internal/proofpack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel treasury crisis-management CLI",
	Long: `sentinel is the command-line interface for the sentinel server.

It shows the current system state, triggers and resets crisis scenarios,
inspects the audit ledger, and seals or verifies proof packs.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.sentinel")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.sentinel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "sentinel server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "operator bearer token")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── HTTP helpers ─────────────────────────────────────────────────────────────

func apiGet(path string, out any) error {
	return apiDo(http.MethodGet, path, nil, out)
}

func apiPost(path string, body, out any) error {
	return apiDo(http.MethodPost, path, body, out)
}

func apiDo(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverURL+"/api/v1"+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// ── status ───────────────────────────────────────────────────────────────────

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current system state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st struct {
			Mode         string    `json:"mode"`
			NAV          int64     `json:"nav"`
			LiquidityPct int       `json:"liquidity_pct"`
			Timestamp    time.Time `json:"timestamp"`
			Version      int64     `json:"version"`
		}
		if err := apiGet("/state", &st); err != nil {
			return err
		}
		if statusFormat == "json" {
			return printJSON(st)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Mode:\t%s\n", st.Mode)
		fmt.Fprintf(w, "NAV:\t%d\n", st.NAV)
		fmt.Fprintf(w, "Liquidity:\t%d%%\n", st.LiquidityPct)
		fmt.Fprintf(w, "Version:\t%d\n", st.Version)
		fmt.Fprintf(w, "As of:\t%s\n", st.Timestamp.Local().Format(time.RFC3339))
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format: text or json")
}

// ── scenarios ────────────────────────────────────────────────────────────────

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the crisis scenario catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Scenarios []struct {
				ID              string  `json:"id"`
				Name            string  `json:"name"`
				Severity        string  `json:"severity"`
				NAVImpactFactor float64 `json:"nav_impact_factor"`
				LiquidityTarget int     `json:"liquidity_target"`
			} `json:"scenarios"`
		}
		if err := apiGet("/scenarios", &out); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSEVERITY\tNAV FACTOR\tLIQUIDITY TARGET")
		for _, s := range out.Scenarios {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d%%\n",
				s.ID, s.Name, s.Severity, s.NAVImpactFactor, s.LiquidityTarget)
		}
		return w.Flush()
	},
}

// ── trigger / reset ──────────────────────────────────────────────────────────

var triggerCmd = &cobra.Command{
	Use:   "trigger <scenario-id>",
	Short: "Trigger a crisis scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st json.RawMessage
		req := map[string]string{"scenario_id": args[0]}
		if err := apiPost("/crisis/trigger", req, &st); err != nil {
			return err
		}
		fmt.Printf("Triggered scenario %q\n", args[0])
		return printJSON(st)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the system to the normal-mode baseline",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st json.RawMessage
		if err := apiPost("/crisis/reset", nil, &st); err != nil {
			return err
		}
		fmt.Println("System reset to baseline")
		return printJSON(st)
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the most recent audit ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Entries []struct {
				Seq          int64     `json:"seq"`
				Timestamp    time.Time `json:"timestamp"`
				Actor        string    `json:"actor"`
				Action       string    `json:"action"`
				PrevState    string    `json:"prev_state"`
				NextState    string    `json:"next_state"`
				NAV          int64     `json:"nav"`
				LiquidityPct int       `json:"liquidity_pct"`
			} `json:"entries"`
		}
		if err := apiGet(fmt.Sprintf("/ledger/audit?limit=%d", auditLimit), &out); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tACTOR\tACTION\tTRANSITION\tNAV\tLIQUIDITY")
		for _, e := range out.Entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s→%s\t%d\t%d%%\n",
				e.Seq, e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Actor, e.Action, e.PrevState, e.NextState, e.NAV, e.LiquidityPct)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum number of entries to show")
}

// ── seal ─────────────────────────────────────────────────────────────────────

var sealOutput string

var sealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Seal a new proof pack and optionally download its bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			ID          string `json:"id"`
			ContentHash string `json:"content_hash"`
			AuthTag     string `json:"auth_tag"`
			BundleURL   string `json:"bundle_url"`
		}
		if err := apiPost("/proofpacks", nil, &out); err != nil {
			return err
		}
		fmt.Printf("Sealed proof pack %s\n", out.ID)
		fmt.Printf("  content hash: %s\n", out.ContentHash)
		fmt.Printf("  auth tag:     %s\n", out.AuthTag)

		if sealOutput == "" {
			return nil
		}
		resp, err := http.Get(serverURL + out.BundleURL)
		if err != nil {
			return fmt.Errorf("download bundle: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download bundle: server returned %d", resp.StatusCode)
		}
		f, err := os.Create(sealOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(f, resp.Body); err != nil {
			return err
		}
		fmt.Printf("  bundle saved: %s\n", sealOutput)
		return nil
	},
}

func init() {
	sealCmd.Flags().StringVarP(&sealOutput, "output", "o", "", "Write the bundle archive to this file")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifySecret string

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle.tar.gz>",
	Short: "Verify a proof-pack bundle offline",
	Long: `Verify re-derives a bundle's content hash and authentication tag and
compares them against the sealed values. It needs no server connection;
the shared secret must be supplied out of band.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifySecret == "" {
			verifySecret = os.Getenv("SENTINEL_PROOFPACK_SECRET")
		}
		if verifySecret == "" {
			return fmt.Errorf("no secret: pass --secret or set SENTINEL_PROOFPACK_SECRET")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		pack, err := proofpack.ReadBundle(f)
		if err != nil {
			return fmt.Errorf("read bundle: %w", err)
		}

		verdict := proofpack.VerifyPack(pack, []byte(verifySecret))
		fmt.Printf("Pack:    %s\n", pack.ID)
		fmt.Printf("Sealed:  %s\n", pack.GeneratedAt.UTC().Format(time.RFC3339))
		fmt.Printf("Verdict: %s\n", verdict)
		if verdict != proofpack.VerdictValid {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifySecret, "secret", "", "Shared sealing secret (or SENTINEL_PROOFPACK_SECRET)")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sentinel CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentinel %s\n", version)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

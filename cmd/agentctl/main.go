package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/agent"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/auth"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/config"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/delivery"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
	"github.com/CHZarles/WorkflowMonitor-sub000/internal/status"
)

const (
	requestTimeout = 30 * time.Second
	tokenTTL       = time.Minute
)

type globalFlags struct {
	configPath string
	address    string
	jsonOut    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &globalFlags{}
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Control and inspect a running activity agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "agent config file")
	root.PersistentFlags().StringVar(&f.address, "address", "", "control address (overrides config)")
	root.PersistentFlags().BoolVar(&f.jsonOut, "json", false, "output JSON")

	root.AddCommand(commandCmd(f, "force", "Run one attribution cycle now, bypassing change suppression", "/v1/force"))
	root.AddCommand(commandCmd(f, "repair", "Reset the error streak, restart the liveness keeper and force a cycle", "/v1/repair"))
	root.AddCommand(statusCmd(f))
	root.AddCommand(healthCmd(f))
	return root
}

func loadConfig(f *globalFlags) (config.Config, error) {
	v, err := config.New(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, err
	}
	if f.address != "" {
		cfg.ControlAddress = f.address
	}
	return cfg, nil
}

func commandCmd(f *globalFlags, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			var res agent.Result
			if err := call(cmd.Context(), cfg, http.MethodPost, path, auth.ScopeControl, &res); err != nil {
				return err
			}
			if f.jsonOut {
				return printJSON(res)
			}
			if !res.OK {
				return fmt.Errorf("%s failed: %s", name, res.Error)
			}
			fmt.Printf("%s: ok\n", name)
			return nil
		},
	}
}

func statusCmd(f *globalFlags) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show delivery diagnostics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			var st agent.Status
			if offline {
				if st.Delivery, err = loadPersisted(cmd.Context(), cfg); err != nil {
					return err
				}
			} else if err := call(cmd.Context(), cfg, http.MethodGet, "/v1/status", auth.ScopeRead, &st); err != nil {
				return err
			}
			if f.jsonOut {
				return printJSON(st)
			}
			renderStatus(os.Stdout, st, offline)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "read the persisted status database instead of asking the agent")
	return cmd
}

func healthCmd(f *globalFlags) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the ingestion endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if direct {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.DeliveryTimeout)
				defer cancel()
				if err := delivery.NewHTTPSink(cfg.ServerURL).Health(ctx); err != nil {
					return fmt.Errorf("%s: %s", cfg.ServerURL, domain.ErrorTag(err))
				}
				fmt.Printf("%s: ok\n", cfg.ServerURL)
				return nil
			}
			var body struct {
				OK    bool   `json:"ok"`
				Error string `json:"error"`
			}
			if err := call(cmd.Context(), cfg, http.MethodGet, "/v1/health", auth.ScopeRead, &body); err != nil {
				return err
			}
			if !body.OK {
				return fmt.Errorf("ingestion endpoint unhealthy: %s", body.Error)
			}
			fmt.Println("ingestion endpoint: ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "probe server_url from this process instead of through the agent")
	return cmd
}

// call performs one control API request and decodes the JSON body into out.
// Non-JSON error bodies (401 from the auth layer) are returned as errors.
func call(ctx context.Context, cfg config.Config, method, path, scope string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, "http://"+cfg.ControlAddress+path, nil)
	if err != nil {
		return err
	}
	if cfg.ControlSecret != "" {
		token, err := auth.Issue(auth.Config{Secret: cfg.ControlSecret, Issuer: cfg.ControlIssuer}, "agentctl", []string{scope}, tokenTTL)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agent unreachable at %s: %w", cfg.ControlAddress, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func loadPersisted(ctx context.Context, cfg config.Config) (domain.DeliveryStatus, error) {
	if cfg.StatusDB == "" {
		return domain.DeliveryStatus{}, fmt.Errorf("status_db is not configured")
	}
	store, err := status.Open(ctx, cfg.StatusDB, status.AgentID(cfg.Source))
	if err != nil {
		return domain.DeliveryStatus{}, err
	}
	defer store.Close()
	return store.Load(ctx)
}

func renderStatus(w io.Writer, st agent.Status, offline bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Field", "Value"})
	if !offline {
		tw.AppendRow(table.Row{"enabled", st.Enabled})
		tw.AppendRow(table.Row{"sink", st.Sink})
		tw.AppendRow(table.Row{"server url", st.ServerURL})
		tw.AppendRow(table.Row{"heartbeat", fmt.Sprintf("%ds", st.HeartbeatSeconds)})
		tw.AppendRow(table.Row{"keeper", keeperState(st)})
		tw.AppendRow(table.Row{"current", describe(st.Current)})
		tw.AppendRow(table.Row{"last committed", describe(st.Previous)})
		tw.AppendSeparator()
	}
	d := st.Delivery
	tw.AppendRow(table.Row{"last attempt", formatTime(d.LastAttemptAt)})
	tw.AppendRow(table.Row{"last success", formatTime(d.LastSuccessAt)})
	tw.AppendRow(table.Row{"consecutive errors", d.ConsecutiveErrors})
	lastError := "-"
	if d.LastError != nil {
		lastError = *d.LastError
	}
	tw.AppendRow(table.Row{"last error", lastError})
	if ev := d.LastSentEvent; ev != nil {
		tw.AppendRow(table.Row{"last event", fmt.Sprintf("%s %s %s (%s)", ev.EventKind, ev.Activity, ev.Entity, ev.Reason)})
	}
	tw.Render()
}

func describe(s domain.AttributionState) string {
	if s.Activity == domain.ActivityNone {
		return "none"
	}
	return s.Activity.String() + " " + s.Entity
}

func keeperState(st agent.Status) string {
	switch {
	case !st.KeepAlive:
		return "disabled"
	case st.KeeperRunning:
		return "running"
	default:
		return "stopped"
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

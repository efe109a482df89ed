package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"waveopt/internal/model"
)

type clientOpts struct {
	addr      string
	warehouse string
	token     string
}

func (c *clientOpts) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.addr+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.warehouse != "" {
		req.Header.Set("X-Warehouse-Id", c.warehouse)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpc := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		var prob struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&prob)
		if prob.Title != "" {
			return fmt.Errorf("%s: %s (%d)", prob.Title, prob.Detail, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &clientOpts{}
	root := &cobra.Command{
		Use:           "wavectl",
		Short:         "Operate the wave scheduling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("WAVE_API_ADDR", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.warehouse, "warehouse", envOr("WAVE_WAREHOUSE", "wh_demo"), "warehouse id")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("WAVE_TOKEN"), "bearer token")

	root.AddCommand(newOptimizeCmd(out, opts))
	root.AddCommand(newRunsCmd(out, opts))
	root.AddCommand(newConfigCmd(out, opts))
	return root
}

func newOptimizeCmd(out io.Writer, opts *clientOpts) *cobra.Command {
	var req model.OptimizeRequest
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Start an optimization run",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.WarehouseID = opts.warehouse
			var run model.RunRecord
			if err := opts.do(http.MethodPost, "/v1/optimize", req, &run); err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s started (state %s)\n", run.RunID, run.State)
			return nil
		},
	}
	cmd.Flags().Float64Var(&req.TimeLimitSeconds, "time-limit", 0, "solver time limit in seconds")
	cmd.Flags().IntVar(&req.MaxIterations, "max-iterations", 0, "solver iteration cap")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "random seed for reproducible runs")
	cmd.Flags().IntVar(&req.OrderLimit, "order-limit", 0, "max orders in the snapshot")
	cmd.Flags().BoolVar(&req.CrossWave, "cross-wave", false, "allow moving orders between waves")
	return cmd
}

func newRunsCmd(out io.Writer, opts *clientOpts) *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Inspect optimization runs"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Items []model.RunRecord `json:"items"`
			}
			if err := opts.do(http.MethodGet, "/v1/runs", nil, &res); err != nil {
				return err
			}
			for _, run := range res.Items {
				fmt.Fprintf(out, "%s\t%s\t%s\t%d orders\n", run.RunID, run.State, run.Status, run.OrderCount)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run with its savings report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var run model.RunRecord
			if err := opts.do(http.MethodGet, "/v1/runs/"+args[0], nil, &run); err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel an active run, keeping its best plan so far",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.do(http.MethodPost, "/v1/runs/"+args[0]+"/cancel", nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s cancelling\n", args[0])
			return nil
		},
	}

	plan := &cobra.Command{
		Use:   "plan <run-id>",
		Short: "Print a run's task plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			var res struct {
				Tasks []model.TaskRow `json:"tasks"`
			}
			if err := opts.do(http.MethodGet, "/v1/runs/"+args[0]+"/plan?kind="+kind, nil, &res); err != nil {
				return err
			}
			for _, t := range res.Tasks {
				fmt.Fprintf(out, "%s\t%s\t%s\t%d+%dmin\n", t.OrderID, t.Stage, t.WorkerID, t.StartTimeMinutes, t.DurationMinutes)
			}
			return nil
		},
	}
	plan.Flags().String("kind", "optimized", "plan kind: baseline or optimized")

	runs.AddCommand(list, get, cancel, plan)
	return runs
}

func newConfigCmd(out io.Writer, opts *clientOpts) *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Engine configuration"}
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the effective engine configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res map[string]any
			if err := opts.do(http.MethodGet, "/v1/engine/config", nil, &res); err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cfg.AddCommand(get)
	return cfg
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

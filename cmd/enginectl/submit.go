package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

func newClient(base string) *resty.Client {
	return resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a strategy backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			symbol, _ := cmd.Flags().GetString("symbol")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			capital, _ := cmd.Flags().GetFloat64("capital")
			perTrade, _ := cmd.Flags().GetFloat64("per-trade")

			code, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read strategy file: %w", err)
			}
			return runSubmit(apiFlag, symbol, string(code), from, to, capital, perTrade, os.Stdout)
		},
	}
	cmd.Flags().StringP("file", "f", "", "Strategy code file (required)")
	cmd.Flags().StringP("symbol", "s", "", "Symbol to backtest against (required)")
	cmd.Flags().String("from", "", "Window start, YYYY-MM-DD")
	cmd.Flags().String("to", "", "Window end, YYYY-MM-DD")
	cmd.Flags().Float64("capital", 100000, "Initial capital")
	cmd.Flags().Float64("per-trade", 10000, "Investment per trade")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func runSubmit(base, symbol, code, from, to string, capital, perTrade float64, out io.Writer) error {
	body := map[string]interface{}{
		"backtest": map[string]interface{}{
			"name": symbol,
			"code": code,
			"params": map[string]float64{
				"initialCapital":     capital,
				"investmentPerTrade": perTrade,
			},
			"range": map[string]string{"from": from, "to": to},
		},
	}
	resp, err := newClient(base).R().SetBody(body).Post("/engine/execute/")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return fmt.Errorf("submit failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	fmt.Fprintln(out, resp.String())
	return nil
}

func runTask(base, taskID string, out io.Writer) error {
	resp, err := newClient(base).R().Get("/engine/task/" + taskID + "/")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.String())
	return nil
}

func runHealth(base string, out io.Writer) error {
	resp, err := newClient(base).R().Get("/engine/health/")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.String())
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode())
	}
	return nil
}

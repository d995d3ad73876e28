package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"asset-orchestrator/api/client"
	"asset-orchestrator/api/rest/handlers"
	"asset-orchestrator/core/repository"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the assetctl command tree.
func NewRootCmd() *cobra.Command {
	_ = godotenv.Load()

	var server string
	root := &cobra.Command{
		Use:           "assetctl",
		Short:         "Submit and track 3D asset jobs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&server, "server", envOr("ASSET_SERVER", "http://localhost:8080"), "orchestrator base URL")

	api := func() *client.Client { return client.New(server, nil) }

	root.AddCommand(
		SubmitCmd(api),
		StatusCmd(api),
		GenerateCmd(api),
		AssetsCmd(api),
		MigrateCmd(),
	)
	return root
}

// SubmitCmd submits a reconstruction job, optionally waiting for it.
func SubmitCmd(api func() *client.Client) *cobra.Command {
	var wait bool
	var interval time.Duration
	var modelName string

	cmd := &cobra.Command{
		Use:   "submit <s3-uri>",
		Short: "Start a reconstruction job for an input image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api()
			commandID, err := c.Submit(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to submit job: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commandId: %s\n", commandID)
			if !wait {
				return nil
			}
			return waitAndPrint(cmd.Context(), cmd.OutOrStdout(), c, commandID, modelName, interval)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "poll interval")
	cmd.Flags().StringVar(&modelName, "model-name", "", "display name for the converted asset")
	return cmd
}

// StatusCmd polls a job.
func StatusCmd(api func() *client.Client) *cobra.Command {
	var wait bool
	var interval time.Duration
	var modelName string

	cmd := &cobra.Command{
		Use:   "status <command-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := api()
			if wait {
				return waitAndPrint(cmd.Context(), cmd.OutOrStdout(), c, args[0], modelName, interval)
			}
			resp, err := c.Status(cmd.Context(), args[0], modelName)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "poll interval")
	cmd.Flags().StringVar(&modelName, "model-name", "", "display name for the converted asset")
	return cmd
}

// GenerateCmd generates a product image.
func GenerateCmd(api func() *client.Client) *cobra.Command {
	var prompt, name string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a product image from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := api().Generate(cmd.Context(), prompt, name)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "image description")
	cmd.Flags().StringVar(&name, "name", "", "asset name used for the object key")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

// AssetsCmd lists the asset catalog.
func AssetsCmd(api func() *client.Client) *cobra.Command {
	var limit int
	var lastKey string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List catalog assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := api().ListAssets(cmd.Context(), limit, lastKey)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "page size (max 100)")
	cmd.Flags().StringVar(&lastKey, "last-key", "", "cursor returned by the previous page")
	return cmd
}

// MigrateCmd creates the job_records table for the SQL job stores.
func MigrateCmd() *cobra.Command {
	var driver, dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the job record table in a SQL job store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--dsn or DATABASE_URL is required")
			}
			db, err := repository.NewDB(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s job store\n", db.Driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", envOr("JOB_STORE", "postgres"), "postgres or sqlite")
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "database connection string")
	return cmd
}

func waitAndPrint(ctx context.Context, out io.Writer, c *client.Client, commandID, modelName string, interval time.Duration) error {
	resp, err := c.WaitForJob(ctx, commandID, modelName, interval, func(r *handlers.JobStatusResponse) {
		line := string(r.Status)
		if r.SecondaryStatus != "" {
			line += " (conversion " + string(r.SecondaryStatus) + ")"
		}
		fmt.Fprintln(out, line)
	})
	if err != nil {
		return err
	}
	return printJSON(out, resp)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

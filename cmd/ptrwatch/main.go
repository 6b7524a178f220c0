package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcarver/ptrwatch/internal/config"
	"github.com/jcarver/ptrwatch/internal/logger"
	"github.com/jcarver/ptrwatch/internal/pipeline"
	"github.com/jcarver/ptrwatch/internal/status"
	"github.com/jcarver/ptrwatch/internal/store"
)

var dataDir string

func main() {
	cfg := config.FromEnv()

	rootCmd := &cobra.Command{
		Use:   "ptrwatch",
		Short: "Monitor congressional financial disclosure filings",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", cfg.DataDir, "data directory for the JSON stores")

	rootCmd.AddCommand(runCmd(cfg))
	rootCmd.AddCommand(scrapeCmd(cfg))
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(deleteCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	return store.New(dataDir, logger.New())
}

func runCmd(cfg config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full monitor pass: scrape, queue and process filings",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()
			cfg.DataDir = dataDir

			st, err := store.New(cfg.DataDir, log)
			if err != nil {
				return err
			}

			runner := pipeline.New(cfg, st, log)
			summary, err := runner.Run(force)
			if err != nil {
				return err
			}

			if summary.Scrape != nil && summary.Scrape.NewFilingsCount > 0 {
				fmt.Printf("%d new filing(s) discovered.\n", summary.Scrape.NewFilingsCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "bypass the scrape interval throttle")
	return cmd
}

func scrapeCmd(cfg config.Config) *cobra.Command {
	var force bool
	var year int

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run discovery only, without processing the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()
			cfg.DataDir = dataDir
			if year != 0 {
				cfg.FilingYear = year
			}

			st, err := store.New(cfg.DataDir, log)
			if err != nil {
				return err
			}

			runner := pipeline.New(cfg, st, log)
			summary, err := runner.Scrape(force)
			if err != nil {
				return err
			}

			if summary.Skipped {
				fmt.Println("Scrape skipped: registry was updated recently (use --force to override).")
				return nil
			}

			fmt.Printf("Found %d filing(s), %d new.\n", summary.TotalFilingsFound, summary.NewFilingsCount)
			for i, filing := range summary.NewFilings {
				if i >= 5 {
					fmt.Printf("... and %d more\n", summary.NewFilingsCount-5)
					break
				}
				fmt.Printf("  %s (%s) - %s\n", filing.Name, filing.Office, filing.FilingType)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "bypass the scrape interval throttle")
	cmd.Flags().IntVar(&year, "year", 0, "filing year to scrape (default: current year)")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show filing status counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := getStore()
			if err != nil {
				return err
			}

			mgr := status.NewManager(st, logger.New())
			sum, err := mgr.GetStatusSummary()
			if err != nil {
				return err
			}

			fmt.Printf("pending:   %d\n", sum.Pending)
			fmt.Printf("processed: %d\n", sum.Processed)
			fmt.Printf("failed:    %d\n", sum.Failed)
			fmt.Printf("no status: %d\n", sum.NoStatus)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	var pdfID string
	var dryRun bool
	var listProcessed bool
	var member string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a filing and its extracted transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := getStore()
			if err != nil {
				return err
			}

			if listProcessed {
				listings, err := st.ListProcessedFilings(member)
				if err != nil {
					return err
				}
				if len(listings) == 0 {
					fmt.Println("No processed filings found.")
					return nil
				}
				for _, l := range listings {
					fmt.Printf("%s  %s (%s, %s)  processed %s\n", l.PDFID, l.MemberName, l.FilingType, l.Year, l.ProcessedAt)
				}
				return nil
			}

			if pdfID == "" {
				return fmt.Errorf("--pdf-id is required unless --list-processed is set")
			}

			if dryRun {
				key, filing, err := st.FindFilingByID(pdfID)
				if err != nil {
					return err
				}
				fmt.Printf("Would delete filing %s (%s) from member %s.\n", filing.PDFID, filing.PDFLink, key)
				return nil
			}

			summary, err := st.DeleteFiling(pdfID)
			if err != nil {
				return err
			}

			fmt.Printf("Deleted filing %s (%s).\n", summary.PDFID, summary.MemberName)
			if summary.RemovedResult {
				fmt.Printf("Removed processed result with %d transaction(s).\n", summary.TransactionCount)
			}
			if summary.RemovedPending {
				fmt.Println("Removed pending queue entry.")
			}
			if summary.RegistryBackup != "" {
				fmt.Printf("Backups: %s, %s\n", summary.RegistryBackup, summary.LedgerBackup)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pdfID, "pdf-id", "", "pdf_id of the filing to delete")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without writing")
	cmd.Flags().BoolVar(&listProcessed, "list-processed", false, "list processed filings instead of deleting")
	cmd.Flags().StringVar(&member, "member", "", "filter --list-processed by member name")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsync/config"
)

var (
	cfgFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "vecsync",
	Short: "Memory-mapped vector store synchronized with a remote object store",
	Long: `vecsync keeps vectors in a local memory-mapped file, searches them by cosine
similarity, and pushes, pulls and backs up the file to S3, MinIO, Google Drive
or a local directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./vecsync.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(initCmd, putCmd, getCmd, searchCmd, pushCmd, pullCmd, statusCmd, backupCmd, serveCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photon",
	Short: "Similarity engine for a personal media gallery",
	Long: `Photon indexes photos and videos into an embedding space and answers
similarity queries over it: visually similar media, near-duplicate groups
and face clusters. It runs as a server with background convergence loops,
plus batch commands for offline maintenance.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quka-ai/knowledge-sync/cmd/service"
)

func main() {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "knowledge-sync",
		Short: "knowledge ingestion and vector sync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("empty command")
		},
	}

	root.AddCommand(service.NewCommand(), service.NewProcessCommand(), service.NewReembedCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

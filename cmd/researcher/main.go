package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCMD().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "researcher",
		Short:         "Research agent: crawl, index and answer from a local knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.*)")

	root.AddCommand(
		messageCMD(&cfgPath),
		listenCMD(&cfgPath),
		indexCMD(&cfgPath),
		searchCMD(&cfgPath),
		inferCMD(&cfgPath),
		reindexCMD(&cfgPath),
	)
	return root
}

/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/storycreator/apiserver/config"
	"github.com/storycreator/apiserver/internal/mq"
	"github.com/storycreator/apiserver/internal/services"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the like-event drift auditor",
	Long: `Runs the like-event drift auditor. It consumes the story.likes
channel and records likes whose counter increment succeeded but whose
snapshot never reached the user's liked list. Usage:

	apiserver worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		queue, err := mq.FromConfig(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("no mq provider configured; set MQ_PROVIDER")
		}
		defer func() {
			_ = queue.Close()
		}()

		auditor := services.NewDriftAuditor(queue, nil)
		return auditor.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

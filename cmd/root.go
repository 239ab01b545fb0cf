/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Run scripted chatbot conversations in the terminal",
	Long:  "Chatflow runs a step-based chatbot session with streaming messages, toasts and persisted chat history.",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to chatflow.json (default: CHATFLOW_CONFIG, ./chatflow.json, ./config/chatflow.json)")
}

package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seopages",
		Short: "Agent-driven SEO page generation service",
		Long:  "seopages runs the page-generation agent: sessions, skills, task tracking and the HTTP API.",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(skillsCmd())
	return cmd
}

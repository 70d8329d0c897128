package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
)

func skillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the embedded skill catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := skills.NewRegistry()
			if err != nil {
				return err
			}
			for _, sk := range registry.List() {
				line := fmt.Sprintf("%-22s %-10s %s", sk.Name, sk.Category, sk.Description)
				if len(sk.Classifications) > 0 {
					line += fmt.Sprintf("  (routes: %v)", sk.Classifications)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

package commands

import "github.com/spf13/cobra"

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release pipeline tasks",
}

func init() {
	releaseCmd.AddCommand(uploadArtifactsCmd)
	releaseCmd.AddCommand(uploadVirusTotalCmd)
}

package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

// dataCmd represents the data command
var dataCmd = &cobra.Command{
	Use:   "data [payload]",
	Short: "Replace the payload of the blocks being mined.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := struct {
			Data string `json:"data"`
		}{
			Data: args[0],
		}

		if err := call(http.MethodPost, "/v1/sim/data", req, nil); err != nil {
			log.Fatal(err)
		}
		fmt.Println("data submitted")
	},
}

func init() {
	rootCmd.AddCommand(dataCmd)
}

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/powsim/foundation/blockchain/event"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the events of the node until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		conn, _, err := websocket.DefaultDialer.Dial(eventsURL(url), nil)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-shutdown
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}()

		for {
			var evt event.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			printEvent(os.Stdout, evt)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// printEvent writes one line per event.
func printEvent(w io.Writer, evt event.Event) {
	ts := evt.Time.Format("15:04:05.000")

	switch p := evt.Payload.(type) {
	case event.BlockPayload:
		if p.Reason != "" {
			fmt.Fprintf(w, "%s %-18s %-10s height=%d hash=%s reason=%q\n", ts, evt.Kind, p.Block.MinerID, p.Block.Height, p.Block.Hash, p.Reason)
			return
		}
		fmt.Fprintf(w, "%s %-18s %-10s height=%d hash=%s\n", ts, evt.Kind, p.Block.MinerID, p.Block.Height, p.Block.Hash)

	case event.DifficultyPayload:
		fmt.Fprintf(w, "%s %-18s %d -> %d trigger=%s p=%g\n", ts, evt.Kind, p.Previous, p.Current, p.Trigger, p.Probability)

	default:
		fmt.Fprintf(w, "%s %-18s %s\n", ts, evt.Kind, evt.Message)
	}
}

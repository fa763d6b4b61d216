package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chatsecure/internal/domain"
)

// chatCmd runs the session headless: a line-oriented loop over the
// engine's public operations. Anything fancier belongs to a real UI.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Connect and chat on the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printed := make(map[domain.ConversationID]int)

			onError = func(err error) { fmt.Fprintf(os.Stderr, "! %v\n", err) }
			onRefresh = func() {
				e := wire.Session.Engine()
				if e == nil {
					return
				}
				active := e.Active()
				msgs := e.Messages(active)
				for _, m := range msgs[printed[active]:] {
					printMessage(m)
				}
				printed[active] = len(msgs)
			}

			ok, err := wire.Session.Resume(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no stored session; run init first")
			}
			id, err := wire.Session.Identity()
			if err != nil {
				return err
			}
			fmt.Printf("Connected as %s. /list, /open <peer|broadcast>, /quit\n", id.DisplayName)

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
				case line == "/quit":
					wire.Channel.Disconnect()
					return nil
				case line == "/list":
					listPeers()
				case strings.HasPrefix(line, "/open "):
					openConversation(cmd, strings.TrimSpace(strings.TrimPrefix(line, "/open ")), printed)
				default:
					if _, err := wire.Session.Send(line); err != nil {
						fmt.Fprintf(os.Stderr, "! send failed: %v\n", err)
					}
				}
			}
			return scanner.Err()
		},
	}
}

func listPeers() {
	e := wire.Session.Engine()
	for _, p := range wire.Roster.OrderedView() {
		state := "offline"
		if p.Online {
			state = "online"
		}
		unread := ""
		if e != nil {
			if n := e.Unread(domain.ConversationID(p.ID)); n > 0 {
				unread = fmt.Sprintf(" (%d unread)", n)
			}
		}
		fmt.Printf("  %s  %s  [%s]%s\n", p.ID, p.DisplayName, state, unread)
	}
}

func openConversation(cmd *cobra.Command, target string, printed map[domain.ConversationID]int) {
	conv := domain.ConversationID(target)
	if target != string(domain.BroadcastConversation) {
		// Accept a display name as well as an id.
		if _, ok := wire.Roster.Peer(target); !ok {
			for _, p := range wire.Roster.OrderedView() {
				if strings.EqualFold(p.DisplayName, target) {
					conv = domain.ConversationID(p.ID)
					break
				}
			}
		}
	}
	printed[conv] = 0
	if err := wire.Session.SelectConversation(cmd.Context(), conv); err != nil {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
	}
}

func printMessage(m domain.Message) {
	ts := time.Unix(m.Timestamp, 0).Format("15:04:05")
	switch {
	case m.Corrupt:
		fmt.Printf("[%s] %s: <undecryptable message>\n", ts, m.Sender)
	case m.Unverified:
		fmt.Printf("[%s] %s (unverified): %s\n", ts, m.Sender, m.Body)
	default:
		fmt.Printf("[%s] %s: %s\n", ts, m.Sender, m.Body)
	}
}

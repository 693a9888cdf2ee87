package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"metaphorspace/internal/chat"
	"metaphorspace/internal/model"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat [id]",
	Short: "Talk about a story",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			logger.Fatal("Bad argument", zap.Error(err))
		}

		ctx := context.Background()
		// Before newApp: a Fatal here must not skip a.close.
		resp, err := newResponder(ctx)
		if err != nil {
			logger.Fatal("Failed to init responder", zap.Error(err))
		}

		a, err := newApp(ctx, client)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer a.close()

		sc := a.theme.Scheme()
		st, ok := a.findStory(ctx, id, maxPages)
		if !ok {
			sc.Error.Printf("Story %d not found in the first %d page(s)\n", id, maxPages)
			return
		}

		sess := chat.NewSession(st, resp, logger, chatOptions()...)

		sc.Title.Printf("Chatting about: %s\n", st.PlainTitle())
		sc.Muted.Println("Type /quit or press Ctrl+D to leave.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			sc.Prompt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return
			}
			line := scanner.Text()
			if strings.TrimSpace(line) == "/quit" {
				return
			}

			sess.SetInput(line)
			if !sess.Submit(ctx) {
				continue
			}
			msgs := sess.Messages()
			if last := msgs[len(msgs)-1]; last.Role == model.RoleAI {
				sc.Accent.Print("ai: ")
				sc.Text.Println(last.Content)
			}
		}
	},
}

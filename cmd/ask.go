package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/go-places-chat/internal/api/chat"
	"github.com/FACorreiaa/go-places-chat/internal/container"
	"github.com/FACorreiaa/go-places-chat/internal/types"
)

var askOpts struct {
	latitude  float64
	longitude float64
	sessionID string
	intent    string
}

var askCmd = &cobra.Command{
	Use:   "ask MESSAGE [MESSAGE...]",
	Short: "Run one conversational turn and print the narration",
	Long: `Runs a single turn against the configured places source and model. The
arguments are the conversation so far, oldest first, alternating between the
user and the assistant and ending with the user's latest message.

$ places-chat ask --lat 38.72 --lon -9.14 "quiet cafe to work from"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := askRequest(args)
		if err != nil {
			return err
		}

		c, err := container.NewContainer(cmd.Context(), &cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		stream, err := c.ChatService.StartTurn(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", stream.SessionID)
		return printTurn(cmd.OutOrStdout(), stream)
	},
}

func init() {
	f := askCmd.Flags()
	f.Float64Var(&askOpts.latitude, "lat", 0, "latitude of the user")
	f.Float64Var(&askOpts.longitude, "lon", 0, "longitude of the user")
	f.StringVar(&askOpts.sessionID, "session", "", "session to continue")
	f.StringVar(&askOpts.intent, "intent", "", "new_search or refine")
	rootCmd.AddCommand(askCmd)
}

func askRequest(args []string) (types.TurnRequest, error) {
	req := types.TurnRequest{
		Intent:   types.TurnIntent(askOpts.intent),
		Location: &types.Location{Latitude: askOpts.latitude, Longitude: askOpts.longitude},
	}
	// oldest first, so the last message must be the user's
	offset := (len(args) - 1) % 2
	for i, content := range args {
		role := types.RoleUser
		if (i+offset)%2 == 1 {
			role = types.RoleAssistant
		}
		req.Messages = append(req.Messages, types.Message{Role: role, Content: content})
	}
	if askOpts.sessionID != "" {
		id, err := uuid.Parse(askOpts.sessionID)
		if err != nil {
			return types.TurnRequest{}, fmt.Errorf("invalid --session: %w", err)
		}
		req.SessionID = &id
	}
	return req, nil
}

// printTurn writes the narration as it grows, then the places table.
func printTurn(w io.Writer, stream *chat.TurnStream) error {
	var printed string
	for ev := range stream.Events {
		switch ev.Kind {
		case types.EventFragment:
			fmt.Fprint(w, strings.TrimPrefix(ev.Response.Response, printed))
			printed = ev.Response.Response
		case types.EventResult:
			fmt.Fprintln(w, strings.TrimPrefix(ev.Response.Response, printed))
			printPlaces(w, ev.Response.Places)
		case types.EventError:
			return ev.Err
		}
	}
	return nil
}

func printPlaces(w io.Writer, places []types.Place) {
	if len(places) == 0 {
		fmt.Fprintln(w, "\nno places")
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tRATING\tRELEVANCY\tMAPS")
	for i, p := range places {
		rating := "-"
		if p.Rating != nil {
			rating = fmt.Sprintf("%.1f", *p.Rating)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n", i+1, p.Name, rating, p.Relevancy, p.WebsiteURL)
	}
	_ = tw.Flush()
}

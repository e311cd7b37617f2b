// Command parley-chat is a terminal client for the discussion API. It
// creates a conversation, starts a run, and renders the event stream
// with one color per participant.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	_ "github.com/joho/godotenv/autoload"
	"github.com/parleyhq/parley/api"
	"github.com/parleyhq/parley/events"
	"github.com/parleyhq/parley/provider/openrouter"
)

var palette = []*color.Color{
	color.New(color.FgCyan, color.Bold),
	color.New(color.FgMagenta, color.Bold),
	color.New(color.FgGreen, color.Bold),
	color.New(color.FgYellow, color.Bold),
	color.New(color.FgBlue, color.Bold),
}

func main() {
	var (
		addr      = flag.String("addr", "http://localhost:8787", "parley server address")
		topic     = flag.String("topic", "", "discussion topic (required)")
		mode      = flag.String("mode", "round_robin", "discussion mode: round_robin or moderated")
		rounds    = flag.Int("rounds", 2, "number of rounds")
		models    = flag.String("models", "meta-llama/llama-3.3-70b-instruct,qwen/qwen-2.5-72b-instruct", "comma-separated model ids")
		moderator = flag.String("moderator", "", "model id of the moderator (moderated mode)")
	)
	flag.Parse()

	if *topic == "" {
		fmt.Fprintln(os.Stderr, "usage: parley-chat -topic \"...\" [-mode round_robin|moderated] [-models id,id] [-rounds n]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *addr, *topic, *mode, *moderator, strings.Split(*models, ","), *rounds); err != nil {
		fmt.Fprintln(os.Stderr, "parley-chat:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, topic, mode, moderator string, models []string, rounds int) error {
	conv, err := createConversation(ctx, addr, mode, moderator, models)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"conversationId": conv.ID,
		"userMessage":    topic,
		"mode":           mode,
		"participants":   conv.Participants,
		"maxRounds":      rounds,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/discuss", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	colors := map[string]*color.Color{}
	for i, p := range conv.Participants {
		colors[p.ID] = palette[i%len(palette)]
	}
	render(resp.Body, colors)
	return nil
}

func createConversation(ctx context.Context, addr, mode, moderator string, models []string) (api.Conversation, error) {
	specs := make([]map[string]any, 0, len(models))
	for _, id := range models {
		id = strings.TrimSpace(id)
		role := "participant"
		if mode == "moderated" && (id == moderator || (moderator == "" && len(specs) == 0)) {
			role = "moderator"
		}
		specs = append(specs, map[string]any{
			"modelId":     id,
			"displayName": openrouter.DisplayName(id),
			"role":        role,
		})
	}

	body, err := json.Marshal(map[string]any{"mode": mode, "participants": specs})
	if err != nil {
		return api.Conversation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/api/conversations", bytes.NewReader(body))
	if err != nil {
		return api.Conversation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return api.Conversation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return api.Conversation{}, fmt.Errorf("server returned %s", resp.Status)
	}

	var conv api.Conversation
	err = json.NewDecoder(resp.Body).Decode(&conv)
	return conv, err
}

func render(body io.Reader, colors map[string]*color.Color) {
	names := map[string]string{}
	dim := color.New(color.Faint)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		ev, err := events.Decode([]byte(data))
		if err != nil {
			continue
		}

		switch e := ev.(type) {
		case events.TurnStart:
			names[e.ParticipantID] = e.DisplayName
			c := colors[e.ParticipantID]
			if c == nil {
				c = palette[0]
			}
			fmt.Println()
			c.Printf("%s", e.DisplayName)
			dim.Printf("  (%s, round %d)\n", e.ModelID, e.Round)
		case events.Token:
			fmt.Print(e.Content)
		case events.TurnEnd:
			fmt.Println()
		case events.Error:
			who := names[e.ParticipantID]
			if who == "" {
				who = "run"
			}
			color.New(color.FgRed).Printf("\n[%s failed: %s]\n", who, e.Message)
		case events.DiscussionComplete:
			dim.Printf("\ndiscussion complete after %d rounds\n", e.TotalRounds)
		}
	}
}

package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/observatory-dash/backend/internal/tui/app"
	"github.com/observatory-dash/backend/internal/tui/client"
)

type CLI struct {
	URL   string `help:"WebSocket URL of the dashboard server" default:"ws://127.0.0.1:8080/ws"`
	Token string `help:"Auth token, if the server requires one" env:"OBSDASH_AUTH_TOKEN"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("observatory-tui"),
		kong.Description("Terminal view of the unified observatory state."),
	)

	ws := client.NewWSClient(cli.URL, cli.Token)
	httpClient := client.NewHTTPClient(deriveHTTPBase(cli.URL), cli.Token)

	p := tea.NewProgram(app.New(ws, httpClient), tea.WithAltScreen())
	_, err := p.Run()
	kctx.FatalIfErrorf(err)
}

// deriveHTTPBase converts ws://host:port/ws to http://host:port.
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}

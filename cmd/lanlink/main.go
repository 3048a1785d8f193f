package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/lanlink/lanlink/logger"
	"github.com/lanlink/lanlink/node"
	"github.com/lanlink/lanlink/styles"
)

func main() {
	app := &cli.Command{
		Name:        "lanlink",
		Usage:       "chat and share files with peers on your local network",
		Version:     "1.0.0",
		Description: "Serverless LAN messaging and file transfer. Peers find each other over multicast; messages and files travel directly over TCP.",
		Commands: []*cli.Command{
			{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start lanlink in interactive mode",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Display name advertised to peers",
					},
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "TCP port for inbound transfers",
						Value:   9876,
					},
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Directory to save received files",
						Value:   "./downloads",
					},
					&cli.StringFlag{
						Name:  "log",
						Usage: "Log file path",
					},
				},
				Action: run,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Println(styles.ERROR.Render(err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	name := c.String("name")
	if name == "" {
		huh.NewInput().
			Title("Enter your name").
			Value(&name).
			Run()
	}
	if name == "" {
		name, _ = os.Hostname()
	}

	logPath := c.String("log")
	if logPath == "" {
		var err error
		if logPath, err = logger.DefaultPath(); err != nil {
			return err
		}
	}
	log := logger.New(logPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := node.New(node.Config{
		Name:      name,
		Addr:      fmt.Sprintf(":%d", c.Int("port")),
		Dir:       c.String("dir"),
		Discovery: true,
	}, log)

	if err := n.Start(ctx); err != nil {
		return err
	}

	fmt.Println(styles.TITLE.Render(" lanlink "))
	fmt.Printf("running as %s, listening on %s\n", name, n.Self.Addr)

	spinner.New().
		Title("discovering peers...").
		Action(func() { time.Sleep(2 * time.Second) }).
		Run()

	printHelp()

	return shell(cancel, n)
}

func shell(cancel context.CancelFunc, n *node.Node) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/quit":
			cancel()
			// Give discovery a beat to send its bye.
			time.Sleep(300 * time.Millisecond)
			fmt.Println("goodbye")
			return nil

		case input == "/peers":
			printPeers(n)

		case strings.HasPrefix(input, "/send "):
			handleSend(n, strings.TrimPrefix(input, "/send "))

		case strings.HasPrefix(input, "/file "):
			handleFile(n, strings.TrimPrefix(input, "/file "))

		case input == "/help":
			printHelp()

		default:
			fmt.Println(styles.WARNING.Render("unknown command, try /help"))
		}
	}

	cancel()
	return scanner.Err()
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  /peers                  list discovered peers")
	fmt.Println("  /send <peer-id> <text>  send a text message")
	fmt.Println("  /file <peer-id> <path>  send a file")
	fmt.Println("  /quit                   exit")
}

func printPeers(n *node.Node) {
	peers := n.Peers()
	if len(peers) == 0 {
		fmt.Println(styles.INFO.Render("no peers found"))
		return
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Name < peers[j].Name })

	fmt.Printf("%d peer(s):\n", len(peers))
	for _, p := range peers {
		fmt.Printf("  %s  %s (%s)\n", p.ID, p.Name, p.Addr)
	}
}

func handleSend(n *node.Node, rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		fmt.Println(styles.WARNING.Render("usage: /send <peer-id> <text>"))
		return
	}

	peerID, err := uuid.Parse(parts[0])
	if err != nil {
		fmt.Println(styles.WARNING.Render("invalid peer id"))
		return
	}

	if err := n.SendText(peerID, parts[1]); err != nil {
		fmt.Println(styles.ERROR.Render(fmt.Sprintf("failed to send: %v", err)))
		return
	}

	fmt.Println(styles.SUCCESS.Render("sent"))
}

func handleFile(n *node.Node, rest string) {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		fmt.Println(styles.WARNING.Render("usage: /file <peer-id> <path>"))
		return
	}

	peerID, err := uuid.Parse(parts[0])
	if err != nil {
		fmt.Println(styles.WARNING.Render("invalid peer id"))
		return
	}

	if err := n.SendFile(peerID, parts[1]); err != nil {
		fmt.Println(styles.ERROR.Render(fmt.Sprintf("failed to send file: %v", err)))
		return
	}

	fmt.Println(styles.SUCCESS.Render("file sent ✓"))
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-desk/internal/app"
	"chat-desk/internal/tui"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var (
	flagConfig  string
	flagModel   string
	flagStorage string
	flagMock    bool
	flagNoTUI   bool
	flagRAG     bool
	flagTools   []string
)

func main() {
	root := &cobra.Command{
		Use:     "chatdesk",
		Short:   "Local chat client for Ollama with tool permissions and projects",
		Long:    "chatdesk is a terminal chat client backed by a local Ollama server.\n\nChats stream token by token, tools run only after per-chat approval, and\nconversations persist across restarts.",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			if err := engine.Sessions.Load(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not load saved chats: %v\n", err)
			}
			if err := engine.Projects.Load(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not load projects: %v\n", err)
			}

			if flagNoTUI {
				return runREPL(engine)
			}
			return tui.Run(engine)
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: "+app.DefaultConfigPath()+")")
	root.PersistentFlags().StringVar(&flagModel, "model", "", "model name (overrides config)")
	root.PersistentFlags().StringVar(&flagStorage, "storage", "", "storage backend: sqlite|file (overrides config)")
	root.PersistentFlags().BoolVar(&flagMock, "mock", false, "use the scripted mock backend instead of Ollama")
	root.Flags().BoolVarP(&flagNoTUI, "no-tui", "n", false, "simple line REPL instead of the full-screen UI")
	root.Flags().BoolVar(&flagRAG, "rag", false, "enable retrieval-augmented answers")
	root.Flags().StringSliceVar(&flagTools, "tools", nil, "tools to enable (web_search,file_read,file_write,shell_exec)")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List models available on the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := buildEngine()
			if err != nil {
				return err
			}
			models, err := engine.Generator.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range models {
				fmt.Println(name)
			}
			return nil
		},
	}
	root.AddCommand(modelsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildEngine() (*app.Engine, error) {
	path := flagConfig
	if path == "" {
		path = app.DefaultConfigPath()
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	applyOverrides(&cfg)

	engine, err := app.NewEngine(cfg, flagMock)
	if err != nil {
		return nil, err
	}
	if flagRAG {
		engine.SetRAGEnabled(true)
	}
	if len(flagTools) > 0 {
		engine.SetEnabledTools(flagTools)
	}
	return engine, nil
}

// applyOverrides layers flags, then environment, over the file config.
func applyOverrides(cfg *app.Config) {
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagStorage != "" {
		cfg.Storage = flagStorage
	}
	if url := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); url != "" && cfg.OllamaURL == app.DefaultConfig().OllamaURL {
		cfg.OllamaURL = url
	}
}

// runREPL is the plain stdin/stdout loop. Tokens are printed as they
// stream; tool output is prefixed so it reads apart from the answer.
func runREPL(engine *app.Engine) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	engine.Bus.Subscribe(app.TopicToken, func(p any) {
		if text, ok := p.(string); ok {
			fmt.Print(text)
		}
	})
	engine.Bus.Subscribe(app.TopicToolMessage, func(p any) {
		if body, ok := p.(app.ToolPayload); ok {
			fmt.Printf("\n[%s]\n%s\n", body.Name, body.Content)
		}
	})

	fmt.Printf("chatdesk %s (model %s). Ctrl+D to exit.\n", version, engine.Model())
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		engine.Submit(ctx, line, nil)
		fmt.Println()

		if tool := engine.Gate.PendingTool(); tool != "" {
			fmt.Printf("The assistant wants to use %q in this chat. Allow? [y/N] ", tool)
			if !scanner.Scan() {
				break
			}
			answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if answer == "y" || answer == "yes" {
				engine.Gate.GrantPermission(tool)
				engine.Submit(ctx, line, nil)
				fmt.Println()
			} else {
				engine.Gate.DenyPermission()
				fmt.Println("Denied.")
			}
		}

		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

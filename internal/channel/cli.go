package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"aidoctor/internal/agent"
	"aidoctor/internal/domain"
	"aidoctor/internal/language"
)

const cliHelp = `Commands:
  /image <path> [question]  consult about an image; quote paths with spaces
  /audio <path>             consult with a recorded question
  /lang <name or code>      reply in another language
  /reset                    forget the conversation
  /quit                     exit`

// CLI is an interactive terminal consultation. It keeps a single session.
type CLI struct {
	doctor Consulter
	memory *agent.Memory
	lang   string
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Doctor   Consulter
	Memory   *agent.Memory
	Language string
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Memory == nil {
		cfg.Memory = agent.NewMemory(agent.DefaultMaxTurns)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		doctor: cfg.Doctor,
		memory: cfg.Memory,
		lang:   language.Resolve(cfg.Language),
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

// Run reads lines until EOF, /quit, or ctx is cancelled.
func (c *CLI) Run(ctx context.Context) error {
	_, _ = fmt.Fprintln(c.out, "AI Doctor. Describe your symptoms and press Enter. Type /help for commands.")
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		req, quit := c.parse(line)
		if quit {
			c.logger.Info("user requested quit")
			return nil
		}
		if req != nil {
			c.consult(ctx, *req)
		}
		c.prompt()
	}
}

// parse turns a line into a request. A nil request means the line was a
// local command that has already been handled.
func (c *CLI) parse(line string) (*domain.Request, bool) {
	if !strings.HasPrefix(line, "/") {
		return &domain.Request{Text: line, Language: c.lang}, false
	}

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch cmd {
	case "/quit", "/exit", "/q":
		return nil, true
	case "/help":
		_, _ = fmt.Fprintln(c.out, cliHelp)
	case "/reset":
		c.memory.Reset()
		_, _ = fmt.Fprintln(c.out, "Conversation cleared.")
	case "/lang":
		l, ok := language.Parse(args)
		if !ok {
			_, _ = fmt.Fprintf(c.out, "Unknown language %q.\n", args)
			break
		}
		c.lang = l.Code
		_, _ = fmt.Fprintf(c.out, "Replying in %s.\n", l.Name)
	case "/image":
		path, question := splitPathArg(args)
		if path == "" {
			_, _ = fmt.Fprintln(c.out, "Usage: /image <path> [question]")
			break
		}
		return &domain.Request{ImagePath: path, Text: question, Language: c.lang}, false
	case "/audio":
		if args == "" {
			_, _ = fmt.Fprintln(c.out, "Usage: /audio <path>")
			break
		}
		return &domain.Request{AudioPath: unquote(args), Language: c.lang}, false
	default:
		_, _ = fmt.Fprintf(c.out, "Unknown command %s. Type /help for commands.\n", cmd)
	}
	return nil, false
}

// splitPathArg separates a leading path from the rest of the line. A path
// wrapped in double or single quotes may contain spaces.
func splitPathArg(args string) (path, rest string) {
	if len(args) > 1 && (args[0] == '"' || args[0] == '\'') {
		if end := strings.IndexByte(args[1:], args[0]); end >= 0 {
			return args[1 : end+1], strings.TrimSpace(args[end+2:])
		}
	}
	path, rest, _ = strings.Cut(args, " ")
	return path, strings.TrimSpace(rest)
}

func unquote(s string) string {
	if len(s) > 1 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func (c *CLI) consult(ctx context.Context, req domain.Request) {
	c.startThinking()
	resp := c.doctor.Consult(ctx, c.memory, req)
	c.stopThinking()

	_, _ = fmt.Fprint(c.out, "\r\033[K")
	_, _ = fmt.Fprintln(c.out, "--- Doctor ---")
	_, _ = fmt.Fprintf(c.out, "You said: %s\n", resp.Input)
	if resp.ImageAnalysis != "" {
		_, _ = fmt.Fprintf(c.out, "Image: %s\n", resp.ImageAnalysis)
	}
	_, _ = fmt.Fprintln(c.out, resp.Reply)
	if resp.AudioPath != "" {
		_, _ = fmt.Fprintf(c.out, "Audio: %s\n", resp.AudioPath)
	}
	_, _ = fmt.Fprintln(c.out, "--------------")
}

func (c *CLI) prompt() {
	_, _ = fmt.Fprint(c.out, "You> ")
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = fmt.Fprintf(c.out, "\r%s Consulting...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

// stopThinking waits for the spinner to exit so it cannot interleave with
// the reply.
func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	if !c.thinking {
		c.thinkMu.Unlock()
		return
	}
	c.thinking = false
	close(c.thinkStop)
	done := c.thinkDone
	c.thinkMu.Unlock()
	<-done
}

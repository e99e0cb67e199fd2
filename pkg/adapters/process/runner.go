package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
)

// ExitTempFail is the sysexits EX_TEMPFAIL code. A command exiting with it
// reports a transient failure and is retried.
const ExitTempFail = 75

// DefaultGracePeriod is how long a cancelled command may take to exit after
// the interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Runner turns external commands into action handlers.
// It follows a strict registry pattern: only registered commands ever run.
type Runner struct {
	registry map[string]CommandConfig
	baseDir  string
	grace    time.Duration
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(commands map[string]CommandConfig) RunnerOption {
	return func(r *Runner) {
		for key, c := range commands {
			c.Handler = key
			r.registry[key] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets the delay between interrupt and kill on cancellation.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a new process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]CommandConfig),
		grace:    DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list under a handler key.
func (r *Runner) Register(key string, command string, args ...string) {
	r.registry[key] = CommandConfig{Handler: key, Command: command, Args: args}
}

// Keys returns the registered handler keys, sorted.
func (r *Runner) Keys() []string {
	keys := make([]string, 0, len(r.registry))
	for k := range r.registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bind registers a handler for every command into h.
func (r *Runner) Bind(h *catalog.Handlers) {
	for _, key := range r.Keys() {
		h.Register(key, r.Handler(key))
	}
}

// Handler returns the domain.Handler running the command registered under key.
func (r *Runner) Handler(key string) domain.Handler {
	return domain.HandlerFunc(func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		c, ok := r.registry[key]
		if !ok {
			return domain.Outcome{}, domain.Terminal(fmt.Errorf("process handler not registered: %s", key))
		}
		return r.run(ctx, c, inv)
	})
}

// run executes one command for an invocation. The world state is written to
// stdin as JSON and facts are exported as QUIRE_FACT_* variables.
func (r *Runner) run(ctx context.Context, c CommandConfig, inv domain.Invocation) (domain.Outcome, error) {
	input, err := json.Marshal(inv.State)
	if err != nil {
		return domain.Outcome{}, domain.Terminal(fmt.Errorf("failed to encode state: %w", err))
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(), environment(c, inv)...)
	cmd.Stdin = bytes.NewReader(input)

	// Ask politely first; WaitDelay kills the process if it ignores the interrupt.
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := r.logger.With("handler", c.Handler, "action", inv.Action.Name, "attempt", inv.Attempt)
	logger.Debug("starting process", "command", c.Command)

	err = cmd.Run()
	if ctx.Err() != nil {
		return domain.Outcome{}, fmt.Errorf("process %s interrupted: %w", c.Handler, ctx.Err())
	}
	if err != nil {
		failure := fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitTempFail {
			logger.Debug("process reported a temporary failure")
			return domain.Outcome{}, domain.Transient(failure)
		}
		return domain.Outcome{}, domain.Terminal(failure)
	}

	return parseReply(stdout.Bytes())
}

// reply is what a command may print on stdout to return effect hints.
type reply struct {
	Output  any            `json:"output"`
	Effects map[string]any `json:"effects"`
}

// parseReply decodes stdout. A JSON object with an "output" or "effects" key
// is a reply; any other JSON value is the output itself; non-JSON is kept as text.
func parseReply(out []byte) (domain.Outcome, error) {
	trimmed := bytes.TrimSpace(out)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		var v any
		if json.Unmarshal(trimmed, &v) == nil {
			return domain.Outcome{Output: v}, nil
		}
		return domain.Outcome{Output: string(trimmed)}, nil
	}

	_, hasOutput := fields["output"]
	_, hasEffects := fields["effects"]
	if !hasOutput && !hasEffects {
		var v any
		_ = json.Unmarshal(trimmed, &v)
		return domain.Outcome{Output: v}, nil
	}

	var rep reply
	if err := json.Unmarshal(trimmed, &rep); err != nil {
		return domain.Outcome{}, domain.Terminal(fmt.Errorf("invalid process reply: %w", err))
	}
	effects, err := catalog.ParseEffects(rep.Effects)
	if err != nil {
		return domain.Outcome{}, domain.Terminal(fmt.Errorf("invalid effects in process reply: %w", err))
	}
	return domain.Outcome{Output: rep.Output, Effects: effects}, nil
}

func environment(c CommandConfig, inv domain.Invocation) []string {
	env := []string{
		"QUIRE_ACTION=" + inv.Action.Name,
		"QUIRE_RUN_ID=" + inv.RunID,
		"QUIRE_STEP=" + strconv.Itoa(inv.Step),
		"QUIRE_ATTEMPT=" + strconv.Itoa(inv.Attempt),
	}
	for _, f := range inv.State.Facts() {
		v, _ := inv.State.Get(f)
		env = append(env, "QUIRE_FACT_"+envName(string(f))+"="+v.String())
	}
	for k, v := range c.Environment {
		env = append(env, k+"="+v)
	}
	return env
}

// envName converts camelCase fact names to SCREAMING_SNAKE_CASE.
func envName(fact string) string {
	var b strings.Builder
	for i, r := range fact {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"officehours/internal/cli/command"
	"officehours/internal/cli/config"
	httpclient "officehours/internal/cli/http"
	"officehours/internal/cli/state"
	"officehours/internal/common/auth"
	"officehours/internal/queue/realtime"
	pkgerrors "officehours/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultPrompt = "officehours> "

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	cfg        config.Config
	rl         *readline.Instance
	out        io.Writer
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, cfg config.Config) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		cfg:        cfg,
		out:        os.Stdout,
	}
}

func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            defaultPrompt,
		HistoryFile:       s.cfg.HistoryFile,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		done, err := s.Execute(ctx, line)
		if err != nil {
			s.printLine("error: %v", err)
		}
		if done {
			s.printLine("bye")
			return nil
		}
	}
}

// Execute runs one input line and reports whether the session should end.
func (s *Session) Execute(ctx context.Context, line string) (bool, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return false, nil
	}
	switch tokens[0] {
	case "exit", "quit":
		return true, nil
	case "help":
		s.printHelp()
		return false, nil
	case "set":
		return false, s.handleSet(tokens[1:])
	case "show":
		return false, s.handleShow(tokens[1:])
	case "token":
		return false, s.handleToken(tokens[1:])
	case "watch":
		return false, s.handleWatch(ctx, tokens[1:])
	}
	return false, s.handleCommand(ctx, tokens)
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set base|timeout|token|course <value>")
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(args[1])
		s.printLine("base set to %s", args[1])
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		s.tokenState.AccessToken = args[1]
		s.tokenState.UserID = ""
		s.tokenState.ExpiresAt = time.Time{}
		if err := state.Save(s.cfg.TokenStatePath, *s.tokenState); err != nil {
			return err
		}
		s.printLine("token updated")
	case "course":
		s.tokenState.CourseID = args[1]
		if err := state.Save(s.cfg.TokenStatePath, *s.tokenState); err != nil {
			return err
		}
		s.printLine("default course set to %s", args[1])
	default:
		return fmt.Errorf("unknown set command: %s", args[0])
	}
	return nil
}

func (s *Session) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show token|config")
	}
	switch args[0] {
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return nil
		}
		s.printLine("token: %s", maskToken(s.tokenState.AccessToken))
		if s.tokenState.UserID != "" {
			s.printLine("user: %s (expires %s)", s.tokenState.UserID, s.tokenState.ExpiresAt.Format(time.RFC3339))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("course: %s", s.tokenState.CourseID)
		s.printLine("tokenStatePath: %s", s.cfg.TokenStatePath)
		s.printLine("historyFile: %s", s.cfg.HistoryFile)
	default:
		return fmt.Errorf("usage: show token|config")
	}
	return nil
}

func (s *Session) handleToken(args []string) error {
	if len(args) == 0 || args[0] != "mint" {
		return fmt.Errorf("usage: token mint user_id=<id> [name=<name>] [ttl=12h]")
	}
	params, err := command.ParseKeyValues(args[1:])
	if err != nil {
		return err
	}
	minted, err := MintToken(s.cfg.DevToken, params, time.Now())
	if err != nil {
		return err
	}
	minted.CourseID = s.tokenState.CourseID
	*s.tokenState = minted
	if err := state.Save(s.cfg.TokenStatePath, *s.tokenState); err != nil {
		return err
	}
	s.printLine("token minted for %s, expires %s", minted.UserID, minted.ExpiresAt.Format(time.RFC3339))
	return nil
}

// MintToken issues a development token signed with cfg.
func MintToken(cfg config.DevTokenConfig, params command.Params, now time.Time) (state.TokenState, error) {
	if cfg.Secret == "" {
		return state.TokenState{}, fmt.Errorf("devToken.secret is not configured")
	}
	userID := strings.TrimSpace(params.Get("user_id"))
	if userID == "" {
		return state.TokenState{}, fmt.Errorf("user_id is required")
	}
	name := params.Get("name")
	if name == "" {
		name = userID
	}
	ttl := cfg.TTL
	if raw := params.Get("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return state.TokenState{}, fmt.Errorf("invalid ttl: %s", raw)
		}
		ttl = parsed
	}
	token, err := auth.Mint(cfg.Secret, cfg.Issuer, auth.Identity{UserID: userID, Name: name}, ttl)
	if err != nil {
		return state.TokenState{}, err
	}
	return state.TokenState{AccessToken: token, UserID: userID, ExpiresAt: now.Add(ttl)}, nil
}

func (s *Session) handleWatch(ctx context.Context, args []string) error {
	params, err := command.ParseKeyValues(args)
	if err != nil {
		return err
	}
	courseID := params.Get("course_id")
	if courseID == "" {
		courseID = s.tokenState.CourseID
	}
	if courseID == "" {
		return fmt.Errorf("usage: watch course_id=<id> [for=30s]")
	}
	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if raw := params.Get("for"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		var cancel context.CancelFunc
		watchCtx, cancel = context.WithTimeout(watchCtx, dur)
		defer cancel()
	}
	s.printLine("watching %s, press Ctrl-C to stop", courseID)
	return s.client.Watch(watchCtx, s.cfg.WatchPath, courseID, func(frame realtime.Frame) {
		s.printLine("[%s] %s %s", time.Now().Format("15:04:05"), frame.Event, string(frame.Data))
	})
}

func (s *Session) handleCommand(ctx context.Context, tokens []string) error {
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := command.ParseKeyValues(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	s.applyDefaults(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	if key == "auth logout" && resp.StatusCode == 200 {
		courseID := s.tokenState.CourseID
		*s.tokenState = state.TokenState{CourseID: courseID}
		return state.Save(s.cfg.TokenStatePath, *s.tokenState)
	}
	return nil
}

func (s *Session) applyDefaults(cmd command.Command, params command.Params) {
	for _, field := range cmd.Fields {
		if field.Name == "course_id" && params.Get("course_id") == "" && s.tokenState.CourseID != "" {
			params.Set("course_id", s.tokenState.CourseID)
		}
		if field.Type == command.FieldFile && params.Get(field.Name) != "" {
			jsonKey := strings.TrimSuffix(field.Name, "_file")
			if params.Get(jsonKey) == "" {
				params.Set(jsonKey, "_file_")
			}
		}
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	if s.rl == nil {
		return "", fmt.Errorf("missing value for %s", prompt)
	}
	s.rl.SetPrompt(prompt + ": ")
	defer s.rl.SetPrompt(defaultPrompt)
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if env, err := resp.Envelope(); err == nil && env.Code != int(pkgerrors.Success) {
		s.printLine("error %d: %s", env.Code, env.Message)
		if len(env.Details) > 0 {
			s.printLine("details: %s", string(env.Details))
		}
		return
	}
	if s.cfg.PrettyJSON != nil && *s.cfg.PrettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) completer() *readline.PrefixCompleter {
	actions := map[string][]readline.PrefixCompleterInterface{}
	for _, cmd := range s.commands {
		actions[cmd.Service] = append(actions[cmd.Service], readline.PcItem(cmd.Action))
	}
	services := make([]string, 0, len(actions))
	for service := range actions {
		services = append(services, service)
	}
	sort.Strings(services)

	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("watch"),
		readline.PcItem("token", readline.PcItem("mint")),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token"), readline.PcItem("course")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
	}
	for _, service := range services {
		items = append(items, readline.PcItem(service, actions[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|token|course | show token|config")
	s.printLine("        token mint user_id=<id> [name=<name>] [ttl=12h]")
	s.printLine("        watch course_id=<id> [for=30s]")
	s.printLine("commands:")
	for _, usage := range command.Usages(s.commands) {
		s.printLine("  %s", usage)
	}
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func maskToken(token string) string {
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return token
}

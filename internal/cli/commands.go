package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/engine"
	"github.com/roach88/tyuo/internal/model"
)

// LearnResult summarizes a learn run.
type LearnResult struct {
	Context       string `json:"context"`
	Lines         int    `json:"lines"`
	LinesLearned  int    `json:"lines_learned"`
	TokensLearned int    `json:"tokens_learned"`
}

func (r LearnResult) String() string {
	return fmt.Sprintf("✓ Learned %d of %d line(s), %d token(s) into %s",
		r.LinesLearned, r.Lines, r.TokensLearned, r.Context)
}

// SpeakResult carries one generated line.
type SpeakResult struct {
	Context string `json:"context"`
	Output  string `json:"output"`
}

func (r SpeakResult) String() string { return r.Output }

// BanResult lists entries touched by ban or unban.
type BanResult struct {
	Context  string         `json:"context"`
	Banned   []banned.Entry `json:"banned,omitempty"`
	Unbanned []string       `json:"unbanned,omitempty"`
}

func (r BanResult) String() string {
	var b strings.Builder
	for _, e := range r.Banned {
		if e.Linked {
			fmt.Fprintf(&b, "banned %q (token %d)\n", e.Text, e.TokenID)
		} else {
			fmt.Fprintf(&b, "banned %q\n", e.Text)
		}
	}
	for _, text := range r.Unbanned {
		fmt.Fprintf(&b, "unbanned %q\n", text)
	}
	if b.Len() == 0 {
		return "nothing changed"
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// BannedList is the output of the banned command.
type BannedList struct {
	Context string         `json:"context"`
	Entries []banned.Entry `json:"entries"`
}

func (l BannedList) String() string {
	if len(l.Entries) == 0 {
		return "no banned entries"
	}
	lines := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		lines[i] = e.Text
	}
	return strings.Join(lines, "\n")
}

// StatsResult is the output of the stats command.
type StatsResult struct {
	Context string `json:"context"`
	model.Stats
}

func (r StatsResult) String() string {
	return fmt.Sprintf("%s: %d token(s), %d forward node(s), %d reverse node(s), %d ban(s)",
		r.Context, r.Tokens, r.ForwardNodes, r.ReverseNodes, r.Banned)
}

// ContextList is the output of the contexts command.
type ContextList struct {
	Contexts []string `json:"contexts"`
}

func (l ContextList) String() string {
	if len(l.Contexts) == 0 {
		return "no contexts"
	}
	return strings.Join(l.Contexts, "\n")
}

// DropResult confirms a drop.
type DropResult struct {
	Dropped string `json:"dropped"`
}

func (r DropResult) String() string { return "✓ Dropped " + r.Dropped }

// NewLearnCommand creates the learn command.
func NewLearnCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "learn <context> [file]",
		Short: "Learn text, one line per input",
		Long: `Learn every line of file (or stdin when no file is given) into a context.

Example:
  tyuo learn general corpus.txt
  echo "hello world" | tyuo learn general`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLearn(rootOpts, cmd, args)
		},
	}
}

func runLearn(opts *RootOptions, cmd *cobra.Command, args []string) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 2 {
		f, err := os.Open(args[1])
		if err != nil {
			_ = s.out.Error(ErrCodeInvalidArgs, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open input", err)
		}
		defer f.Close()
		in = f
	}

	c, err := s.engine.GetContext(cmd.Context(), args[0])
	if err != nil {
		return s.out.Fail("open context", err)
	}

	res := LearnResult{Context: args[0]}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		res.Lines++
		tokens, learnable := s.tokenizer.Tokenize(scanner.Text())
		n, err := c.Learn(cmd.Context(), tokens, learnable)
		if err != nil {
			return s.out.Fail("learn", err)
		}
		if n > 0 {
			res.LinesLearned++
			res.TokensLearned += n
		}
	}
	if err := scanner.Err(); err != nil {
		return s.out.Fail("read input", err)
	}
	s.out.VerboseLog("learned %d token(s)", res.TokensLearned)
	return s.out.Success(res)
}

// NewSpeakCommand creates the speak command.
func NewSpeakCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "speak <context> [seed words...]",
		Short: "Generate one line",
		Long: `Generate one line from a context, seeded by the given words.

Exits with status 1 when nothing can be generated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpeak(rootOpts, cmd, args)
		},
	}
}

func runSpeak(opts *RootOptions, cmd *cobra.Command, args []string) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.engine.GetContext(cmd.Context(), args[0])
	if err != nil {
		return s.out.Fail("open context", err)
	}
	seed, _ := s.tokenizer.Tokenize(strings.Join(args[1:], " "))
	text, err := c.Generate(cmd.Context(), seed)
	if err != nil {
		return s.out.Fail("speak", err)
	}
	return s.out.Success(SpeakResult{Context: args[0], Output: text})
}

// NewBanCommand creates the ban command.
func NewBanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ban <context> <substring...>",
		Short: "Ban substrings and forget every token containing them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBan(rootOpts, cmd, args, true)
		},
	}
}

// NewUnbanCommand creates the unban command.
func NewUnbanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unban <context> <substring...>",
		Short: "Remove banned substrings (forgotten transitions stay forgotten)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBan(rootOpts, cmd, args, false)
		},
	}
}

func runBan(opts *RootOptions, cmd *cobra.Command, args []string, ban bool) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.engine.GetContext(cmd.Context(), args[0])
	if err != nil {
		return s.out.Fail("open context", err)
	}
	res := BanResult{Context: args[0]}
	if ban {
		res.Banned, err = c.Ban(cmd.Context(), args[1:])
	} else {
		res.Unbanned, err = c.Unban(cmd.Context(), args[1:])
	}
	if err != nil {
		return s.out.Fail(cmd.Name(), err)
	}
	return s.out.Success(res)
}

// NewBannedCommand creates the banned command.
func NewBannedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "banned <context>",
		Short: "List a context's banned substrings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, err := openExisting(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := c.Banned(cmd.Context())
			if err != nil {
				return s.out.Fail("banned", err)
			}
			return s.out.Success(BannedList{Context: args[0], Entries: entries})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <context>",
		Short: "Show a context's size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, c, err := openExisting(rootOpts, cmd, args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := c.Stats(cmd.Context())
			if err != nil {
				return s.out.Fail("stats", err)
			}
			return s.out.Success(StatsResult{Context: args[0], Stats: st})
		},
	}
}

// NewContextsCommand creates the contexts command.
func NewContextsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List stored contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ids, err := s.engine.Contexts()
			if err != nil {
				return s.out.Fail("list contexts", err)
			}
			return s.out.Success(ContextList{Contexts: ids})
		},
	}
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <context>",
		Short: "Delete a context and everything it learned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.engine.DropContext(cmd.Context(), args[0]); err != nil {
				return s.out.Fail("drop", err)
			}
			return s.out.Success(DropResult{Dropped: args[0]})
		},
	}
}

// openExisting opens a session and the context id without creating it.
func openExisting(opts *RootOptions, cmd *cobra.Command, id string) (*session, *engine.Context, error) {
	s, err := openSession(opts, cmd)
	if err != nil {
		return nil, nil, err
	}
	exists, err := s.engine.ContextExists(id)
	if err == nil && !exists {
		err = fmt.Errorf("context %q does not exist", id)
		_ = s.out.Error(ErrCodeUnknownContext, err.Error(), nil)
		s.Close()
		return nil, nil, WrapExitError(ExitCommandError, "open context", err)
	}
	var c *engine.Context
	if err == nil {
		c, err = s.engine.GetContext(cmd.Context(), id)
	}
	if err != nil {
		failed := s.out.Fail("open context", err)
		s.Close()
		return nil, nil, failed
	}
	return s, c, nil
}


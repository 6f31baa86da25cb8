// Package console is a line-oriented driver for the economy: each input line
// is one command, and wall-clock time is integrated before every command.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dustin/go-humanize"

	"github.com/everforgeworks/moai-clicker/internal/game"
	"github.com/everforgeworks/moai-clicker/internal/session"
)

// Actor is the name the console uses for its session calls.
const Actor = "console"

// MaxCount bounds the repeat count of click and buy.
const MaxCount = 1000

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("quit")

type command struct {
	name    string
	aliases []string
	usage   string
	run     func(c *Console, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"click", []string{"c", "tap", "carve"}, "click [times]", (*Console).click},
		{"buy", []string{"b", "purchase"}, "buy <generator> [count]", (*Console).buy},
		{"status", []string{"s", "balance"}, "status", (*Console).status},
		{"list", []string{"ls", "shop"}, "list", (*Console).list},
		{"wait", []string{"w", "skip"}, "wait <seconds>", (*Console).wait},
		{"help", []string{"h", "?"}, "help", (*Console).help},
		{"quit", []string{"q", "exit"}, "quit", func(*Console, []string) error { return ErrQuit }},
	}
}

// Console executes text commands against a session.
type Console struct {
	sess *session.Session
	out  io.Writer
}

// New creates a console writing its output to out.
func New(sess *session.Session, out io.Writer) *Console {
	return &Console{sess: sess, out: out}
}

// Run reads commands from in until EOF or quit.
func (c *Console) Run(in io.Reader) error {
	c.sess.Tick()
	fmt.Fprintln(c.out, "Moai clicker. Type 'help' for commands.")

	scanner := bufio.NewScanner(in)
	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		err := c.Execute(scanner.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(c.out, err)
		}
		fmt.Fprint(c.out, "> ")
	}
	return scanner.Err()
}

// Execute integrates elapsed wall-clock time, then runs one command line.
func (c *Console) Execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	c.sess.Tick()

	cmd, ok := resolveCommand(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("unknown command %q, try 'help'", fields[0])
	}
	return cmd.run(c, fields[1:])
}

// resolveCommand matches exact names and aliases first, then unique
// prefixes, then the closest name within a small edit distance.
func resolveCommand(word string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == word {
			return cmd, true
		}
		for _, a := range cmd.aliases {
			if a == word {
				return cmd, true
			}
		}
	}

	var prefixed []command
	for _, cmd := range commands {
		if len(word) >= 2 && strings.HasPrefix(cmd.name, word) {
			prefixed = append(prefixed, cmd)
		}
	}
	if len(prefixed) == 1 {
		return prefixed[0], true
	}

	if len(word) < 3 {
		return command{}, false
	}
	best, bestDist := command{}, -1
	for _, cmd := range commands {
		d := levenshtein.ComputeDistance(word, cmd.name)
		if d <= editLimit(len(cmd.name)) && (bestDist < 0 || d < bestDist) {
			best, bestDist = cmd, d
		}
	}
	return best, bestDist >= 0
}

func editLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// suggestKind returns the catalog ID closest to word by ID or display name.
func suggestKind(cat *game.Catalog, word string) (string, bool) {
	type cand struct {
		id   string
		dist int
	}
	var cands []cand
	for _, k := range cat.Kinds() {
		for _, label := range []string{k.ID, k.Name} {
			d := levenshtein.ComputeDistance(strings.ToLower(word), strings.ToLower(label))
			if d <= editLimit(len(label)) {
				cands = append(cands, cand{k.ID, d})
			}
		}
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	return cands[0].id, true
}

func (c *Console) click(args []string) error {
	times, err := countArg(args, 1)
	if err != nil {
		return err
	}
	for i := 0; i < times; i++ {
		if _, err := c.sess.Click(Actor, game.ManualActionAmount); err != nil {
			return err
		}
	}
	snap := c.sess.Snapshot()
	fmt.Fprintf(c.out, "Carved %d time%s. Balance: %s\n", times, plural(times), formatAmount(snap.Balance))
	return nil
}

func (c *Console) buy(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: buy <generator> [count]")
	}
	kind := args[0]
	count, err := countArg(args[1:], 1)
	if err != nil {
		return err
	}

	bought := 0
	for ; bought < count; bought++ {
		_, err = c.sess.Buy(Actor, kind)
		if err != nil {
			break
		}
	}
	if bought > 0 {
		g, _ := c.sess.Snapshot().Generator(kind)
		fmt.Fprintf(c.out, "Bought %d %s. Owned: %d, next costs %s\n", bought, g.Name, g.Owned, formatAmount(g.Price))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, game.ErrUnknownKind):
		if id, ok := suggestKind(c.sess.Catalog(), kind); ok {
			return fmt.Errorf("no generator %q; did you mean %q?", kind, id)
		}
		return fmt.Errorf("no generator %q; try 'list'", kind)
	case errors.Is(err, game.ErrInsufficientFunds):
		g, _ := c.sess.Snapshot().Generator(kind)
		return fmt.Errorf("not enough: %s costs %s, you have %s", g.Name, formatAmount(g.Price), formatAmount(c.sess.Snapshot().Balance))
	default:
		return err
	}
}

func (c *Console) status(args []string) error {
	snap := c.sess.Snapshot()
	fmt.Fprintf(c.out, "Balance: %s  Production: %s/s  Carved by hand: %s\n",
		formatAmount(snap.Balance), formatAmount(snap.ProductionRate), humanize.Comma(snap.Clicks))
	return nil
}

func (c *Console) list(args []string) error {
	for _, g := range c.sess.Snapshot().Generators {
		mark := " "
		if g.Affordable {
			mark = "*"
		}
		fmt.Fprintf(c.out, "%s %-10s %-16s owned %-4d price %-12s +%s/s each\n",
			mark, g.ID, g.Name, g.Owned, formatAmount(g.Price), formatAmount(g.Rate))
	}
	return nil
}

func (c *Console) wait(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wait <seconds>")
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("wait: %q is not a number", args[0])
	}
	ev, err := c.sess.Advance(Actor, secs)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Waited %ss, produced %s\n", args[0], formatAmount(ev.Delta))
	return nil
}

func (c *Console) help(args []string) error {
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "  %-26s aliases: %s\n", cmd.usage, strings.Join(cmd.aliases, ", "))
	}
	return nil
}

func countArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q is not a positive count", args[0])
	}
	if n > MaxCount {
		return 0, fmt.Errorf("count %d is over the limit of %d", n, MaxCount)
	}
	return n, nil
}

func formatAmount(v float64) string {
	if v >= 1e6 {
		return humanize.CommafWithDigits(v, 0)
	}
	return humanize.FormatFloat("#,###.##", v)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

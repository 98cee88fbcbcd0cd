package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/higai/site-admin/internal/console"
	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/internal/content/service"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	gray   = color.New(color.FgHiBlack)
)

var errQuit = errors.New("quit")

// shell reads commands line by line and drives a console.Console.
type shell struct {
	ctx context.Context
	con *console.Console
	in  *bufio.Reader
	cmd *cobra.Command

	mu  sync.Mutex // guards out
	out io.Writer

	// last rendered list length, for live update notices
	seen int
}

func newShell(ctx context.Context, svc service.Service, enc console.ImageEncoder, in io.Reader, out io.Writer) *shell {
	s := &shell{ctx: ctx, in: bufio.NewReader(in), out: out, seen: -1}
	s.con = console.New(svc, enc,
		console.WithConfirmer(console.ConfirmFunc(s.confirm)),
		console.WithNotifier(console.NotifyFunc(s.alert)),
		console.WithOnChange(s.onChange),
	)
	s.cmd = s.commands()
	return s
}

func (s *shell) close() { s.con.Close() }

func (s *shell) printf(c *color.Color, format string, a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		fmt.Fprintf(s.out, format, a...)
		return
	}
	c.Fprintf(s.out, format, a...)
}

func (s *shell) confirm(prompt string) bool {
	s.printf(yellow, "%s [y/N] ", prompt)
	line, _ := s.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (s *shell) alert(msg string) { s.printf(red, "! %s\n", msg) }

// onChange reports live list changes; the full list is printed by "list".
func (s *shell) onChange(v console.View) {
	if !v.Selected || v.Loading {
		return
	}
	if v.FeedErr != nil {
		s.printf(red, "! live list unavailable: %v\n", v.FeedErr)
		return
	}
	s.mu.Lock()
	changed := s.seen != len(v.Documents)
	s.seen = len(v.Documents)
	s.mu.Unlock()
	if changed {
		s.printf(gray, "[%s] %d documents\n", v.Route.Label, len(v.Documents))
	}
}

func (s *shell) use(k content.Kind) {
	s.mu.Lock()
	s.seen = -1
	s.mu.Unlock()
	s.con.Select(k)
	s.printf(cyan, "Managing %s\n", k.Route().Label)
}

// loop runs until EOF or "quit".
func (s *shell) loop() error {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil
		}
		s.printf(green, "%s> ", s.prompt())
		line, err := s.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if xerr := s.exec(line); errors.Is(xerr, errQuit) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (s *shell) prompt() string {
	v := s.con.View()
	if !v.Selected {
		return "console"
	}
	if v.Form != nil {
		return v.Route.Key + "/" + v.Form.Mode.String()
	}
	return v.Route.Key
}

// exec runs one command line and prints its error.
func (s *shell) exec(line string) error {
	s.cmd.SetArgs(strings.Fields(line))
	err := s.cmd.Execute()
	if err != nil && !errors.Is(err, errQuit) {
		s.printf(red, "Error: %v\n", err)
	}
	return err
}

func (s *shell) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(s.out)
	root.SetErr(s.out)

	root.AddCommand(
		&cobra.Command{
			Use:   "kinds",
			Short: "List content kinds",
			RunE: func(*cobra.Command, []string) error {
				for _, k := range content.Kinds() {
					r := k.Route()
					s.printf(nil, "  %-13s %-13s %s\n", r.Key, r.Label, gray.Sprint(r.Collection))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "use <kind>",
			Short: "Open a content kind",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				k, err := content.ParseKind(args[0])
				if err != nil {
					return err
				}
				s.use(k)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show the live list",
			RunE:  func(*cobra.Command, []string) error { return s.list() },
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show every field of a document",
			Args:  cobra.ExactArgs(1),
			RunE:  func(_ *cobra.Command, args []string) error { return s.show(args[0]) },
		},
		&cobra.Command{
			Use:   "add",
			Short: "Open an empty form",
			RunE: func(*cobra.Command, []string) error {
				if err := s.con.OpenAdd(); err != nil {
					return err
				}
				return s.form()
			},
		},
		&cobra.Command{
			Use:   "edit <id>",
			Short: "Open the form for a listed document",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				if err := s.con.OpenEdit(args[0]); err != nil {
					return err
				}
				return s.form()
			},
		},
		&cobra.Command{
			Use:                "set <field> <value...>",
			Short:              "Set a form field",
			Args:               cobra.MinimumNArgs(1),
			DisableFlagParsing: true,
			RunE: func(_ *cobra.Command, args []string) error {
				return s.set(args[0], strings.Join(args[1:], " "))
			},
		},
		&cobra.Command{
			Use:   "attach <field> <path>",
			Short: "Encode a local image into an image field",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				done, err := s.con.AttachImage(s.ctx, args[0], args[1])
				if err != nil {
					return err
				}
				s.printf(gray, "converting %s...\n", args[1])
				go func() {
					if err := <-done; err == nil {
						s.printf(green, "image attached to %s\n", args[0])
					}
				}()
				return nil
			},
		},
		&cobra.Command{
			Use:   "form",
			Short: "Show the open form",
			RunE:  func(*cobra.Command, []string) error { return s.form() },
		},
		&cobra.Command{
			Use:     "save",
			Aliases: []string{"submit"},
			Short:   "Save the open form",
			RunE: func(*cobra.Command, []string) error {
				if err := s.con.Submit(s.ctx); err != nil {
					return err
				}
				s.printf(green, "saved\n")
				return nil
			},
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Close the form without saving",
			RunE:  func(*cobra.Command, []string) error { return s.con.Cancel() },
		},
		&cobra.Command{
			Use:   "toggle <id>",
			Short: "Flip a testimonial between pending and approved",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				next, err := s.con.Toggle(s.ctx, args[0])
				if err != nil {
					return err
				}
				s.printf(green, "%s is now %s\n", args[0], next)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a document after confirmation",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				issued, err := s.con.Delete(s.ctx, args[0])
				switch {
				case err != nil:
					return err
				case issued:
					s.printf(green, "deleted %s\n", args[0])
				default:
					s.printf(gray, "kept %s\n", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:     "quit",
			Aliases: []string{"exit"},
			Short:   "Leave the console",
			RunE:    func(*cobra.Command, []string) error { return errQuit },
		},
	)
	return root
}

func (s *shell) list() error {
	v := s.con.View()
	switch {
	case !v.Selected:
		return console.ErrNoSelection
	case v.FeedErr != nil:
		s.printf(red, "Failed to load %s: %v\n", v.Route.Label, v.FeedErr)
		return nil
	case v.Loading:
		s.printf(gray, "Loading...\n")
		return nil
	case len(v.Documents) == 0:
		s.printf(gray, "No %s yet.\n", strings.ToLower(v.Route.Label))
		return nil
	}
	s.printf(cyan, "%s (%d)\n", v.Route.Label, len(v.Documents))
	for _, d := range v.Documents {
		title, detail := console.Summary(v.Kind, d)
		line := fmt.Sprintf("  %s  %s  %s", gray.Sprint(d.ID), title, gray.Sprint(detail))
		if v.Kind.Moderated() {
			if r := d.String(content.FieldRating); r != "" {
				line += "  " + r + "/5"
			}
			line += "  " + statusBadge(d.Status())
		}
		s.printf(nil, "%s\n", line)
	}
	return nil
}

func statusBadge(status string) string {
	if status == content.StatusApproved {
		return green.Sprint("[approved]")
	}
	return yellow.Sprint("[pending]")
}

func (s *shell) show(id string) error {
	v := s.con.View()
	if !v.Selected {
		return console.ErrNoSelection
	}
	for _, d := range v.Documents {
		if d.ID != id {
			continue
		}
		keys := make([]string, 0, len(d.Fields))
		for k := range d.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.printf(cyan, "%s\n", d.ID)
		s.printf(nil, "  %-16s %s\n", content.FieldSubmittedAt, d.SubmittedAt.Local().Format("2006-01-02 15:04"))
		for _, k := range keys {
			s.printf(nil, "  %-16s %s\n", k, clip(d.String(k)))
		}
		return nil
	}
	return console.ErrNotInList
}

func (s *shell) form() error {
	v := s.con.View()
	if v.Form == nil {
		return console.ErrNoForm
	}
	f := v.Form
	title := "Add " + v.Route.Label
	if f.Mode == console.ModeEdit {
		title = "Edit " + f.TargetID
	}
	s.printf(cyan, "%s\n", title)
	for _, fd := range v.Route.Fields {
		val := ""
		if x, ok := f.Fields[fd.Name]; ok && x != nil {
			val = clip(fmt.Sprint(x))
		}
		hint := string(fd.Type)
		if len(fd.Options) > 0 {
			hint = strings.Join(fd.Options, " | ")
		}
		s.printf(nil, "  %-16s %-40s %s\n", fd.Name, val, gray.Sprint(hint))
	}
	switch {
	case f.Uploading:
		s.printf(yellow, "  uploading image; save is disabled\n")
	case f.Submitting:
		s.printf(yellow, "  saving...\n")
	}
	if f.Err != nil {
		s.printf(red, "  last save failed: %v\n", f.Err)
	}
	return nil
}

// set converts the value by field type: numbers are parsed, the rest is text.
func (s *shell) set(name, raw string) error {
	v := s.con.View()
	if !v.Selected {
		return console.ErrNoSelection
	}
	var val any = raw
	if fd, ok := v.Kind.Field(name); ok && fd.Type == content.FieldNumber && raw != "" {
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", name)
		}
		val = n
	}
	return s.con.Set(name, val)
}

// clip shortens long values such as inline images for display.
func clip(s string) string {
	const max = 60
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

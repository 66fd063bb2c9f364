package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vinayprograms/omnisupply/internal/config"
	"github.com/vinayprograms/omnisupply/internal/replay"
	"github.com/vinayprograms/omnisupply/internal/session"
)

// openSessions opens the configured session directory.
func openSessions(g *Globals) (*session.FileStore, error) {
	cfg, err := loadConfig(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return session.NewFileStore(config.ExpandPath(cfg.Storage.SessionsDir))
}

// Run prints a table of recorded sessions. Unreadable logs are skipped with
// a warning.
func (c *SessionsListCmd) Run(g *Globals, out io.Writer) error {
	fs, err := openSessions(g)
	if err != nil {
		return err
	}
	ids, err := fs.List()
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if c.Limit > 0 && len(ids) > c.Limit {
		ids = ids[:c.Limit]
	}
	if len(ids) == 0 {
		_, err := fmt.Fprintf(out, "no sessions in %s\n", fs.Dir())
		return err
	}

	prog := progress{w: os.Stderr}
	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := fs.Load(id)
		if err != nil {
			prog.warn("skipping session %s: %v", id, err)
			continue
		}
		sessions = append(sessions, sess)
	}
	_, err = fmt.Fprintln(out, replay.List(sessions))
	return err
}

// Run replays one session, in a pager when writing to a terminal.
func (c *SessionsShowCmd) Run(g *Globals, out io.Writer) error {
	fs, err := openSessions(g)
	if err != nil {
		return err
	}
	sess, err := findSession(fs, c.ID)
	if err != nil {
		return err
	}

	r := replay.New(out, c.Verbose)
	if f, ok := out.(*os.File); ok && !c.NoPager && isTerminal(f) {
		return r.ReplayInteractive(sess)
	}
	r.Replay(sess)
	return nil
}

// findSession loads id, or the single session whose ID starts with it.
func findSession(fs *session.FileStore, id string) (*session.Session, error) {
	sess, err := fs.Load(id)
	if err == nil || !errors.Is(err, session.ErrNotFound) {
		return sess, err
	}
	ids, lerr := fs.List()
	if lerr != nil {
		return nil, lerr
	}
	var matches []string
	for _, candidate := range ids {
		if strings.HasPrefix(candidate, id) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, err
	case 1:
		return fs.Load(matches[0])
	default:
		return nil, fmt.Errorf("session prefix %q is ambiguous: %d sessions match", id, len(matches))
	}
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

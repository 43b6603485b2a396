package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
)

// shell keeps the document loaded and runs commands read from r, one per
// line, until quit or end of input. Changes are written only by "save".
func (a *app) shell(r io.Reader) error {
	if err := a.watch(); err != nil {
		log.Printf("shell: not watching %s: %v", a.dir, err)
	}
	defer a.unfollowAll()
	a.printf("palsave %s: %s\n", Version, a.doc.Summary())

	sc := bufio.NewScanner(r)
	for {
		a.printf("> ")
		if !sc.Scan() {
			break
		}
		args, err := splitLine(sc.Text())
		if err != nil {
			a.printf("ERROR: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit":
			a.discardNotice()
			return nil
		case "help":
			usage(a.out)
			a.printf("  save [LABEL] | reload | follow [PLAYER] | unfollow PLAYER | quit\n")
			continue
		case "save":
			err = a.save(strings.Join(args[1:], " "))
		case "reload":
			err = a.reload()
		case "follow":
			err = a.cmdFollow(args[1:])
		case "unfollow":
			err = a.cmdUnfollow(args[1:])
		case "shell", "version":
			err = fmt.Errorf("%s is not available in the shell", args[0])
		default:
			err = a.exec(args)
		}
		if err != nil {
			a.printf("ERROR: %v\n", err)
		}
	}
	a.discardNotice()
	return sc.Err()
}

func (a *app) discardNotice() {
	if a.dirty {
		a.printf("Discarding unsaved changes\n")
	}
}

// reload replaces the document with what is on disk and lets the watcher
// report the next external change.
func (a *app) reload() error {
	if err := a.load(); err != nil {
		return err
	}
	if a.watcher != nil {
		a.watcher.Rearm()
	}
	return nil
}

// splitLine splits a command line on blanks. Double quotes group words.
func splitLine(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote, inArg := false, false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			inArg = true
		case (r == ' ' || r == '\t') && !inQuote:
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}

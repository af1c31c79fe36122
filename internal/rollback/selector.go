// Package rollback selects a prior version out of the ledger and drives
// the recreate protocol back to it.
package rollback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"updock/internal/compose"
	"updock/internal/container"
	"updock/internal/engine"
	"updock/internal/ledger"
)

var (
	// ErrNoCandidates reports that the ledger holds no prior version a
	// rollback could target.
	ErrNoCandidates = errors.New("no rollback candidates in history")
	// ErrBadSelection reports non-numeric or out-of-range menu input.
	ErrBadSelection = errors.New("invalid selection")
)

// Historian is the ledger query capability the selector needs.
type Historian interface {
	Query(name string, kinds []ledger.Action, limit int) ([]ledger.Record, error)
}

// candidateLimit bounds how much history one menu shows.
const candidateLimit = 10

// Selector presents prior versions of a target and performs the chosen
// rollback. In and Out carry the menu interaction; the selection must be a
// 1-based index into the presented list, anything else is a terminal input
// error with no side effects.
type Selector struct {
	Engine  *engine.Engine
	History Historian
	In      io.Reader
	Out     io.Writer
}

// Run rolls back the named target, which may be a container name or a
// logical service name. The two paths of the update protocol may file the
// same physical target under either name, so both are searched.
func (s *Selector) Run(ctx context.Context, name string) (engine.Result, error) {
	candidates, err := s.candidates(ctx, name)
	if err != nil {
		return engine.Result{}, err
	}
	if len(candidates) == 0 {
		return engine.Result{}, fmt.Errorf("%w for %q", ErrNoCandidates, name)
	}

	choice, err := s.choose(name, candidates)
	if err != nil {
		return engine.Result{}, err
	}

	return s.Engine.Rollback(ctx, name, choice.Identity), nil
}

// candidates collects ledger records describing versions that were
// actually deployed, under every logical name the target may have been
// filed under, newest first. Records whose identity is a placeholder or
// otherwise unresolvable are useless as rollback targets and dropped.
func (s *Selector) candidates(ctx context.Context, name string) ([]ledger.Record, error) {
	keys := s.searchKeys(ctx, name)
	kinds := []ledger.Action{ledger.ActionUpdate, ledger.ActionRollbackSuccess}

	var merged []ledger.Record
	seen := make(map[string]bool)
	for _, key := range keys {
		records, err := s.History.Query(key, kinds, 0)
		if err != nil {
			return nil, fmt.Errorf("query history for %q: %w", key, err)
		}
		for _, rec := range records {
			if !rec.Identity.Valid() {
				continue
			}
			dedupe := rec.Time.Format(time.RFC3339) + "\x00" + string(rec.Identity)
			if seen[dedupe] {
				continue
			}
			seen[dedupe] = true
			merged = append(merged, rec)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.After(merged[j].Time) })
	if len(merged) > candidateLimit {
		merged = merged[:candidateLimit]
	}
	return merged, nil
}

// searchKeys expands a target name into every logical name its records may
// be filed under: the name itself, plus the service name when the name is
// an inspectable managed container, plus the instance's container name when
// the name turns out to be a service.
func (s *Selector) searchKeys(ctx context.Context, name string) []string {
	keys := []string{name}

	info, err := s.Engine.Runtime.ContainerInspect(ctx, name)
	if err == nil {
		if info.Config != nil {
			if mc := compose.DetectContext(info.Config.Labels); mc != nil && mc.Service != name {
				keys = append(keys, mc.Service)
			}
		}
		return keys
	}
	if !errdefs.IsNotFound(err) {
		return keys
	}

	names, err := s.Engine.Runtime.ContainerNamesByLabels(ctx, map[string]string{
		container.LabelComposeService: name,
	})
	if err == nil && len(names) > 0 && names[0] != name {
		keys = append(keys, names[0])
	}
	return keys
}

// choose renders the candidate menu and reads one 1-based selection.
func (s *Selector) choose(name string, candidates []ledger.Record) (ledger.Record, error) {
	fmt.Fprintf(s.Out, "Previous versions of %s:\n", name)
	for i, rec := range candidates {
		fmt.Fprintf(s.Out, "  %d) %s  %s  %s  (%s)\n",
			i+1, rec.Time.Local().Format("2006-01-02 15:04:05"), rec.Image, shortIdentity(string(rec.Identity)), rec.Action)
	}
	fmt.Fprintf(s.Out, "Select version to roll back to [1-%d]: ", len(candidates))

	scanner := bufio.NewScanner(s.In)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return ledger.Record{}, fmt.Errorf("read selection: %w", err)
		}
		return ledger.Record{}, fmt.Errorf("%w: no input", ErrBadSelection)
	}
	input := strings.TrimSpace(scanner.Text())

	n, err := strconv.Atoi(input)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("%w: %q is not a number", ErrBadSelection, input)
	}
	if n < 1 || n > len(candidates) {
		return ledger.Record{}, fmt.Errorf("%w: %d is outside 1-%d", ErrBadSelection, n, len(candidates))
	}
	return candidates[n-1], nil
}

// shortIdentity abbreviates a digest-bearing identity for menu display.
func shortIdentity(id string) string {
	if at := strings.LastIndex(id, "@"); at >= 0 {
		id = id[at+1:]
	}
	if rest, ok := strings.CutPrefix(id, "sha256:"); ok && len(rest) > 12 {
		return "sha256:" + rest[:12]
	}
	return id
}

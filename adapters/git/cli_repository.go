package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/layer-3/nostr-gate/core"
	"github.com/layer-3/nostr-gate/ports"
	"go.uber.org/zap"
)

const (
	// NotesRef holds the nostr commit mapping as git notes
	NotesRef = "nostr"

	// DefaultLogLimit caps log output when the caller gives no limit
	DefaultLogLimit = 50

	// MaxLogLimit is the largest log the API serves
	MaxLogLimit = 500

	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "%H" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%P" + fieldSep + "%s" + fieldSep + "%b" + recordSep
)

// CLIRepository reads a repository by running the git binary
type CLIRepository struct {
	dir    string
	binary string
	logger *zap.Logger
}

var _ ports.Repository = (*CLIRepository)(nil)

// NewCLIRepository creates a repository reader rooted at dir
func NewCLIRepository(dir, binary string, logger *zap.Logger) *CLIRepository {
	if binary == "" {
		binary = "git"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIRepository{dir: dir, binary: binary, logger: logger}
}

// Branches lists local branch names
func (r *CLIRepository) Branches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// DefaultBranch returns the branch HEAD points at
func (r *CLIRepository) DefaultBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Log lists commits reachable from ref, optionally limited to path
func (r *CLIRepository) Log(ctx context.Context, ref, path string, limit int) ([]core.Commit, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	if ref == "" {
		ref = "HEAD"
	}

	args := []string{"log", "--format=" + logFormat, "-n", strconv.Itoa(limit), ref, "--"}
	if path != "" {
		args = append(args, path)
	}

	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	commits, err := parseLog(out)
	if err != nil {
		return nil, err
	}
	for i := range commits {
		r.attachNostr(ctx, &commits[i])
	}
	return commits, nil
}

// Commit returns one commit with its patch
func (r *CLIRepository) Commit(ctx context.Context, hash string) (*core.Commit, error) {
	out, err := r.run(ctx, "show", "--format="+logFormat, "--patch", "--no-color", hash, "--")
	if err != nil {
		return nil, err
	}

	header, diff, _ := bytes.Cut(out, []byte(recordSep))
	commits, err := parseLog(append(header, recordSep...))
	if err != nil {
		return nil, err
	}
	if len(commits) != 1 {
		return nil, core.ErrNotFound
	}

	commit := commits[0]
	commit.Diff = strings.TrimLeft(string(diff), "\n")
	r.attachNostr(ctx, &commit)
	return &commit, nil
}

// File reads path at ref
func (r *CLIRepository) File(ctx context.Context, ref, path string) (*core.FileContent, error) {
	if ref == "" {
		ref = "HEAD"
	}
	out, err := r.run(ctx, "show", ref+":"+path)
	if err != nil {
		return nil, err
	}

	file := &core.FileContent{Ref: ref, Path: path, Size: len(out)}
	if utf8.Valid(out) && !bytes.ContainsRune(out, 0) {
		file.Content = string(out)
	} else {
		file.Binary = true
	}
	return file, nil
}

// NostrCommit reads the note attached to hash under NotesRef
func (r *CLIRepository) NostrCommit(ctx context.Context, hash string) (*core.NostrCommit, error) {
	out, err := r.run(ctx, "notes", "--ref="+NotesRef, "show", hash)
	if err != nil {
		return nil, err
	}

	mapping := parseNote(out)
	if mapping.NostrID == "" {
		return nil, core.ErrNotFound
	}
	mapping.Hash = hash
	return &mapping, nil
}

func (r *CLIRepository) attachNostr(ctx context.Context, commit *core.Commit) {
	mapping, err := r.NostrCommit(ctx, commit.Hash)
	if err != nil {
		return
	}
	commit.NostrID = mapping.NostrID
	commit.NostrUser = mapping.Pubkey
}

func (r *CLIRepository) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	out, err := cmd.Output()
	r.logger.Debug("git", zap.Strings("args", args), zap.Duration("took", time.Since(start)), zap.Error(err))

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if isMissingObject(msg) {
				return nil, fmt.Errorf("git %s: %w", args[0], core.ErrNotFound)
			}
			return nil, fmt.Errorf("git %s: %s", args[0], msg)
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

func isMissingObject(stderr string) bool {
	for _, marker := range []string{
		"unknown revision",
		"bad revision",
		"bad object",
		"does not exist",
		"exists on disk, but not in",
		"no note found",
		"not a valid object name",
		"invalid object name",
		"ambiguous argument",
	} {
		if strings.Contains(strings.ToLower(stderr), marker) {
			return true
		}
	}
	return false
}

func parseLog(out []byte) ([]core.Commit, error) {
	var commits []core.Commit
	for _, record := range strings.Split(string(out), recordSep) {
		record = strings.TrimLeft(record, "\n")
		if record == "" {
			continue
		}

		fields := strings.SplitN(record, fieldSep, 7)
		if len(fields) != 7 {
			return nil, fmt.Errorf("unexpected git log record with %d fields", len(fields))
		}

		date, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			return nil, fmt.Errorf("parse commit date %q: %w", fields[3], err)
		}

		commits = append(commits, core.Commit{
			Hash:    fields[0],
			Author:  fields[1],
			Email:   fields[2],
			Date:    date,
			Parents: strings.Fields(fields[4]),
			Subject: fields[5],
			Body:    strings.TrimSpace(fields[6]),
		})
	}
	return commits, nil
}

// parseNote reads "nostr-id <id>" and "pubkey <hex>" lines
func parseNote(out []byte) core.NostrCommit {
	var mapping core.NostrCommit
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		if !ok {
			continue
		}
		switch key {
		case "nostr-id":
			mapping.NostrID = strings.TrimSpace(value)
		case "pubkey":
			mapping.Pubkey = strings.TrimSpace(value)
		}
	}
	return mapping
}

func splitLines(out []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Package gittag tags the current commit with a semantic version derived
// from a build counter and pushes the tag.
package gittag

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var versionPrefix = regexp.MustCompile(`^\d+\.\d+$`)

// FormatTag combines a "major.minor" prefix with the build counter into a
// tag like "v1.4.123".
func FormatTag(prefix string, build int) (tag string, err error) {
	prefix = strings.TrimSpace(prefix)
	if !versionPrefix.MatchString(prefix) {
		err = fmt.Errorf("version prefix %q is not of the form MAJOR.MINOR", prefix)
		return
	}
	if build < 0 {
		err = fmt.Errorf("build counter %d is negative", build)
		return
	}
	tag = fmt.Sprintf("v%s.%d", prefix, build)
	return
}

// runner executes one git invocation; swapped out in tests.
type runner func(ctx context.Context, args ...string) (string, error)

type Tagger struct {
	dir    string
	logger *zap.Logger
	run    runner
}

func NewTagger(dir string, logger *zap.Logger) *Tagger {
	if logger == nil {
		logger = zap.NewNop()
	}
	var t = &Tagger{dir: dir, logger: logger}
	t.run = t.git
	return t
}

func (t *Tagger) git(ctx context.Context, args ...string) (out string, err error) {
	var cmd = exec.CommandContext(ctx, "git", args...)
	cmd.Dir = t.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err = cmd.Run(); err != nil {
		err = fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
		return
	}
	out = strings.TrimSpace(stdout.String())
	return
}

func (t *Tagger) exists(ctx context.Context, tag string) bool {
	var _, err = t.run(ctx, "rev-parse", "-q", "--verify", "refs/tags/"+tag)
	return err == nil
}

// TagBuild creates an annotated tag for HEAD and pushes it to origin. An
// existing tag is left alone unless force is set.
func (t *Tagger) TagBuild(ctx context.Context, prefix string, build int, message string, force bool) (tag string, err error) {
	if tag, err = FormatTag(prefix, build); err != nil {
		return
	}
	if t.exists(ctx, tag) && !force {
		err = fmt.Errorf("tag %q already exists", tag)
		return
	}
	if len(message) == 0 {
		message = fmt.Sprintf("Build %s", tag)
	}
	var args = []string{"tag", "-a", tag, "-m", message}
	if force {
		args = append(args, "--force")
	}
	if _, err = t.run(ctx, args...); err != nil {
		return
	}
	var pushArgs = []string{"push", "origin", tag}
	if force {
		pushArgs = append(pushArgs, "--force")
	}
	if _, err = t.run(ctx, pushArgs...); err != nil {
		return
	}
	t.logger.Info("tagged build", zap.String("tag", tag))
	return
}

// Package command invokes the three domain executables (g_submit, grompp,
// shell) that do the actual simulation work, and parses their output back
// into the shapes the Submit worker persists. The executables themselves
// are opaque collaborators; this package only knows their calling
// convention and output format.
package command

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdsuper/mdsuper/internal/model"
)

// fileArgTable lists each command's file arguments: for these (cmd, flag)
// pairs, a relative value is rewritten relative to the sim's base path
// before invocation.
var fileArgTable = map[model.Cmd]map[string]bool{
	model.CmdGSubmit: {
		"-s": true, "-cpi": true, "-ei": true, "-table": true, "-tabletf": true,
		"-tablep": true, "-tableb": true, "-o": true, "-eo": true, "-deffnm": true,
	},
	model.CmdGrompp: {
		"-f": true, "-c": true, "-r": true, "-rb": true, "-n": true, "-p": true,
		"-t": true, "-e": true, "-ref": true, "-po": true, "-pp": true, "-o": true, "-imd": true,
	},
	model.CmdShell: {},
}

// IsFileArg reports whether key is a known file argument of cmd.
func IsFileArg(cmd model.Cmd, key string) bool {
	return fileArgTable[cmd][key]
}

// Invoker runs one of the three domain commands and returns its stdout
// (combined with stderr, the way a logged shell invocation is captured) and
// the process exit error, if any. Attempt/back-off policy lives in the
// Submit worker; Invoker only runs the process once.
type Invoker interface {
	Invoke(ctx context.Context, cmd model.Cmd, path string, args map[string]string) (stdout string, err error)
}

// execInvoker runs commands as real OS subprocesses via os/exec, looked up
// on $PATH by the command name (g_submit, grompp) or through /bin/sh -c for
// the shell pseudo-command.
type execInvoker struct {
	timeout time.Duration
	lookup  map[model.Cmd]string
}

// NewInvoker returns the default subprocess-based Invoker. binaries lets
// callers override the executable name/path per command (tests substitute
// fixtures here); a nil map uses the command name itself as the binary.
func NewInvoker(timeout time.Duration, binaries map[model.Cmd]string) Invoker {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	lookup := map[model.Cmd]string{
		model.CmdGSubmit: "g_submit",
		model.CmdGrompp:  "grompp",
	}
	for k, v := range binaries {
		lookup[k] = v
	}
	return &execInvoker{timeout: timeout, lookup: lookup}
}

func (e *execInvoker) Invoke(ctx context.Context, cmd model.Cmd, path string, args map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var c *exec.Cmd
	switch cmd {
	case model.CmdShell:
		// shell's "args" is a single command line under the conventional
		// key "cmd"; it runs through the shell so pipes/redirects work.
		line := args["cmd"]
		c = exec.CommandContext(ctx, "/bin/sh", "-c", line)
	case model.CmdGSubmit, model.CmdGrompp:
		bin := e.lookup[cmd]
		if bin == "" {
			bin = string(cmd)
		}
		c = exec.CommandContext(ctx, bin, flattenArgs(args)...)
	default:
		return "", fmt.Errorf("command: unknown domain command %q", cmd)
	}

	if path != "" {
		c.Dir = path
	}

	out, err := c.CombinedOutput()
	return string(out), err
}

// flattenArgs turns a resolved arg map into a flat command-line argument
// slice. Order is not significant to any of the three domain commands, but
// is made deterministic (sorted by flag) so logs and tests are stable.
func flattenArgs(args map[string]string) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sortStrings(keys)

	out := make([]string, 0, len(args)*2)
	for _, k := range keys {
		out = append(out, k, args[k])
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ResolveFileArg rewrites a relative file-argument value to live under the
// sim's base path: join(base, basename(value)).
func ResolveFileArg(base, value string) string {
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(base, filepath.Base(value))
}

// OutputsFor derives the command-specific output map a successful
// invocation produces: grompp and shell outputs are
// predictable from their resolved file arguments and base path; g_submit's
// outputs are its batch script/log lists plus a topology path derived
// from -deffnm (its -o value is not recorded).
func OutputsFor(cmd model.Cmd, base string, resolvedArgs map[string]string, stdout string) map[string]interface{} {
	outputs := make(map[string]interface{})
	switch cmd {
	case model.CmdGrompp:
		if v, ok := resolvedArgs["-o"]; ok {
			outputs["run_input"] = v
		}
		if v, ok := resolvedArgs["-po"]; ok {
			outputs["mdp_output"] = v
		}
	case model.CmdGSubmit:
		if deffnm, ok := resolvedArgs["-deffnm"]; ok {
			outputs["topology"] = deffnm + ".tpr"
		}
		scripts, logs := ExtractBatchPaths(stdout, base)
		if len(scripts) > 0 {
			outputs[model.FoutKeyJScripts] = scripts
		}
		if len(logs) > 0 {
			outputs[model.FoutKeyJLogs] = logs
		}
	case model.CmdShell:
		// shell has no derivable outputs beyond whatever the caller
		// declared as user fout — nothing to add here.
	}
	return outputs
}

// ExtractJobIDs parses one or more integer batch job ids out of g_submit's
// stdout. The convention: each "Submitted batch job <id>"
// line (one per array element for multi-job submissions) yields one id;
// no attempt is made to group them into an array.
func ExtractJobIDs(stdout string) ([]int64, error) {
	var ids []int64
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		const marker = "Submitted batch job"
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}
		field := strings.TrimSpace(line[idx+len(marker):])
		field = strings.Fields(field)[0]
		var id int64
		if _, err := fmt.Sscanf(field, "%d", &id); err != nil {
			return nil, fmt.Errorf("command: malformed batch job id in %q: %w", line, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("command: no batch job id found in g_submit output")
	}
	return ids, nil
}

// ExtractBatchPaths derives JSCRIPTS/JLOGS path lists from g_submit's
// stdout: lines of the form "script: <path>" / "log: <path>". Relative
// paths are resolved against base the same way file arguments are.
func ExtractBatchPaths(stdout, base string) (scripts, logs []string) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "script:"):
			scripts = append(scripts, ResolveFileArg(base, strings.TrimSpace(strings.TrimPrefix(line, "script:"))))
		case strings.HasPrefix(line, "log:"):
			logs = append(logs, ResolveFileArg(base, strings.TrimSpace(strings.TrimPrefix(line, "log:"))))
		}
	}
	return scripts, logs
}

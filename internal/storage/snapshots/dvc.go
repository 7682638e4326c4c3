package snapshots

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommitVersions records the current snapshot set with dvc and git. Every
// failure here is a warning: version control is bookkeeping around the data,
// and a missing CLI or an empty diff must never fail the pipeline.
func (s *Store) CommitVersions(ctx context.Context, message string) {
	if message == "" {
		message = "Lineage data update: " + time.Now().UTC().Format(time.RFC3339)
	}
	root := filepath.Clean(s.root)
	steps := []struct {
		name string
		args []string
	}{
		{"dvc add", []string{"dvc", "add", root}},
		{"git add", []string{"git", "add", root + ".dvc", ".gitignore"}},
		{"git commit", []string{"git", "commit", "-m", message}},
	}
	for _, step := range steps {
		cmd := exec.CommandContext(ctx, step.args[0], step.args[1:]...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			s.log.Warn("version commit step failed (continuing)",
				"step", step.name, "error", err, "output", trimOutput(out))
			return
		}
	}
	s.log.Info("snapshot versions committed", "message", message)
}

func trimOutput(out []byte) string {
	text := strings.TrimSpace(string(out))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}

package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Rclone stages files from rclone remotes ("remote:path/file") with
// `rclone copyto`.
type Rclone struct {
	// Binary defaults to "rclone" on PATH.
	Binary string
	// Flags are passed before the source and destination, for example
	// "--config", "/etc/rclone.conf".
	Flags  []string
	Logger *slog.Logger
}

func (r Rclone) args(source, dest string) []string {
	args := append([]string{"copyto"}, r.Flags...)
	return append(args, source, dest)
}

func (r Rclone) Get(ctx context.Context, source, dest string) error {
	bin := r.Binary
	if bin == "" {
		bin = "rclone"
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, r.args(source, dest)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rclone copyto %s: %w: %s", source, err, strings.TrimSpace(stderr.String()))
	}
	if r.Logger != nil {
		r.Logger.Debug("staged from remote", "source", source, "dest", dest)
	}
	return nil
}

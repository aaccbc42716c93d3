package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	cfgpkg "serax/internal/config"
	"serax/pkg/contract"
)

const defaultDebounce = 500 * time.Millisecond

func newWatchCmd(g *globalFlags) *cobra.Command {
	rf := &runFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [roots...]",
		Short: "监听输入变化并重新运行流水线",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, rf, args)
			if err != nil {
				return err
			}
			for _, r := range cfg.Inputs {
				if strings.TrimSpace(r) == "-" {
					return exitf(exitConfig, "watch: 不支持 STDIN 输入")
				}
			}
			return watchCmd(cmd.Context(), cfg, g.status, debounce, cmd.ErrOrStderr())
		},
	}
	rf.bind(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "变更合并窗口")
	return cmd
}

func watchCmd(ctx context.Context, cfg cfgpkg.Config, status bool, debounce time.Duration, stderr io.Writer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return exitf(exitRuntime, "watch: %w", err)
	}
	defer w.Close()

	skip := newWatchFilter(writerOutputDir(cfg))
	files, err := addWatchRoots(w, cfg.Inputs, skip)
	if err != nil {
		return exitf(exitConfig, "watch: %w", err)
	}
	filter := func(name string) bool {
		if skip(name) {
			return false
		}
		// 单文件根只响应该文件自身
		if _, isDir := files[filepath.Dir(name)]; isDir {
			return true
		}
		_, ok := files[filepath.Clean(name)]
		return ok
	}

	rerun := func() {
		// 单次运行的错误已在 runOnce 中记录；watch 继续
		if _, err := runOnce(ctx, cfg, status, stderr); err != nil {
			var ee *exitError
			if errors.As(err, &ee) && ee.err != nil && !errors.Is(ee.err, context.Canceled) {
				fprintf(stderr, "%v\n", ee.err)
			}
		}
	}
	rerun()
	fprintf(stderr, "[watch] 监听 %d 个输入，Ctrl+C 退出\n", len(cfg.Inputs))
	watchLoop(ctx, w, debounce, filter, func(ev fsnotify.Event) {
		if ev.Has(fsnotify.Create) {
			// 新建子目录需追加监听
			if st, err := os.Stat(ev.Name); err == nil && st.IsDir() && !skip(ev.Name) {
				_ = w.Add(ev.Name)
				files[filepath.Clean(ev.Name)] = struct{}{}
			}
		}
	}, rerun, stderr)
	return nil
}

// addWatchRoots 对目录递归添加监听、对文件监听其父目录。
// 返回的集合包含被监听目录（其下文件均响应）与单文件根。
func addWatchRoots(w *fsnotify.Watcher, roots []string, skip func(string) bool) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	for _, root := range roots {
		st, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			if err := w.Add(filepath.Dir(root)); err != nil {
				return nil, err
			}
			set[filepath.Clean(root)] = struct{}{}
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if p != root && (skip(p) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			set[filepath.Clean(p)] = struct{}{}
			return w.Add(p)
		})
		if err != nil {
			return nil, err
		}
	}
	return set, nil
}

// newWatchFilter 返回判定“应忽略”的函数：输出目录内的路径、报告/边车、临时文件。
func newWatchFilter(outputDir string) func(string) bool {
	var outAbs string
	if outputDir != "" {
		outAbs, _ = filepath.Abs(outputDir)
	}
	return func(name string) bool {
		base := filepath.Base(name)
		if strings.HasSuffix(base, contract.ReportSuffix) || strings.HasSuffix(base, contract.SidecarSuffix) {
			return true
		}
		if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp") {
			return true
		}
		if outAbs != "" {
			if abs, err := filepath.Abs(name); err == nil {
				if rel, err := filepath.Rel(outAbs, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
					return true
				}
			}
		}
		return false
	}
}

// watchLoop 合并 debounce 窗口内的事件后调用一次 fire；ctx 取消或监听关闭时返回。
func watchLoop(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration, accept func(string) bool, onEvent func(fsnotify.Event), fire func(), stderr io.Writer) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if onEvent != nil {
				onEvent(ev)
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !accept(ev.Name) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			fprintf(stderr, "[watch] %v\n", err)
		case <-timer.C:
			fire()
		}
	}
}

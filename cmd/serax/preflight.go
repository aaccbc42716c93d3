package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "serax/internal/config"
	"serax/internal/jsonx"
)

// writerOutputDir 返回 fs Writer 的 output_dir；其他 Writer 返回空串。
func writerOutputDir(cfg cfgpkg.Config) string {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" || len(cfg.Options.Writer) == 0 {
		return ""
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	_ = jsonx.Unmarshal(cfg.Options.Writer, &wopts)
	return strings.TrimSpace(wopts.OutputDir)
}

// preflightCheckOutputDir: fs Writer 启动前检查输出目录可写性。
// 目录存在时试写临时文件；不存在时检查父目录可写。未指定时交由装配阶段报错。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	dir := writerOutputDir(cfg)
	if dir == "" {
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	// 逐级向上找到第一个已存在的祖先目录
	parent := filepath.Dir(filepath.Clean(dir))
	for {
		pst, err := os.Stat(parent)
		if err == nil {
			if !pst.IsDir() {
				return fmt.Errorf("父路径不是目录: %s", parent)
			}
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		parent = next
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}

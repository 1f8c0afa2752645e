package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"xivi-server/internal/config"
)

const (
	mainCommit = "3f2a9c1d8e7b6a5f4e3d2c1b0a9f8e7d6c5b4a39"
	tagCommit  = "0123456789abcdef0123456789abcdef01234567"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestSysInfo(dir, repository string) *SysInfoService {
	return NewSysInfoService(&config.Config{
		SysInfo: config.SysInfoConfig{RepoDir: dir, Repository: repository},
	}, discardLogger())
}

func TestSysInfo_LooseRef(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(dir, ".git", "refs", "heads", "main"), mainCommit+"\n")
	writeFile(t, filepath.Join(dir, "package.json"), `{
  // comments and trailing commas are tolerated
  "name": "xivi",
  "version": "2.4.1",
  "repository": "https://github.com/example/xivi",
}`)

	info, err := newTestSysInfo(dir, "").Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := SysInfo{Repository: "https://github.com/example/xivi", Commit: mainCommit, Version: "2.4.1"}
	if *info != want {
		t.Errorf("Get() = %+v, want %+v", *info, want)
	}
}

func TestSysInfo_PackedRef(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/release\n")
	writeFile(t, filepath.Join(dir, ".git", "packed-refs"), "# pack-refs with: peeled fully-peeled sorted\n"+
		mainCommit+" refs/heads/main\n"+
		tagCommit+" refs/heads/release\n"+
		"^"+mainCommit+"\n")
	writeFile(t, filepath.Join(dir, "package.json"), `{"version":"1.0.0","repository":{"type":"git","url":"git+https://example.com/xivi.git"}}`)

	info, err := newTestSysInfo(dir, "").Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Commit != tagCommit {
		t.Errorf("Commit = %q, want %q", info.Commit, tagCommit)
	}
	if info.Repository != "git+https://example.com/xivi.git" {
		t.Errorf("Repository = %q", info.Repository)
	}
}

func TestSysInfo_DetachedHeadAndConfiguredRepository(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), tagCommit+"\n")
	writeFile(t, filepath.Join(dir, "package.json"), `{"version":"0.9.0","repository":"ignored"}`)

	info, err := newTestSysInfo(dir, "https://git.example.com/xivi").Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Commit != tagCommit {
		t.Errorf("Commit = %q, want %q", info.Commit, tagCommit)
	}
	if info.Repository != "https://git.example.com/xivi" {
		t.Errorf("Repository = %q, want configured value", info.Repository)
	}
}

func TestSysInfo_GitDirFile(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, "worktrees", "wt1")
	writeFile(t, filepath.Join(dir, "checkout", ".git"), "gitdir: ../worktrees/wt1\n")
	writeFile(t, filepath.Join(gitDir, "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(gitDir, "refs", "heads", "main"), mainCommit+"\n")
	writeFile(t, filepath.Join(dir, "checkout", "package.json"), `{"version":"3.0.0"}`)

	info, err := newTestSysInfo(filepath.Join(dir, "checkout"), "").Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if info.Commit != mainCommit {
		t.Errorf("Commit = %q, want %q", info.Commit, mainCommit)
	}
}

func TestSysInfo_Errors(t *testing.T) {
	t.Run("no git dir", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "package.json"), `{"version":"1.0.0"}`)
		if _, err := newTestSysInfo(dir, "").Get(); err == nil {
			t.Error("Get() expected error without .git")
		}
	})

	t.Run("missing ref", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/gone\n")
		writeFile(t, filepath.Join(dir, "package.json"), `{"version":"1.0.0"}`)
		_, err := newTestSysInfo(dir, "").Get()
		if !errors.Is(err, ErrRefNotFound) {
			t.Errorf("Get() error = %v, want ErrRefNotFound", err)
		}
	})

	t.Run("missing package.json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".git", "HEAD"), tagCommit+"\n")
		_, err := newTestSysInfo(dir, "").Get()
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Get() error = %v, want os.ErrNotExist", err)
		}
	})

	t.Run("invalid package.json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, ".git", "HEAD"), tagCommit+"\n")
		writeFile(t, filepath.Join(dir, "package.json"), `{"version": [`)
		if _, err := newTestSysInfo(dir, "").Get(); err == nil {
			t.Error("Get() expected error for invalid package.json")
		}
	})
}

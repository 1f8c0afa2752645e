package service

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"xivi-server/internal/config"
)

// ErrRefNotFound is returned when HEAD names a ref that exists neither as a
// loose file nor in packed-refs.
var ErrRefNotFound = errors.New("git ref not found")

// SysInfo is the payload of /api/sysinfo.
type SysInfo struct {
	Repository string `json:"repository"`
	Commit     string `json:"commit"`
	Version    string `json:"version"`
}

// SysInfoService reports the checkout the server was deployed from.
type SysInfoService struct {
	repoDir    string
	repository string
	logger     *slog.Logger
}

// NewSysInfoService creates a SysInfoService.
func NewSysInfoService(cfg *config.Config, logger *slog.Logger) *SysInfoService {
	return &SysInfoService{
		repoDir:    cfg.SysInfo.RepoDir,
		repository: cfg.SysInfo.Repository,
		logger:     logger.With("component", "sysinfo_service"),
	}
}

type packageJSON struct {
	Version    string          `json:"version"`
	Repository json.RawMessage `json:"repository"`
}

// Get reads the current commit from .git and the version from package.json.
// Files are read on every call so a redeploy is visible without a restart.
func (s *SysInfoService) Get() (*SysInfo, error) {
	commit, err := s.headCommit()
	if err != nil {
		return nil, err
	}

	pkg, err := s.readPackage()
	if err != nil {
		return nil, err
	}

	repo := s.repository
	if repo == "" {
		repo = repositoryURL(pkg.Repository)
	}

	s.logger.Debug("sysinfo read", "commit", commit, "version", pkg.Version)
	return &SysInfo{Repository: repo, Commit: commit, Version: pkg.Version}, nil
}

func (s *SysInfoService) headCommit() (string, error) {
	gitDir, err := resolveGitDir(filepath.Join(s.repoDir, ".git"))
	if err != nil {
		return "", err
	}

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	line := strings.TrimSpace(string(head))

	ref, ok := strings.CutPrefix(line, "ref:")
	if !ok {
		// Detached HEAD holds the commit itself.
		return line, nil
	}
	ref = strings.TrimSpace(ref)

	if b, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
		return strings.TrimSpace(string(b)), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read %s: %w", ref, err)
	}

	return packedRef(gitDir, ref)
}

// resolveGitDir follows a "gitdir:" pointer file as used by worktrees and
// submodules.
func resolveGitDir(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat .git: %w", err)
	}
	if info.IsDir() {
		return path, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read .git: %w", err)
	}
	dir, ok := strings.CutPrefix(strings.TrimSpace(string(b)), "gitdir:")
	if !ok {
		return "", fmt.Errorf("unrecognized .git file %s", path)
	}
	dir = strings.TrimSpace(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(path), dir)
	}
	return dir, nil
}

func packedRef(gitDir, ref string) (string, error) {
	f, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("open packed-refs: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		hash, name, ok := strings.Cut(line, " ")
		if ok && name == ref {
			return hash, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read packed-refs: %w", err)
	}
	return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
}

func (s *SysInfoService) readPackage() (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(s.repoDir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("read package.json: %w", err)
	}

	var pkg packageJSON
	if err := json.Unmarshal(jsonc.ToJSON(data), &pkg); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	return &pkg, nil
}

// repositoryURL accepts both the string and the {"type","url"} forms of the
// package.json repository field.
func repositoryURL(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

package vcs

import (
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/zerocat/extension-mirror/util/common/errors"
	"github.com/zerocat/extension-mirror/util/common/fileutil"
)

// GitInfo describes the revision a checkout is at.
type GitInfo struct {
	URL    string `json:"url,omitempty"`
	Branch string `json:"branch,omitempty"`
	Hash   string `json:"hash,omitempty"`
}

// Short returns the abbreviated commit hash.
func (g *GitInfo) Short() string {
	if len(g.Hash) > 7 {
		return g.Hash[:7]
	}
	return g.Hash
}

// IsGitRepository checks if the given path is a Git checkout
func IsGitRepository(path string) bool {
	return fileutil.IsDir(filepath.Join(path, ".git"))
}

// ReadCheckout reads the current revision of the checkout at path without
// running git. The origin URL is optional.
func ReadCheckout(path string) (*GitInfo, error) {
	if !IsGitRepository(path) {
		return nil, errors.NewVCSError("validate", path, errors.ErrNotFound)
	}
	gitDir := filepath.Join(path, ".git")

	headBytes, err := fileutil.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return nil, errors.NewVCSError("read_head", path, err)
	}
	head := strings.TrimSpace(string(headBytes))

	info := &GitInfo{}
	if ref, ok := strings.CutPrefix(head, "ref: "); ok {
		info.Branch = strings.TrimPrefix(ref, "refs/heads/")
		hash, err := resolveRef(gitDir, ref)
		if err != nil {
			return nil, errors.NewVCSError("read_ref", path, err)
		}
		info.Hash = hash
	} else {
		// detached HEAD
		info.Hash = head
	}
	if !isValidSHA(info.Hash) {
		return nil, errors.NewVCSError("validate_hash", path, errors.ErrInvalidArgument)
	}

	info.URL = remoteURL(gitDir)
	return info, nil
}

// resolveRef reads a loose ref, falling back to packed-refs.
func resolveRef(gitDir, ref string) (string, error) {
	if data, err := fileutil.ReadFile(filepath.Join(gitDir, ref)); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	packed, err := fileutil.ReadFile(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(packed), "\n") {
		hash, name, ok := strings.Cut(strings.TrimSpace(line), " ")
		if ok && name == ref {
			return hash, nil
		}
	}
	return "", errors.ErrNotFound
}

func remoteURL(gitDir string) string {
	configPath := filepath.Join(gitDir, "config")
	if !fileutil.IsFile(configPath) {
		return ""
	}
	cfg, err := ini.Load(configPath)
	if err != nil {
		return ""
	}
	return cfg.Section(`remote "origin"`).Key("url").String()
}

// isValidSHA checks if a string is a valid Git SHA-1 hash.
func isValidSHA(hash string) bool {
	if len(hash) != 40 {
		return false
	}
	for _, c := range hash {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `<html><body><div role="feed">
<div role="article"><a aria-label="Sponsored" href="#">·</a><p>Buy our running shoes</p></div>
<div role="article"><p>Marathon training with friends, marathon recovery tips</p></div>
</div></body></html>`

func TestNewRootCmd(t *testing.T) {
	t.Parallel()
	cmd := NewRootCmd()
	assert.Equal(t, "feedguard", cmd.Use)
	flag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"scan", "watch", "suggest"}, names)
}

// fixture writes a page and an empty config into a temp dir.
func fixture(t *testing.T) (page, cfg string) {
	t.Helper()
	dir := t.TempDir()
	page = filepath.Join(dir, "feed.html")
	cfg = filepath.Join(dir, "feedguard.yaml")
	require.NoError(t, os.WriteFile(page, []byte(feed), 0o600))
	require.NoError(t, os.WriteFile(cfg, []byte("settings:\n  block_sponsored: true\n"), 0o600))
	return page, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScanCommand(t *testing.T) {
	t.Parallel()
	page, cfg := fixture(t)
	renderDir := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, "scan", "--config", cfg, "--render", renderDir, page, filepath.Join(t.TempDir(), "missing.html"))
	require.NoError(t, err)

	var recs []scanRecord
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r scanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].Result)
	assert.Len(t, recs[0].Result.Hidden, 1)
	assert.NotEmpty(t, recs[1].Error)

	rendered, err := os.ReadFile(filepath.Join(renderDir, "000-feed.html"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "display: none !important")
}

func TestScanCommandNeedsSources(t *testing.T) {
	t.Parallel()
	_, cfg := fixture(t)
	_, err := execute(t, "scan", "--config", cfg)
	assert.Error(t, err)
}

func TestScanCommandMissingConfig(t *testing.T) {
	t.Parallel()
	page, _ := fixture(t)
	_, err := execute(t, "scan", "--config", filepath.Join(t.TempDir(), "nope.yaml"), page)
	assert.Error(t, err)
}

func TestSuggestCommand(t *testing.T) {
	t.Parallel()
	page, cfg := fixture(t)
	out, err := execute(t, "suggest", "--config", cfg, "-n", "1", page)
	require.NoError(t, err)
	assert.Equal(t, "marathon\n", out)
}

func TestSuggestRelatedCommand(t *testing.T) {
	t.Parallel()
	cfg := filepath.Join(t.TempDir(), "feedguard.yaml")
	yml := "settings:\n  blocked_keywords: [covid, vaccine]\n"
	require.NoError(t, os.WriteFile(cfg, []byte(yml), 0o600))

	out, err := execute(t, "suggest", "--config", cfg, "--related")
	require.NoError(t, err)
	want := []string{"corona", "dịch bệnh", "khẩu trang", "giãn cách", "lockdown", "tiêm chủng", "y tế", "phòng bệnh"}
	assert.Equal(t, strings.Join(want, "\n")+"\n", out)

	_, err = execute(t, "suggest", "--config", cfg, "--related", "page.html")
	assert.Error(t, err)
}

func TestRenderName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "002-feed.html", renderName("/tmp/x/feed.html", 2))
	assert.Equal(t, "000-groups.html", renderName("https://www.facebook.com/groups/", 0))
}

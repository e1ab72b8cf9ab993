package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/linecord/internal/media"
	"github.com/nextlevelbuilder/linecord/internal/pairing"
	"github.com/nextlevelbuilder/linecord/internal/registry"
	"github.com/nextlevelbuilder/linecord/internal/store/file"
)

type pushed struct {
	groupID string
	msgs    []OutMessage
}

type fakeLine struct {
	mu       sync.Mutex
	pushes   []pushed
	replies  []Reply
	pushErr  error
	profiles map[string]Profile
	groups   map[string]string
	botName  string
	content  string // base URL for ContentRef
	block    chan struct{} // when set, Push waits until it is closed
}

func (f *fakeLine) Profile(_ context.Context, _, userID string) (Profile, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return Profile{}, fmt.Errorf("profile %s not found", userID)
}

func (f *fakeLine) GroupName(_ context.Context, groupID string) (string, error) {
	return f.groups[groupID], nil
}

func (f *fakeLine) BotName(context.Context) (string, error) { return f.botName, nil }

func (f *fakeLine) Push(_ context.Context, groupID string, msgs ...OutMessage) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, pushed{groupID: groupID, msgs: msgs})
	return nil
}

func (f *fakeLine) Reply(_ context.Context, _ string, r Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, r)
	return nil
}

func (f *fakeLine) ContentRef(messageID string) media.Ref {
	return media.Ref{URL: f.content + "/" + messageID, Token: "line-token"}
}

func (f *fakeLine) lastReply(t *testing.T) Reply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.replies)
	return f.replies[len(f.replies)-1]
}

type fakeDiscord struct {
	mu        sync.Mutex
	posts     []WebhookPost
	fileSeen  []bool // whether the attachment existed during Execute
	errs      []error
	lostAcks  int // executes that post and then fail as if the response was lost
	attempts  int
	checks    int
	urls      []string
	created   []int64
	deleted   []string
	createErr error
}

func (f *fakeDiscord) Execute(_ context.Context, webhookURL string, p WebhookPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.posts = append(f.posts, p)
	f.urls = append(f.urls, webhookURL)
	seen := false
	if p.File != nil {
		_, err := os.Stat(p.File.Path)
		seen = err == nil
	}
	f.fileSeen = append(f.fileSeen, seen)
	if f.lostAcks > 0 {
		f.lostAcks--
		return fmt.Errorf("webhook execute: read timeout: %w", ErrRetryable)
	}
	return nil
}

func (f *fakeDiscord) Delivered(_ context.Context, _ int64, webhookURL string, p WebhookPost, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	for i, posted := range f.posts {
		if f.urls[i] == webhookURL && posted.Content == p.Content && (posted.File == nil) == (p.File == nil) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDiscord) CreateWebhook(_ context.Context, channelID int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, channelID)
	return fmt.Sprintf("https://discord.com/api/webhooks/%d/token", channelID), nil
}

func (f *fakeDiscord) DeleteWebhook(_ context.Context, webhookURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, webhookURL)
	return nil
}

type fakeHost struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (h *fakeHost) Publish(_ context.Context, f *media.File, folder string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := os.Stat(f.Path); err != nil {
		return "", fmt.Errorf("publish of missing file %s", f.Path)
	}
	if h.err != nil {
		return "", h.err
	}
	u := "https://cdn.example.com/" + folder + "/" + f.Name
	h.published = append(h.published, u)
	return u, nil
}

type fakeStickers struct {
	path string
}

func (s *fakeStickers) Fetch(context.Context, string, string, bool) (string, error) {
	return s.path, nil
}

type harness struct {
	p       *Pipeline
	reg     *registry.Registry
	broker  *pairing.Service
	line    *fakeLine
	discord *fakeDiscord
	host    *fakeHost
	scratch string
	clock   time.Time
}

func newHarness(t *testing.T, withHost bool) *harness {
	t.Helper()
	dir := t.TempDir()
	stores := file.NewFileStores(dir)

	h := &harness{
		line: &fakeLine{
			profiles: map[string]Profile{"U1": {DisplayName: "Alice", PictureURL: "https://profile.line-scdn.net/alice"}},
			groups:   map[string]string{"G1": "Family", "G2": "Work"},
			botName:  "Relay Bot",
		},
		discord: &fakeDiscord{},
		scratch: filepath.Join(dir, "downloads"),
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h.reg = registry.New(stores.Channels)
	require.NoError(t, h.reg.LoadAll())
	h.broker = pairing.NewService(stores.Codes, pairing.WithClock(h.now))

	deps := Deps{
		Registry: h.reg,
		Broker:   h.broker,
		Line:     h.line,
		Discord:  h.discord,
		Fetcher:  media.NewFetcher(h.scratch),
	}
	if withHost {
		h.host = &fakeHost{}
		deps.Host = h.host
	}
	h.p = New(Config{PersonaOverride: true, DiscordInviteURL: "https://discord.com/invite/bot"}, deps)
	h.p.now = h.now
	h.p.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *harness) now() time.Time { return h.clock }

func (h *harness) bind(t *testing.T, group string, channel int64) {
	t.Helper()
	_, err := h.reg.Add(registry.Binding{
		LineGroupID:           group,
		LineGroupName:         h.line.groups[group],
		DiscordChannelID:      channel,
		DiscordChannelName:    "general",
		DiscordChannelWebhook: fmt.Sprintf("https://discord.com/api/webhooks/%d/token", channel),
	})
	require.NoError(t, err)
}

// drain waits for all queued jobs.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.p.Close(ctx))
}

func scratchFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func newUnloadedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(file.NewChannelFile(filepath.Join(t.TempDir(), file.ChannelsFileName)))
}

func codeStoreOf(t *testing.T) *file.CodeFile {
	t.Helper()
	return file.NewCodeFile(filepath.Join(t.TempDir(), file.CodesFileName))
}
